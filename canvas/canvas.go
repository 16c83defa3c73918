/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package canvas rebuilds the shared drawing from the event stream, the same
// way a browser client does, so it can be rendered, compared and exported
// outside a browser.
package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"

	"github.com/Seednode/doodlebox/event"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 600

	// ChatTail is how many guess entries are kept for display.
	ChatTail = 20

	// Coordinates beyond this are ignored rather than rasterized.
	maxCoordinate = 1 << 20
)

// Background is the color of a blank canvas.
var Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Canvas is a replica of the drawing state. Strokes are painted with hard
// edges: a pixel is either fully the stroke color or left alone, so painting
// the same segment twice changes nothing.
type Canvas struct {
	width, height int

	img  *image.RGBA
	mask *image.Alpha

	scanner *rasterx.ScannerGV
	stroker *rasterx.Stroker
	filler  *rasterx.Filler

	strokes []event.Stroke
	chat    []event.Guess
}

// New returns a blank canvas of the given size.
func New(width, height int) *Canvas {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	bounds := image.Rect(0, 0, width, height)
	mask := image.NewAlpha(bounds)

	scanner := rasterx.NewScannerGV(width, height, mask, bounds)
	scanner.SetColor(color.Alpha{A: 0xff})

	c := &Canvas{
		width:   width,
		height:  height,
		img:     image.NewRGBA(bounds),
		mask:    mask,
		scanner: scanner,
		stroker: rasterx.NewStroker(width, height, scanner),
		filler:  rasterx.NewFiller(width, height, scanner),
	}
	c.wipe()

	return c
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

// Apply updates the replica with one message. A History batch resets the
// canvas and chat before replaying, since it describes the full state.
func (c *Canvas) Apply(m event.Message) {
	switch v := m.(type) {
	case event.Stroke:
		c.draw(v)
	case event.Clear:
		c.wipe()
	case event.Guess:
		c.chat = append(c.chat, v)
		if len(c.chat) > ChatTail {
			c.chat = append([]event.Guess(nil), c.chat[len(c.chat)-ChatTail:]...)
		}
	case event.History:
		c.Reset()
		for _, e := range v {
			c.Apply(e)
		}
	}
}

// Reset returns the canvas to blank and forgets the chat.
func (c *Canvas) Reset() {
	c.wipe()
	c.chat = nil
}

func (c *Canvas) wipe() {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
	c.strokes = nil
}

func drawable(s event.Stroke) bool {
	for _, v := range []float64{s.X0, s.Y0, s.X1, s.Y1, s.Size} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxCoordinate {
			return false
		}
	}

	return s.Size > 0
}

func (c *Canvas) draw(s event.Stroke) {
	if !drawable(s) {
		return
	}
	c.strokes = append(c.strokes, s)

	half := s.Size / 2
	r := image.Rect(
		int(math.Floor(math.Min(s.X0, s.X1)-half))-2,
		int(math.Floor(math.Min(s.Y0, s.Y1)-half))-2,
		int(math.Ceil(math.Max(s.X0, s.X1)+half))+2,
		int(math.Ceil(math.Max(s.Y0, s.Y1)+half))+2,
	).Intersect(c.mask.Bounds())
	if r.Empty() {
		return
	}

	draw.Draw(c.mask, r, image.Transparent, image.Point{}, draw.Src)

	if s.X0 == s.X1 && s.Y0 == s.Y1 {
		c.filler.Clear()
		rasterx.AddCircle(s.X0, s.Y0, half, c.filler)
		c.filler.Draw()
		c.filler.Clear()
	} else {
		c.stroker.Clear()
		c.stroker.SetStroke(
			fixed.Int26_6(s.Size*64),
			fixed.Int26_6(4*64),
			rasterx.RoundCap, rasterx.RoundCap,
			rasterx.RoundGap, rasterx.Round,
		)
		c.stroker.Start(rasterx.ToFixedP(s.X0, s.Y0))
		c.stroker.Line(rasterx.ToFixedP(s.X1, s.Y1))
		c.stroker.Stop(false)
		c.stroker.Draw()
		c.stroker.Clear()
	}

	ink := ParseColor(s.Color)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c.mask.AlphaAt(x, y).A >= 0x80 {
				c.img.SetRGBA(x, y, ink)
			}
		}
	}
}

// Image returns a copy of the current pixels.
func (c *Canvas) Image() *image.RGBA {
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)

	return out
}

// Chat returns the most recent guesses, oldest first.
func (c *Canvas) Chat() []event.Guess {
	return append([]event.Guess(nil), c.chat...)
}

// Strokes returns the segments drawn since the last clear.
func (c *Canvas) Strokes() []event.Stroke {
	return append([]event.Stroke(nil), c.strokes...)
}

// Equal reports whether two canvases hold identical pixels.
func (c *Canvas) Equal(o *Canvas) bool {
	return c.img.Bounds() == o.img.Bounds() && bytes.Equal(c.img.Pix, o.img.Pix)
}

// Diff counts pixels that differ between two canvases of the same size.
func Diff(a, b *Canvas) int {
	if a.img.Bounds() != b.img.Bounds() {
		return a.width * a.height
	}

	n := 0
	for i := 0; i < len(a.img.Pix); i += 4 {
		if !bytes.Equal(a.img.Pix[i:i+4], b.img.Pix[i:i+4]) {
			n++
		}
	}

	return n
}

// Ink returns the fraction of pixels that differ from the background.
func (c *Canvas) Ink() float64 {
	return Coverage(c.img)
}

// Coverage returns the fraction of pixels in img that are not background.
func Coverage(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}

	bg := color.RGBAModel.Convert(Background)
	inked := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.RGBAModel.Convert(img.At(x, y)) != bg {
				inked++
			}
		}
	}

	return float64(inked) / float64(b.Dx()*b.Dy())
}
