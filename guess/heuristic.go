/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package guess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// DefaultMaxPixels bounds the images Heuristic will decode.
const DefaultMaxPixels = 2048 * 2048

// Heuristic guesses offline from how much of the picture is inked and which
// color dominates. It is used when no API key is configured.
type Heuristic struct {
	// MaxPixels caps width*height of accepted images. Zero means
	// DefaultMaxPixels.
	MaxPixels int
}

type namedColor struct {
	name string
	c    color.RGBA
}

var palette = []namedColor{
	{"black", color.RGBA{0, 0, 0, 255}},
	{"red", color.RGBA{220, 38, 38, 255}},
	{"orange", color.RGBA{234, 88, 12, 255}},
	{"yellow", color.RGBA{234, 179, 8, 255}},
	{"green", color.RGBA{22, 163, 74, 255}},
	{"blue", color.RGBA{29, 78, 216, 255}},
	{"purple", color.RGBA{126, 34, 206, 255}},
	{"pink", color.RGBA{219, 39, 119, 255}},
	{"brown", color.RGBA{120, 53, 15, 255}},
	{"gray", color.RGBA{107, 114, 128, 255}},
}

var subjects = map[string][3]string{
	"black":  {"a signature", "a stick figure", "a cat at night"},
	"red":    {"a cherry", "a heart", "a fire truck"},
	"orange": {"a carrot", "a pumpkin", "a sunset"},
	"yellow": {"a star", "a banana", "the sun"},
	"green":  {"a leaf", "a frog", "a tree"},
	"blue":   {"a raindrop", "a wave", "the sea"},
	"purple": {"a grape", "a plum", "an eggplant"},
	"pink":   {"a flamingo", "a flower", "a pig"},
	"brown":  {"a twig", "a dog", "a house"},
	"gray":   {"a pebble", "a cloud", "an elephant"},
}

func (h Heuristic) Guess(_ context.Context, data []byte) (string, error) {
	limit := h.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}

	// The header alone decides how much png.Decode allocates.
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode png: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > limit/cfg.Height {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode png: %w", err)
	}

	coverage, dominant := analyze(img)
	if coverage == 0 {
		return "", nil
	}

	choices := subjects[dominant]
	switch {
	case coverage < 0.01:
		return choices[0], nil
	case coverage < 0.08:
		return choices[1], nil
	default:
		return choices[2], nil
	}
}

// analyze returns the inked fraction of img and the palette name closest to
// most inked pixels. Transparent and near-white pixels count as paper.
func analyze(img image.Image) (float64, string) {
	b := img.Bounds()
	if b.Empty() {
		return 0, ""
	}

	counts := make(map[string]int)
	inked := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if c.A < 0x80 || (c.R > 0xf0 && c.G > 0xf0 && c.B > 0xf0) {
				continue
			}
			inked++
			counts[nearest(c)]++
		}
	}

	if inked == 0 {
		return 0, ""
	}

	best, bestCount := "", -1
	for _, p := range palette {
		if counts[p.name] > bestCount {
			best, bestCount = p.name, counts[p.name]
		}
	}

	return float64(inked) / float64(b.Dx()*b.Dy()), best
}

func nearest(c color.RGBA) string {
	best, bestDist := "", -1
	for _, p := range palette {
		dr := int(c.R) - int(p.c.R)
		dg := int(c.G) - int(p.c.G)
		db := int(c.B) - int(p.c.B)
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = p.name, d
		}
	}

	return best
}
