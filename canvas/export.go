/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package canvas

import (
	"fmt"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// EncodePNG writes the current pixels as a PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, c.img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}

	return nil
}

// EncodePDF writes a single page, sized like the canvas in points, holding
// the strokes drawn since the last clear as vector lines.
func (c *Canvas) EncodePDF(w io.Writer) error {
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(c.width), Ht: float64(c.height)},
	})
	p.SetTitle("doodlebox", true)
	p.SetCreator("doodlebox", true)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")

	for _, s := range c.strokes {
		ink := ParseColor(s.Color)
		p.SetDrawColor(int(ink.R), int(ink.G), int(ink.B))
		p.SetLineWidth(s.Size)
		p.Line(s.X0, s.Y0, s.X1, s.Y1)
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("encode pdf: %w", err)
	}

	return nil
}
