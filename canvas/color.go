/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package canvas

import (
	"image/color"
	"strconv"
	"strings"
)

// Ink is used for colors that cannot be parsed.
var Ink = color.RGBA{A: 0xff}

// ParseColor reads "#rgb" or "#rrggbb". Anything else is drawn in Ink.
func ParseColor(s string) color.RGBA {
	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok {
		return Ink
	}

	switch len(hex) {
	case 3:
		v, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return Ink
		}
		r, g, b := uint8(v>>8&0xf), uint8(v>>4&0xf), uint8(v&0xf)
		return color.RGBA{R: r<<4 | r, G: g<<4 | g, B: b<<4 | b, A: 0xff}
	case 6:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return Ink
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
	default:
		return Ink
	}
}
