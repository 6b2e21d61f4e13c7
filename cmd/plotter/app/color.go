package app

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	seriesSaturation = 0.85
	seriesValue      = 0.80
)

// palette colors the series of a panel in order: red, green, blue.
var palette = seriesPalette(0, 120, 240)

func seriesPalette(hues ...float64) []color.RGBA {
	colors := make([]color.RGBA, len(hues))
	for i, hue := range hues {
		r, g, b := colorful.Hsv(hue, seriesSaturation, seriesValue).RGB255()
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return colors
}
