package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

const (
	panelGap = 40

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 90
	defaultBottomBorder = 80
	defaultRightBorder  = 40
)

var (
	frameColor = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	zeroColor  = color.RGBA{R: 0xe4, G: 0xe4, B: 0xe4, A: 0xff}
)

// BorderConfig defines the sizes of white space around the panels
type BorderConfig struct {
	Top    int // Space for the first panel title
	Left   int // Space for value scales
	Bottom int // Space for time scale and information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for trace visualization
type RenderConfig struct {
	Width         int     // Width of each panel in pixels
	PanelHeight   int     // Height of each panel in pixels
	FontSize      float64 // Font size in points
	NoAnnotations bool

	BorderConfig BorderConfig
}

// SessionInfo describes the plotted session in the information bar.
type SessionInfo struct {
	ID      int64
	Source  string
	Records int64
	Corrupt int64
}

// ChartRenderer draws the panels of a TraceData, one below the other, sharing
// the time axis.
type ChartRenderer struct {
	config RenderConfig
}

func NewChartRenderer(config RenderConfig) *ChartRenderer {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.PanelHeight == 0 {
		config.PanelHeight = defaultPanelHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &ChartRenderer{config: config}
}

// Render creates an image of the traces with annotations
func (r *ChartRenderer) Render(data *TraceData, info SessionInfo) (*image.RGBA, error) {
	n := len(data.Panels)
	if n == 0 {
		return nil, fmt.Errorf("no panels for protocol %s", data.Protocol)
	}

	b := r.config.BorderConfig
	fullWidth := r.config.Width + b.Left + b.Right
	fullHeight := b.Top + n*r.config.PanelHeight + (n-1)*panelGap + b.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	areas := make([]image.Rectangle, n)
	for i, panel := range data.Panels {
		areas[i] = r.panelArea(i)
		r.renderPanel(img, areas[i], panel, data)
	}

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		Borders:  b,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, areas, data, info); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

func (r *ChartRenderer) panelArea(i int) image.Rectangle {
	left := r.config.BorderConfig.Left
	top := r.config.BorderConfig.Top + i*(r.config.PanelHeight+panelGap)
	return image.Rect(left, top, left+r.config.Width, top+r.config.PanelHeight)
}

// renderPanel draws the frame, the zero line and the series of one panel
func (r *ChartRenderer) renderPanel(img *image.RGBA, area image.Rectangle, panel *Panel, data *TraceData) {
	lo, hi := panel.Bounds()

	if lo < 0 && hi > 0 {
		y := scaleY(0, lo, hi, area)
		drawLine(img, area.Min.X, y, area.Max.X-1, y, zeroColor)
	}
	drawFrame(img, area, frameColor)

	for _, s := range panel.Series {
		if len(s.Values) == 1 {
			img.Set(scaleX(s.Millis[0], data, area), scaleY(s.Values[0], lo, hi, area), s.Color)
			continue
		}
		for j := 1; j < len(s.Values); j++ {
			drawLine(img,
				scaleX(s.Millis[j-1], data, area), scaleY(s.Values[j-1], lo, hi, area),
				scaleX(s.Millis[j], data, area), scaleY(s.Values[j], lo, hi, area),
				s.Color)
		}
	}
}

func scaleX(ms int64, data *TraceData, area image.Rectangle) int {
	span := data.MillisEnd - data.MillisStart
	if span <= 0 {
		return area.Min.X
	}
	return area.Min.X + int(float64(ms-data.MillisStart)/float64(span)*float64(area.Dx()-1))
}

func scaleY(v, lo, hi float64, area image.Rectangle) int {
	return area.Max.Y - 1 - int((v-lo)/(hi-lo)*float64(area.Dy()-1))
}

func drawFrame(img *image.RGBA, area image.Rectangle, c color.Color) {
	x0, y0, x1, y1 := area.Min.X, area.Min.Y, area.Max.X-1, area.Max.Y-1
	drawLine(img, x0, y0, x1, y0, c)
	drawLine(img, x0, y1, x1, y1, c)
	drawLine(img, x0, y0, x0, y1, c)
	drawLine(img, x1, y0, x1, y1, c)
}

// drawLine rasterizes a one pixel wide segment (Bresenham).
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		if e2 := 2 * e; e2 >= dy {
			e += dy
			x0 += sx
		} else {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
