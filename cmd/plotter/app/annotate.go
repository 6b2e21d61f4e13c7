package app

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	fontSize       = 9.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.0
	labelPadding   = 8
)

type annotatorConfig struct {
	FontSize float64
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, areas []image.Rectangle, data *TraceData, info SessionInfo) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	for i, panel := range data.Panels {
		if err := a.drawTitle(areas[i], panel); err != nil {
			return fmt.Errorf("drawing title of %q: %w", panel.Title, err)
		}
		if err := a.drawValueScale(img, areas[i], panel); err != nil {
			return fmt.Errorf("drawing value scale of %q: %w", panel.Title, err)
		}
	}
	if err := a.drawTimeScale(img, areas[len(areas)-1], data); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, data, info); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

// drawTitle writes the panel title followed by a legend in series colors
func (a *annotator) drawTitle(area image.Rectangle, panel *Panel) error {
	descent := a.fontFace.Metrics().Descent.Round()
	x := area.Min.X
	y := area.Min.Y - labelPadding/2 - descent

	a.context.SetSrc(image.Black)
	defer a.context.SetSrc(image.Black)

	if _, err := a.context.DrawString(panel.Title, freetype.Pt(x, y)); err != nil {
		return err
	}
	x += font.MeasureString(a.fontFace, panel.Title).Round() + 2*labelPadding

	for _, s := range panel.Series {
		a.context.SetSrc(image.NewUniform(s.Color))
		if _, err := a.context.DrawString(s.Name, freetype.Pt(x, y)); err != nil {
			return err
		}
		x += font.MeasureString(a.fontFace, s.Name).Round() + labelPadding
	}
	return nil
}

// drawValueScale labels the top, middle and bottom of the panel range
func (a *annotator) drawValueScale(img *image.RGBA, area image.Rectangle, panel *Panel) error {
	lo, hi := panel.Bounds()

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	marks := []struct {
		value float64
		y     int
	}{
		{hi, area.Min.Y},
		{(lo + hi) / 2, area.Min.Y + area.Dy()/2},
		{lo, area.Max.Y - 1},
	}
	for _, m := range marks {
		for x := area.Min.X - tickMarkHeight; x < area.Min.X; x++ {
			img.Set(x, m.y, color.Black)
		}

		label := humanize.FtoaWithDigits(m.value, 2)
		width := font.MeasureString(a.fontFace, label).Round()
		textY := m.y + fontHeight/2 - metrics.Descent.Round()
		pt := freetype.Pt(area.Min.X-tickMarkHeight-labelPadding/2-width, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, data *TraceData) error {
	span := data.MillisEnd - data.MillisStart
	if span <= 0 {
		return nil
	}
	step := calculateNiceMillisStep(span, area.Dx())
	start := (data.MillisStart + step - 1) / step * step

	metrics := a.fontFace.Metrics()
	textY := area.Max.Y + tickMarkHeight + metrics.Ascent.Round() + labelPadding/2

	for ms := start; ms <= data.MillisEnd; ms += step {
		x := scaleX(ms, data, area)

		for y := area.Max.Y; y < area.Max.Y+tickMarkHeight; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatMillis(ms)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *TraceData, info SessionInfo) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session %d (%s", info.ID, data.Protocol))
	if info.Source != "" {
		sb.WriteString(", " + info.Source)
	}
	sb.WriteString("); ")
	sb.WriteString(fmt.Sprintf("Frames: %s plotted, %s stored, %s corrupt",
		humanize.Comma(int64(data.Count)), humanize.Comma(info.Records), humanize.Comma(info.Corrupt)))
	if data.Count > 0 {
		sb.WriteString("; ")
		sb.WriteString(fmt.Sprintf("Time: %s - %s", formatMillis(data.MillisStart), formatMillis(data.MillisEnd)))
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - labelPadding - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

func calculateNiceMillisStep(span int64, width int) int64 {
	steps := []int64{
		50, 100, 250, 500,
		1_000, 2_000, 5_000, 10_000, 15_000, 30_000,
		60_000, 120_000, 300_000, 600_000, 900_000, 1_800_000, 3_600_000,
	}

	desiredSteps := float64(width) / pixelsPerLabel
	if desiredSteps < 1 {
		desiredSteps = 1
	}
	target := float64(span) / desiredSteps

	for _, step := range steps {
		if float64(step) >= target {
			return step
		}
	}
	return steps[len(steps)-1]
}

// formatMillis renders milliseconds since boot as a duration label
func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Minute:
		return humanize.FtoaWithDigits(d.Seconds(), 2) + " s"
	case d < time.Hour:
		return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
}
