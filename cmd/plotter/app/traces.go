package app

import (
	"image/color"
	"math"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

type panelLayout struct {
	title  string
	series []string
}

// layouts lists the panels of each protocol. Flattened, the series follow
// the order of telemetry.Record.Values.
var layouts = map[telemetry.Protocol][]panelLayout{
	telemetry.Level1: {
		{title: "Acceleration", series: []string{"ax", "ay", "az"}},
		{title: "Angular rate (deg/s)", series: []string{"gx", "gy", "gz"}},
		{title: "Altitude (m)", series: []string{"alt"}},
		{title: "Temperature (C)", series: []string{"temp"}},
	},
	telemetry.Level2: {
		{title: "Attitude (deg)", series: []string{"roll", "pitch", "heading"}},
		{title: "Altitude (m)", series: []string{"alt"}},
		{title: "Temperature (C)", series: []string{"temp"}},
	},
}

type Series struct {
	Name   string
	Color  color.RGBA
	Millis []int64
	Values []float64
}

type Panel struct {
	Title  string
	Series []*Series
}

// Bounds returns the value range of all series of the panel. A flat range is
// widened so it can be scaled.
func (p *Panel) Bounds() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range p.Series {
		for _, v := range s.Values {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	switch {
	case math.IsInf(lo, 1):
		return -1, 1
	case hi-lo < 1e-9:
		return lo - 1, hi + 1
	}
	return lo, hi
}

type TraceData struct {
	Protocol    telemetry.Protocol
	MillisStart int64
	MillisEnd   int64
	Count       int
	Panels      []*Panel
	series      []*Series
}

func NewTraceData(p telemetry.Protocol) *TraceData {
	t := &TraceData{Protocol: p}

	for _, l := range layouts[p] {
		panel := &Panel{Title: l.title}
		for i, name := range l.series {
			s := &Series{Name: name, Color: palette[i%len(palette)]}
			panel.Series = append(panel.Series, s)
			t.series = append(t.series, s)
		}
		t.Panels = append(t.Panels, panel)
	}

	return t
}

// Update appends a record. Records of another protocol are ignored.
func (t *TraceData) Update(r telemetry.Record) {
	if r.Protocol() != t.Protocol {
		return
	}

	ms := r.Millis()
	if t.Count == 0 || ms < t.MillisStart {
		t.MillisStart = ms
	}
	if t.Count == 0 || ms > t.MillisEnd {
		t.MillisEnd = ms
	}
	t.Count++

	for i, v := range r.Values() {
		s := t.series[i]
		s.Millis = append(s.Millis, ms)
		s.Values = append(s.Values, v)
	}
}
