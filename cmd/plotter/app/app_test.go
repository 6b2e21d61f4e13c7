package app

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/storage"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("plotter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestNewConfigFromArgs(t *testing.T) {
	c, err := NewConfigFromArgs(newFlagSet(), []string{"-db", "t.sqlite", "-s", "3", "-o", "out", "-f", "JPEG", "-from", "0", "-to", "5000"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.OutputFile != "out.jpeg" || c.Format != ImageJPEG || c.SessionID != 3 {
		t.Errorf("unexpected config %+v", c)
	}
	if c.FromMillis == nil || *c.FromMillis != 0 || c.ToMillis == nil || *c.ToMillis != 5000 {
		t.Errorf("unexpected range %v..%v", c.FromMillis, c.ToMillis)
	}

	c, err = NewConfigFromArgs(newFlagSet(), []string{"-db", "t.sqlite", "-o", "out"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.FromMillis != nil || c.ToMillis != nil {
		t.Errorf("range must be unset when the flags are absent")
	}
	if c.OutputFile != "out.png" || c.Width != defaultWidth || c.PanelHeight != defaultPanelHeight {
		t.Errorf("unexpected defaults %+v", c)
	}
}

func TestNewConfigFromArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing db", []string{"-o", "out"}},
		{"missing output", []string{"-db", "t.sqlite"}},
		{"bad session", []string{"-db", "t.sqlite", "-o", "out", "-s", "0"}},
		{"bad format", []string{"-db", "t.sqlite", "-o", "out", "-f", "gif"}},
		{"tiny", []string{"-db", "t.sqlite", "-o", "out", "-width", "10"}},
		{"reversed range", []string{"-db", "t.sqlite", "-o", "out", "-from", "10", "-to", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewConfigFromArgs(newFlagSet(), tt.args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTraceData_Update(t *testing.T) {
	data := NewTraceData(telemetry.Level2)
	if len(data.Panels) != 3 {
		t.Fatalf("expected 3 panels, got %d", len(data.Panels))
	}

	data.Update(telemetry.Attitude{Timestamp: 100, Roll: 1, Pitch: 2, Heading: 3, Altitude: 10, Temperature: 20})
	data.Update(telemetry.Raw{Timestamp: 0})
	data.Update(telemetry.Attitude{Timestamp: 50, Roll: -1, Pitch: 2, Heading: 5, Altitude: 12, Temperature: 20})

	if data.Count != 2 || data.MillisStart != 50 || data.MillisEnd != 100 {
		t.Errorf("unexpected trace range %d..%d (%d)", data.MillisStart, data.MillisEnd, data.Count)
	}

	attitude := data.Panels[0]
	if got := attitude.Series[2].Values; len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("unexpected heading series %v", got)
	}
	if lo, hi := attitude.Bounds(); lo != -1 || hi != 5 {
		t.Errorf("unexpected bounds %f..%f", lo, hi)
	}

	// constant temperature is widened
	if lo, hi := data.Panels[2].Bounds(); lo != 19 || hi != 21 {
		t.Errorf("unexpected flat bounds %f..%f", lo, hi)
	}
	if lo, hi := NewTraceData(telemetry.Level1).Panels[0].Bounds(); lo != -1 || hi != 1 {
		t.Errorf("unexpected empty bounds %f..%f", lo, hi)
	}
}

func TestChartRenderer_Render(t *testing.T) {
	data := NewTraceData(telemetry.Level1)
	for i := 0; i < 100; i++ {
		data.Update(telemetry.Raw{Timestamp: int64(i * 50), AccelZ: 9.81, GyroZ: float64(i % 10), Altitude: float64(i), Temperature: 25})
	}

	for _, noAnnotations := range []bool{false, true} {
		r := NewChartRenderer(RenderConfig{Width: 400, PanelHeight: 100, NoAnnotations: noAnnotations})
		img, err := r.Render(data, SessionInfo{ID: 1, Source: "stdin", Records: 100})
		if err != nil {
			t.Fatalf("render: %v", err)
		}

		want := image.Rect(0, 0, 400+defaultLeftBorder+defaultRightBorder,
			defaultTopBorder+4*100+3*panelGap+defaultBottomBorder)
		if img.Bounds() != want {
			t.Errorf("unexpected bounds %v, want %v", img.Bounds(), want)
		}

		// the altitude trace starts in the bottom left corner of its panel
		area := r.panelArea(2)
		if c := img.RGBAAt(area.Min.X, area.Max.Y-1); c != palette[0] {
			t.Errorf("unexpected pixel %v at the trace start", c)
		}
	}

	if _, err := NewChartRenderer(RenderConfig{}).Render(NewTraceData(0), SessionInfo{}); err == nil {
		t.Errorf("expected error for a protocol without panels")
	}
}

func TestDrawLine(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	drawLine(img, 9, 9, 0, 0, palette[1])
	for i := 0; i < 10; i++ {
		if img.RGBAAt(i, i) != palette[1] {
			t.Fatalf("pixel %d,%d not set", i, i)
		}
	}
}

func TestCalculateNiceMillisStep(t *testing.T) {
	tests := []struct {
		span  int64
		width int
		want  int64
	}{
		{1_000, 1500, 100},
		{60_000, 1500, 10_000},
		{600_000, 1500, 60_000},
		{10, 1500, 50},
		{100_000_000, 1500, 3_600_000},
	}
	for _, tt := range tests {
		if got := calculateNiceMillisStep(tt.span, tt.width); got != tt.want {
			t.Errorf("calculateNiceMillisStep(%d, %d) = %d, want %d", tt.span, tt.width, got, tt.want)
		}
	}
}

func TestFormatMillis(t *testing.T) {
	tests := map[int64]string{
		0:         "0 s",
		1500:      "1.5 s",
		90_000:    "1:30",
		3_723_000: "1:02:03",
	}
	for ms, want := range tests {
		if got := formatMillis(ms); got != want {
			t.Errorf("formatMillis(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "telemetry.sqlite")

	store := storage.NewSqliteStore(dbPath)
	sessionID, err := store.CreateSession(ctx, "L2", "stdin", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var records []telemetry.Record
	for i := 0; i < 40; i++ {
		records = append(records, telemetry.Attitude{Timestamp: int64(i * 50), Heading: float64(i) / 2, Altitude: 100, Temperature: 30})
	}
	if err = store.StoreRecords(ctx, sessionID, time.Now(), records); err != nil {
		t.Fatalf("store records: %v", err)
	}
	if err = store.StoreCorrupt(ctx, sessionID, time.Now(), "$L2,garbage", "field_count"); err != nil {
		t.Fatalf("store corrupt: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = sessionID
	config.OutputFile = filepath.Join(dir, "plot.png")
	config.Width = 300
	config.PanelHeight = 80

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err = Run(ctx, config, logger); err != nil {
		t.Fatalf("run: %v", err)
	}

	raw, err := os.ReadFile(config.OutputFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if _, err = png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("decode png: %v", err)
	}

	config.SessionID = sessionID + 1
	if err = Run(ctx, config, logger); !errors.Is(err, storage.ErrNoData) {
		t.Errorf("expected missing session error, got %v", err)
	}

	config.DBPath = filepath.Join(dir, "missing.sqlite")
	if err = Run(ctx, config, logger); err == nil {
		t.Errorf("expected error for a missing database")
	}
}
