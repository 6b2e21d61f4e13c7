package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/ahrs"
	"github.com/roman-kulish/flight-telemetry/internal/config"
	"github.com/roman-kulish/flight-telemetry/internal/frame"
	"github.com/roman-kulish/flight-telemetry/internal/scheduler"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "transmitter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
transmitter:
  protocol: L1
  interval: 100ms
  strategy: deadline
  maxTicks: 10
  seed: 42
  noise: false
filter:
  mode: madgwick
  beta: 0.05
outputs:
  - type: file
    path: frames.log
  - type: mqtt
    optional: true
    mqtt:
      broker: tcp://localhost:1883
      topic: drone/frames
metrics:
  listen: ":9100"
`)

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tc := c.Transmitter
	if tc.Protocol != telemetry.Level1 || tc.Interval.Duration() != 100*time.Millisecond || tc.Strategy != "deadline" || tc.MaxTicks != 10 {
		t.Errorf("unexpected transmitter config %+v", tc)
	}
	if tc.Seed == nil || *tc.Seed != 42 || tc.Noise == nil || *tc.Noise {
		t.Errorf("unexpected noise config %v %v", tc.Seed, tc.Noise)
	}
	if c.Filter.Mode != ahrs.ModeMadgwick || c.Filter.Beta == nil || *c.Filter.Beta != 0.05 {
		t.Errorf("unexpected filter config %+v", c.Filter)
	}
	if len(c.Outputs) != 2 || !c.Outputs[1].Optional || c.Outputs[1].MQTT.Topic != "drone/frames" {
		t.Errorf("unexpected outputs %+v", c.Outputs)
	}
	if c.Metrics.Listen != ":9100" {
		t.Errorf("unexpected metrics listen %q", c.Metrics.Listen)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, "settings:\n  logLevel: info\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Transmitter.Protocol != telemetry.Level2 || c.Transmitter.Interval.Duration() != 50*time.Millisecond {
		t.Errorf("unexpected defaults %+v", c.Transmitter)
	}
	if c.Filter.Mode != ahrs.ModeGyro || c.Filter.Beta == nil || *c.Filter.Beta != ahrs.DefaultBeta {
		t.Errorf("unexpected filter defaults %+v", c.Filter)
	}
	if len(c.Outputs) != 1 || c.Outputs[0].Type != OutputStdout {
		t.Errorf("unexpected default outputs %+v", c.Outputs)
	}
}

func TestLoadConfig_ZeroBeta(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, "filter:\n  mode: madgwick\n  beta: 0\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Filter.Beta == nil || *c.Filter.Beta != 0 {
		t.Errorf("expected explicit zero beta to be kept, got %v", c.Filter.Beta)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "transmitter:\n  rate: 20\n"},
		{"bad protocol", "transmitter:\n  protocol: L3\n"},
		{"bad interval", "transmitter:\n  interval: fast\n"},
		{"negative interval", "transmitter:\n  interval: -5ms\n"},
		{"bad strategy", "transmitter:\n  strategy: spin\n"},
		{"bad mode", "filter:\n  mode: kalman\n"},
		{"negative beta", "filter:\n  beta: -0.1\n"},
		{"bad log level", "settings:\n  logLevel: loud\n"},
		{"file without path", "outputs:\n  - type: file\n"},
		{"serial without port", "outputs:\n  - type: serial\n"},
		{"websocket without listen", "outputs:\n  - type: websocket\n"},
		{"unknown output", "outputs:\n  - type: pigeon\n"},
		{"two stdout", "outputs:\n  - type: stdout\n  - type: stdout\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	framesPath := filepath.Join(t.TempDir(), "frames.log")
	noise := false
	seed := uint64(7)

	c := NewConfig()
	c.Transmitter.Protocol = telemetry.Level1
	c.Transmitter.Interval = config.Duration(time.Millisecond)
	c.Transmitter.MaxTicks = 5
	c.Transmitter.Seed = &seed
	c.Transmitter.Noise = &noise
	c.Outputs = []OutputConfig{{Type: OutputStdout}, {Type: OutputFile, Path: framesPath}}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(context.Background(), c, logger); err != nil {
		t.Fatalf("run: %v", err)
	}

	fromFile, err := os.ReadFile(framesPath)
	if err != nil {
		t.Fatalf("read frames: %v", err)
	}
	if !bytes.Equal(fromFile, out.Bytes()) {
		t.Errorf("outputs differ:\n%s\n%s", fromFile, out.Bytes())
	}

	var count int
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		record, err := frame.Decode(scanner.Text())
		if err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		if record.Protocol() != telemetry.Level1 {
			t.Errorf("unexpected protocol %s", record.Protocol())
		}
		count++
	}
	if count != 5 {
		t.Errorf("expected 5 frames, got %d", count)
	}
}

func TestRun_OutputError(t *testing.T) {
	c := NewConfig()
	c.Outputs = []OutputConfig{{Type: OutputFile, Path: filepath.Join(t.TempDir(), "missing", "frames.log")}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := Run(context.Background(), c, logger)
	if err == nil || !strings.Contains(err.Error(), "file#0") {
		t.Fatalf("expected output creation error, got %v", err)
	}
}

func TestRun_ClosedPipe(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	pr.Close()
	t.Cleanup(func() { pw.Close() })

	stdout = pw
	t.Cleanup(func() { stdout = os.Stdout })

	c := NewConfig()
	c.Transmitter.Interval = config.Duration(time.Millisecond)
	c.Transmitter.MaxTicks = 5

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err = Run(context.Background(), c, logger)
	if !errors.Is(err, scheduler.ErrOutput) {
		t.Fatalf("expected ErrOutput, got %v", err)
	}
	if !errors.Is(err, syscall.EPIPE) {
		t.Errorf("expected EPIPE to be kept, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(ctx, NewConfig(), logger); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 1 || !strings.HasPrefix(lines[0], "$L2,0,") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
