package scheduler

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/ahrs"
	"github.com/roman-kulish/flight-telemetry/internal/frame"
	"github.com/roman-kulish/flight-telemetry/internal/metrics"
	"github.com/roman-kulish/flight-telemetry/internal/sensors"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

// fakeClock advances only when the loop sleeps or a slowSource reads.
type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int) error
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		return c.onSleep(len(c.sleeps))
	}
	return ctx.Err()
}

// slowSource spends work of clock time on every read.
type slowSource struct {
	sensors.Source
	clock *fakeClock
	work  time.Duration
}

func (s slowSource) Read(tick int) sensors.Sample {
	s.clock.now = s.clock.now.Add(s.work)
	return s.Source.Read(tick)
}

type bufferSink struct {
	frames []string
	failAt int
}

func (b *bufferSink) Send(f []byte) error {
	if b.failAt > 0 && len(b.frames) == b.failAt {
		return errors.New("broken pipe")
	}
	b.frames = append(b.frames, string(f))
	return nil
}

type flatEnvironment struct{}

func (flatEnvironment) Read(tick int) (float64, float64) {
	return 100 + float64(tick), 30
}

var yawing = sensors.Constant{Sample: sensors.Sample{Az: 1, Gz: 10, Mx: 1}}

func decodeAll(t *testing.T, frames []string) []telemetry.Record {
	t.Helper()

	records := make([]telemetry.Record, 0, len(frames))
	for _, f := range frames {
		if !strings.HasSuffix(f, "\n") {
			t.Fatalf("frame is not newline terminated: %q", f)
		}
		r, err := frame.Decode(f)
		if err != nil {
			t.Fatalf("decode %q: %v", f, err)
		}
		records = append(records, r)
	}
	return records
}

func TestLoop_ConstantYawRate(t *testing.T) {
	clock := newFakeClock()
	sink := &bufferSink{}

	loop := NewLoop(yawing, flatEnvironment{}, ahrs.NewFilter(), sink,
		WithClock(clock),
		WithMaxTicks(20))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.frames) != 20 {
		t.Fatalf("expected 20 frames, got %d", len(sink.frames))
	}
	if len(clock.sleeps) != 19 {
		t.Errorf("expected no sleep after the last tick, got %d sleeps", len(clock.sleeps))
	}

	var prev float64
	for i, r := range decodeAll(t, sink.frames) {
		a, ok := r.(telemetry.Attitude)
		if !ok {
			t.Fatalf("expected Level-2 record, got %T", r)
		}
		if want := int64(i) * 50; a.Timestamp != want {
			t.Errorf("tick %d: expected timestamp %d, got %d", i, want, a.Timestamp)
		}
		if step := a.Heading - prev; math.Abs(step-0.5) > 0.011 {
			t.Errorf("tick %d: expected heading step of 0.5, got %.3f", i, step)
		}
		if a.Altitude != 100+float64(i) || a.Temperature != 30 {
			t.Errorf("tick %d: unexpected environment %.2f/%.2f", i, a.Altitude, a.Temperature)
		}
		prev = a.Heading
	}

	if math.Abs(prev-10) > 0.02 {
		t.Errorf("expected final heading of 10, got %.2f", prev)
	}
}

func TestLoop_Level1(t *testing.T) {
	sink := &bufferSink{}
	source := sensors.Constant{Sample: sensors.Sample{Ax: 0.1, Ay: -0.2, Az: 9.81, Gx: 1, Gy: 2, Gz: 3, Mx: 1}}

	loop := NewLoop(source, flatEnvironment{}, ahrs.NewFilter(), sink,
		WithProtocol(telemetry.Level1),
		WithClock(newFakeClock()),
		WithMaxTicks(3))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := decodeAll(t, sink.frames)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	want := telemetry.Raw{Timestamp: 100, AccelX: 0.1, AccelY: -0.2, AccelZ: 9.81, GyroX: 1, GyroY: 2, GyroZ: 3, Altitude: 102, Temperature: 30}
	if records[2] != want {
		t.Errorf("expected %+v, got %+v", want, records[2])
	}
	if !strings.HasPrefix(sink.frames[0], "$L1,0,0.100,-0.200,9.810,1.000,2.000,3.000,100.00,30.00*") {
		t.Errorf("unexpected frame %q", sink.frames[0])
	}
}

func TestLoop_Strategies(t *testing.T) {
	testCases := []struct {
		strategy   Strategy
		timestamps []int64
		sleep      time.Duration
	}{
		{FixedSleep, []int64{0, 60, 120, 180}, 50 * time.Millisecond},
		{NextDeadline, []int64{0, 50, 100, 150}, 40 * time.Millisecond},
	}

	for _, tc := range testCases {
		t.Run(string(tc.strategy), func(t *testing.T) {
			clock := newFakeClock()
			sink := &bufferSink{}
			source := slowSource{Source: yawing, clock: clock, work: 10 * time.Millisecond}

			loop := NewLoop(source, flatEnvironment{}, ahrs.NewFilter(), sink,
				WithClock(clock),
				WithStrategy(tc.strategy),
				WithMaxTicks(len(tc.timestamps)))

			if err := loop.Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for i, r := range decodeAll(t, sink.frames) {
				if r.Millis() != tc.timestamps[i] {
					t.Errorf("tick %d: expected timestamp %d, got %d", i, tc.timestamps[i], r.Millis())
				}
			}
			for i, d := range clock.sleeps {
				if d != tc.sleep {
					t.Errorf("sleep %d: expected %s, got %s", i, tc.sleep, d)
				}
			}
		})
	}
}

func TestLoop_DeadlineOverrun(t *testing.T) {
	clock := newFakeClock()
	source := slowSource{Source: yawing, clock: clock, work: 70 * time.Millisecond}

	loop := NewLoop(source, flatEnvironment{}, ahrs.NewFilter(), &bufferSink{},
		WithClock(clock),
		WithStrategy(NextDeadline),
		WithMaxTicks(3))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, d := range clock.sleeps {
		if d != 0 {
			t.Errorf("sleep %d: expected no wait when behind schedule, got %s", i, d)
		}
	}
}

func TestLoop_OutputFailure(t *testing.T) {
	sink := &bufferSink{failAt: 5}
	m := metrics.New()

	loop := NewLoop(yawing, flatEnvironment{}, ahrs.NewFilter(), sink,
		WithClock(newFakeClock()),
		WithMetrics(m))

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrOutput) {
		t.Fatalf("expected ErrOutput, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("expected the sink error to be kept, got %v", err)
	}
	if len(sink.frames) != 5 {
		t.Errorf("expected 5 frames before the failure, got %d", len(sink.frames))
	}
}

func TestLoop_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := newFakeClock()
	clock.onSleep = func(n int) error {
		if n == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	sink := &bufferSink{}

	loop := NewLoop(yawing, flatEnvironment{}, ahrs.NewFilter(), sink, WithClock(clock))

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("expected clean stop on cancellation, got %v", err)
	}
	if len(sink.frames) != 3 {
		t.Errorf("expected 3 frames, got %d", len(sink.frames))
	}
}

func TestLoop_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &bufferSink{}
	if err := NewLoop(yawing, flatEnvironment{}, ahrs.NewFilter(), sink).Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.frames) != 0 {
		t.Errorf("expected no frames, got %d", len(sink.frames))
	}
}

func TestLoop_UnknownProtocol(t *testing.T) {
	loop := NewLoop(yawing, flatEnvironment{}, ahrs.NewFilter(), &bufferSink{},
		WithProtocol(telemetry.Protocol(5)),
		WithClock(newFakeClock()),
		WithMaxTicks(1))

	err := loop.Run(context.Background())
	if !errors.Is(err, frame.ErrUnknownProtocol) {
		t.Fatalf("expected ErrUnknownProtocol, got %v", err)
	}
	if errors.Is(err, ErrOutput) {
		t.Errorf("encoding failure must not be reported as output failure")
	}
}

func TestLoop_NonFiniteSample(t *testing.T) {
	faulty := sensors.Constant{Sample: sensors.Sample{Ax: math.NaN(), Az: 1, Mx: 1}}
	sink := &bufferSink{}

	loop := NewLoop(faulty, flatEnvironment{}, ahrs.NewFilter(), sink,
		WithProtocol(telemetry.Level1),
		WithClock(newFakeClock()),
		WithMaxTicks(3))

	err := loop.Run(context.Background())
	if !errors.Is(err, frame.ErrBadField) {
		t.Fatalf("expected ErrBadField, got %v", err)
	}
	if len(sink.frames) != 0 {
		t.Errorf("expected no frames sent, got %q", sink.frames)
	}
}

func TestParseStrategy(t *testing.T) {
	testCases := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", FixedSleep, false},
		{"fixed", FixedSleep, false},
		{"Deadline", NextDeadline, false},
		{"adaptive", "", true},
	}

	for _, tc := range testCases {
		got, err := ParseStrategy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: unexpected error state: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestSystemClock_Sleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (SystemClock{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := (SystemClock{}).Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
