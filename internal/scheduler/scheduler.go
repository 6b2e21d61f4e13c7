// Package scheduler drives the sensor, filter and encoder pipeline at a fixed
// rate and writes one frame per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-telemetry/internal/ahrs"
	"github.com/roman-kulish/flight-telemetry/internal/frame"
	"github.com/roman-kulish/flight-telemetry/internal/metrics"
	"github.com/roman-kulish/flight-telemetry/internal/sensors"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

const (
	// FixedSleep sleeps for the whole interval after every tick. Processing
	// time is not subtracted, so the schedule drifts late over long runs.
	FixedSleep Strategy = "fixed"

	// NextDeadline sleeps until the next multiple of the interval from the
	// boot reference, absorbing processing time.
	NextDeadline Strategy = "deadline"

	DefaultInterval = 50 * time.Millisecond
)

// ErrOutput marks a failure to write a frame. It ends the loop.
var ErrOutput = errors.New("output failed")

// Strategy selects how the loop waits for the next tick.
type Strategy string

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case FixedSleep, "":
		return FixedSleep, nil
	case NextDeadline:
		return NextDeadline, nil
	default:
		return "", fmt.Errorf("scheduler: unknown strategy %q", s)
	}
}

// Sink receives complete, newline terminated frames.
type Sink interface {
	Send(frame []byte) error
}

// Estimator is the orientation filter driven by the loop.
type Estimator interface {
	Update(s sensors.Sample, dt float64)
	Euler() ahrs.Euler
}

// WithProtocol sets the protocol of the emitted frames. Default is Level-2.
func WithProtocol(p telemetry.Protocol) func(*Loop) {
	return func(l *Loop) {
		l.protocol = p
	}
}

// WithInterval sets the tick interval
func WithInterval(d time.Duration) func(*Loop) {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithStrategy(s Strategy) func(*Loop) {
	return func(l *Loop) {
		l.strategy = s
	}
}

func WithClock(c Clock) func(*Loop) {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithMaxTicks stops the loop after n ticks. Zero runs until cancelled.
func WithMaxTicks(n int) func(*Loop) {
	return func(l *Loop) {
		l.maxTicks = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Loop) {
	return func(l *Loop) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) func(*Loop) {
	return func(l *Loop) {
		l.metrics = m
	}
}

// Loop is the transmitter main loop. It is not safe for concurrent use; Run
// owns the filter and the sink for its whole duration.
type Loop struct {
	source sensors.Source
	env    sensors.Environment
	filter Estimator
	sink   Sink

	protocol telemetry.Protocol
	interval time.Duration
	strategy Strategy
	clock    Clock
	maxTicks int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewLoop(source sensors.Source, env sensors.Environment, filter Estimator, sink Sink, options ...func(*Loop)) *Loop {
	l := &Loop{
		source:   source,
		env:      env,
		filter:   filter,
		sink:     sink,
		protocol: telemetry.Level2,
		interval: DefaultInterval,
		strategy: FixedSleep,
		clock:    SystemClock{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(l)
	}

	return l
}

// Run executes ticks until ctx is cancelled or the tick limit is reached,
// both of which return nil. A sink failure stops the loop with an error
// wrapping ErrOutput.
func (l *Loop) Run(ctx context.Context) error {
	boot := l.clock.Now()
	dt := l.interval.Seconds()

	l.logger.Info("transmitter started",
		slog.String("protocol", l.protocol.String()),
		slog.Duration("interval", l.interval),
		slog.String("strategy", string(l.strategy)))

	var sent int64
	defer func() {
		l.logger.Info("transmitter stopped",
			slog.String("frames", humanize.Comma(sent)),
			slog.Duration("uptime", l.clock.Now().Sub(boot)))
	}()

	for tick := 0; l.maxTicks == 0 || tick < l.maxTicks; tick++ {
		if ctx.Err() != nil {
			return nil
		}

		start := l.clock.Now()
		l.metrics.TickLag(max(start.Sub(boot.Add(time.Duration(tick)*l.interval)), 0))

		b, err := l.step(tick, start.Sub(boot).Milliseconds(), dt)
		if err != nil {
			return err
		}

		if err = l.sink.Send(b); err != nil {
			return fmt.Errorf("%w: tick %d: %w", ErrOutput, tick, err)
		}
		sent++
		l.metrics.FrameSent(l.protocol.String())
		l.logger.Debug("frame sent", slog.String("frame", strings.TrimSpace(string(b))))

		if tick == l.maxTicks-1 {
			break
		}

		if err = l.clock.Sleep(ctx, l.wait(boot, tick)); err != nil {
			return nil
		}
	}

	return nil
}

// step samples the sensors, updates the filter and encodes the record of one
// tick.
func (l *Loop) step(tick int, millis int64, dt float64) ([]byte, error) {
	sample := l.source.Read(tick)
	l.filter.Update(sample, dt)
	altitude, temperature := l.env.Read(tick)

	var record telemetry.Record
	switch l.protocol {
	case telemetry.Level1:
		record = telemetry.Raw{
			Timestamp:   millis,
			AccelX:      sample.Ax,
			AccelY:      sample.Ay,
			AccelZ:      sample.Az,
			GyroX:       sample.Gx,
			GyroY:       sample.Gy,
			GyroZ:       sample.Gz,
			Altitude:    altitude,
			Temperature: temperature,
		}

	case telemetry.Level2:
		e := l.filter.Euler()
		record = telemetry.Attitude{
			Timestamp:   millis,
			Roll:        e.Roll,
			Pitch:       e.Pitch,
			Heading:     e.Heading,
			Altitude:    altitude,
			Temperature: temperature,
		}

	default:
		return nil, fmt.Errorf("encoding tick %d: %w: %s", tick, frame.ErrUnknownProtocol, l.protocol)
	}

	b, err := frame.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding tick %d: %w", tick, err)
	}
	return b, nil
}

// wait returns how long to sleep after tick.
func (l *Loop) wait(boot time.Time, tick int) time.Duration {
	if l.strategy != NextDeadline {
		return l.interval
	}

	next := boot.Add(time.Duration(tick+1) * l.interval)
	if d := next.Sub(l.clock.Now()); d > 0 {
		return d
	}
	return 0
}
