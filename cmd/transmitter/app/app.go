package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roman-kulish/flight-telemetry/internal/ahrs"
	"github.com/roman-kulish/flight-telemetry/internal/metrics"
	"github.com/roman-kulish/flight-telemetry/internal/scheduler"
	"github.com/roman-kulish/flight-telemetry/internal/sensors"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink, listeners, err := createOutputs(config.Outputs, logger)
	if err != nil {
		return fmt.Errorf("failed to create outputs: %w", err)
	}
	defer func() {
		err = errors.Join(err, sink.Close())
	}()

	m := metrics.New()

	loop, err := createLoop(config, sink, m, logger)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var serveErrs []error
	serve := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("server stopped", slog.String("server", name), slog.String("error", err.Error()))

				mu.Lock()
				serveErrs = append(serveErrs, err)
				mu.Unlock()
				cancel() // a transmitter without its listeners is of no use
			}
		}()
	}

	for _, l := range listeners {
		logger.Info("serving websocket", slog.String("listen", l.addr))
		serve("websocket", func(ctx context.Context) error { return l.hub.Serve(ctx, l.addr) })
	}
	if config.Metrics.Listen != "" {
		logger.Info("serving metrics", slog.String("listen", config.Metrics.Listen))
		serve("metrics", func(ctx context.Context) error { return m.Serve(ctx, config.Metrics.Listen) })
	}

	err = loop.Run(ctx)

	cancel()
	wg.Wait()
	return errors.Join(err, errors.Join(serveErrs...))
}

func createLoop(config *Config, sink scheduler.Sink, m *metrics.Metrics, logger *slog.Logger) (*scheduler.Loop, error) {
	tc := config.Transmitter

	strategy, err := scheduler.ParseStrategy(tc.Strategy)
	if err != nil {
		return nil, err
	}

	var profile sensors.Profile
	switch tc.Protocol {
	case telemetry.Level1:
		profile = sensors.ProfileLevel1
	case telemetry.Level2:
		profile = sensors.ProfileLevel2
	default:
		return nil, fmt.Errorf("unsupported protocol %s", tc.Protocol)
	}

	var imuOpts, envOpts []sensors.Option
	if tc.Seed != nil {
		imuOpts = append(imuOpts, sensors.WithSeed(*tc.Seed))
		envOpts = append(envOpts, sensors.WithSeed(*tc.Seed+1))
	}
	if tc.Noise != nil && !*tc.Noise {
		imuOpts = append(imuOpts, sensors.WithoutNoise())
		envOpts = append(envOpts, sensors.WithoutNoise())
	}

	filterOpts := []func(*ahrs.Filter){ahrs.WithMode(config.Filter.Mode)}
	if config.Filter.Beta != nil {
		filterOpts = append(filterOpts, ahrs.WithBeta(*config.Filter.Beta))
	}
	filter := ahrs.NewFilter(filterOpts...)

	logger.Info("sensors ready",
		slog.String("protocol", tc.Protocol.String()),
		slog.String("filter", config.Filter.Mode.String()),
		slog.Bool("noise", tc.Noise == nil || *tc.Noise))

	return scheduler.NewLoop(
		sensors.NewSimulator(profile, imuOpts...),
		sensors.NewEnvironment(profile, envOpts...),
		filter,
		sink,
		scheduler.WithProtocol(tc.Protocol),
		scheduler.WithInterval(tc.Interval.Duration()),
		scheduler.WithStrategy(strategy),
		scheduler.WithMaxTicks(tc.MaxTicks),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(m),
	), nil
}
