package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-telemetry/internal/export"
	"github.com/roman-kulish/flight-telemetry/internal/metrics"
	"github.com/roman-kulish/flight-telemetry/internal/receiver"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
	"github.com/roman-kulish/flight-telemetry/internal/transport"
)

const recordQueueSize = 64

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in, source, err := openInput(&config.Input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	p := newPipeline(ctx, logger)
	if config.Echo {
		p.echo = stdout
	}

	if config.Storage != nil {
		store, dbPath, serr := createStorage(config.Storage)
		if serr != nil {
			return fmt.Errorf("failed to create storage: %w", serr)
		}
		defer func() {
			err = errors.Join(err, store.Close())
		}()

		sessionID, serr := store.CreateSession(ctx, config.Protocol.String(), source, config)
		if serr != nil {
			return fmt.Errorf("creating session: %w", serr)
		}

		p.store = store
		p.sessionID = sessionID
		p.maxBatch = config.Storage.MaxBatchSize
		p.flushEvery = config.Storage.FlushInterval.Duration()

		logger.Info("storing records", slog.String("path", dbPath), slog.Int64("session", sessionID))
	}

	writers, err := createWriters(config)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range writers {
			err = errors.Join(err, w.Close())
		}
	}()
	p.writers = writers

	m := metrics.New()

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
				cancel()
			}
		}()
	}

	if config.Live.Listen != "" {
		hub := transport.NewHub(transport.WithHubLogger(logger))
		p.live = hub

		logger.Info("serving live frames", slog.String("listen", config.Live.Listen), slog.String("path", transport.HubPath))
		serve("live", func(ctx context.Context) error { return hub.Serve(ctx, config.Live.Listen) })
	}
	if config.Metrics.Listen != "" {
		logger.Info("serving metrics", slog.String("listen", config.Metrics.Listen))
		serve("metrics", func(ctx context.Context) error { return m.Serve(ctx, config.Metrics.Listen) })
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.status(ctx, config.Settings.StatusInterval.Duration())
	}()
	go func() {
		// unblocks a pending read
		defer wg.Done()
		<-ctx.Done()
		_ = in.Close()
	}()

	records := make(chan telemetry.Record, recordQueueSize)
	pipeErr := make(chan error, 1)
	go func() {
		err := p.run(records)
		if err != nil {
			cancel()
		}
		pipeErr <- err
	}()

	recv := receiver.NewReceiver(
		receiver.WithLogger(logger),
		receiver.WithMetrics(m),
		receiver.WithCorruptHandler(p.corrupt),
		receiver.WithCorruptThreshold(config.Settings.CorruptThreshold),
	)

	logger.Info("receiver started",
		slog.String("input", string(config.Input.Type)),
		slog.String("source", source),
		slog.String("protocol", config.Protocol.String()))

	stats, recvErr := recv.Receive(ctx, in, records)
	close(records)
	runErr := <-pipeErr

	cancel()
	wg.Wait()

	logger.Info("receiver stopped",
		slog.Group("stats",
			slog.String("frames", humanize.Comma(int64(stats.Frames))),
			slog.String("valid", humanize.Comma(int64(stats.Valid))),
			slog.String("corrupt", humanize.Comma(int64(stats.Corrupt))),
			slog.String("stored", humanize.Comma(p.stored.Load())),
		))

	return errors.Join(recvErr, runErr, errors.Join(serveErrs...))
}

func createWriters(config *Config) ([]export.Writer, error) {
	var writers []export.Writer

	if config.CSV != nil {
		w, err := export.CreateCSV(config.CSV.Path, config.Protocol)
		if err != nil {
			return nil, fmt.Errorf("failed to create csv writer: %w", err)
		}
		writers = append(writers, w)
	}

	if config.Influx != nil {
		w, err := export.NewInfluxWriter(*config.Influx)
		if err != nil {
			for _, w := range writers {
				_ = w.Close()
			}
			return nil, fmt.Errorf("failed to create influx writer: %w", err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}
