package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/export"
	"github.com/roman-kulish/flight-telemetry/internal/frame"
	"github.com/roman-kulish/flight-telemetry/internal/storage"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
	"github.com/roman-kulish/flight-telemetry/internal/transport"
)

// stdout is replaced in tests
var stdout io.Writer = os.Stdout

// pipeline hands every received record to storage, the exporters, the live
// clients and the console. Records are stored in batches.
type pipeline struct {
	// storage writes outlive the cancellation of the receive loop, so the
	// last batch is never lost
	ctx context.Context

	store      *storage.SqliteStore
	sessionID  int64
	maxBatch   int
	flushEvery time.Duration

	writers []export.Writer
	live    transport.Sink
	echo    io.Writer
	latest  *telemetry.Latest
	logger  *slog.Logger

	batch   []telemetry.Record
	handled atomic.Int64
	stored  atomic.Int64
}

func newPipeline(ctx context.Context, logger *slog.Logger) *pipeline {
	return &pipeline{
		ctx:    context.WithoutCancel(ctx),
		latest: &telemetry.Latest{},
		logger: logger,
	}
}

// run consumes records until the channel is closed, then stores the pending
// batch. Only a storage failure stops it early.
func (p *pipeline) run(records <-chan telemetry.Record) error {
	var flush <-chan time.Time
	if p.store != nil {
		ticker := time.NewTicker(p.flushEvery)
		defer ticker.Stop()
		flush = ticker.C
	}

	for {
		select {
		case r, ok := <-records:
			if !ok {
				return p.flush()
			}
			if err := p.handle(r); err != nil {
				return err
			}

		case <-flush:
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
}

func (p *pipeline) handle(r telemetry.Record) error {
	p.latest.Set(r)
	p.handled.Add(1)

	for _, w := range p.writers {
		if err := w.Write(p.ctx, r); err != nil {
			if errors.Is(err, export.ErrProtocolMismatch) {
				p.logger.Debug("record not exported", slog.String("error", err.Error()))
			} else {
				p.logger.Warn("export failed", slog.String("error", err.Error()))
			}
		}
	}

	if p.live != nil {
		if b, err := frame.Marshal(r); err == nil {
			_ = p.live.Send(b)
		}
	}

	if p.echo != nil {
		if line, err := echoLine(r); err == nil {
			_, _ = fmt.Fprintln(p.echo, line)
		}
	}

	if p.store == nil {
		return nil
	}
	p.batch = append(p.batch, r)
	if len(p.batch) >= p.maxBatch {
		return p.flush()
	}
	return nil
}

func (p *pipeline) flush() error {
	if p.store == nil || len(p.batch) == 0 {
		return nil
	}

	if err := p.store.StoreRecords(p.ctx, p.sessionID, time.Now().UTC(), p.batch); err != nil {
		return fmt.Errorf("storing records: %w", err)
	}

	p.stored.Add(int64(len(p.batch)))
	p.logger.Debug("records stored", slog.Int("count", len(p.batch)))
	p.batch = p.batch[:0]
	return nil
}

// corrupt keeps a rejected line for later inspection. It is called from the
// receive loop.
func (p *pipeline) corrupt(line string, err error) {
	if p.store == nil {
		return
	}
	if err := p.store.StoreCorrupt(p.ctx, p.sessionID, time.Now().UTC(), line, frame.Reason(err)); err != nil {
		p.logger.Error("failed to store corrupt frame", slog.String("error", err.Error()))
	}
}

// status logs progress until ctx is done
func (p *pipeline) status(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			attrs := []any{slog.Int64("records", p.handled.Load()), slog.Int64("stored", p.stored.Load())}
			if r := p.latest.Get(); r != nil {
				attrs = append(attrs, slog.String("protocol", r.Protocol().String()), slog.Int64("lastMillis", r.Millis()))
			}
			p.logger.Info("receiver status", attrs...)
		}
	}
}

// echoLine renders a record for the console with its wire formatted fields
func echoLine(r telemetry.Record) (string, error) {
	payload, err := frame.Payload(r)
	if err != nil {
		return "", err
	}

	f := strings.Split(payload, string(frame.FieldSeparator))
	switch r.Protocol() {
	case telemetry.Level1:
		return fmt.Sprintf("[%s ms] ACC=(%s,%s,%s)  GYRO=(%s,%s,%s)  ALT=%s  TEMP=%s",
			f[1], f[2], f[3], f[4], f[5], f[6], f[7], f[8], f[9]), nil
	default:
		return fmt.Sprintf("[%s ms] ROLL=%s  PITCH=%s  HEADING=%s  ALT=%s  TEMP=%s",
			f[1], f[2], f[3], f[4], f[5], f[6]), nil
	}
}
