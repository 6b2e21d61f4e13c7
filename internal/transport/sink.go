// Package transport moves frames between the transmitter and its receivers:
// writers, files, serial ports, MQTT and websocket clients.
package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink accepts complete frames. Send writes one frame as a single unit.
type Sink interface {
	Send(frame []byte) error
	Close() error
}

type flusher interface {
	Flush() error
}

// WriterSink writes frames to an io.Writer, flushing after every frame when
// the writer is buffered.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewWriterSink wraps w. Close flushes w but does not close it.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if f, ok := s.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush frame: %w", err)
		}
	}
	return nil
}

func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if f, ok := s.w.(flusher); ok {
		err = f.Flush()
	}
	if s.c != nil {
		err = errors.Join(err, s.c.Close())
	}
	return err
}

// MultiSink sends every frame to all of its sinks.
type MultiSink struct {
	sinks []Sink
}

func Multi(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Send delivers the frame to every sink, even when some of them fail, and
// returns the joined errors.
func (m *MultiSink) Send(frame []byte) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OptionalSink never fails. The first error of a failure streak is logged,
// the rest are dropped until a frame goes through again.
type OptionalSink struct {
	sink    Sink
	name    string
	logger  *slog.Logger
	failing bool
}

func Optional(name string, sink Sink, logger *slog.Logger) *OptionalSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &OptionalSink{sink: sink, name: name, logger: logger}
}

func (o *OptionalSink) Send(frame []byte) error {
	err := o.sink.Send(frame)

	switch {
	case err != nil && !o.failing:
		o.failing = true
		o.logger.Warn("optional output failing, frames are dropped", slog.String("output", o.name), slog.String("error", err.Error()))
	case err == nil && o.failing:
		o.failing = false
		o.logger.Info("optional output recovered", slog.String("output", o.name))
	}

	return nil
}

func (o *OptionalSink) Close() error {
	if err := o.sink.Close(); err != nil {
		o.logger.Warn("failed to close optional output", slog.String("output", o.name), slog.String("error", err.Error()))
	}
	return nil
}
