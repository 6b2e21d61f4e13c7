package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/roman-kulish/flight-telemetry/internal/frame"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

// CSVWriter logs records of one protocol as CSV rows, formatted exactly as
// they travel on the wire. Every row is flushed as soon as it is written.
type CSVWriter struct {
	mu       sync.Mutex
	csv      *csv.Writer
	closer   io.Closer
	protocol telemetry.Protocol
	rows     uint64
}

// NewCSVWriter writes the header of protocol p to w.
func NewCSVWriter(w io.Writer, p telemetry.Protocol) (*CSVWriter, error) {
	header := Header(p)
	if header == nil {
		return nil, fmt.Errorf("csv: %w: %s", frame.ErrUnknownProtocol, p)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("csv write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("csv write header: %w", err)
	}

	return &CSVWriter{csv: cw, protocol: p}, nil
}

// CreateCSV creates or truncates the file at path and writes the header.
func CreateCSV(path string, p telemetry.Protocol) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}

	w, err := NewCSVWriter(f, p)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

func (w *CSVWriter) Write(_ context.Context, r telemetry.Record) error {
	if r.Protocol() != w.protocol {
		return fmt.Errorf("csv: %w: %s record, %s writer", ErrProtocolMismatch, r.Protocol(), w.protocol)
	}

	payload, err := frame.Payload(r)
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	// drop the protocol tag
	row := strings.Split(payload, string(frame.FieldSeparator))[1:]

	w.mu.Lock()
	defer w.mu.Unlock()

	if err = w.csv.Write(row); err != nil {
		return fmt.Errorf("csv write row: %w", err)
	}
	w.csv.Flush()
	if err = w.csv.Error(); err != nil {
		return fmt.Errorf("csv write row: %w", err)
	}

	w.rows++
	return nil
}

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.rows
}

// Close flushes remaining data and closes the file opened by CreateCSV.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Flush()
	err := w.csv.Error()
	if w.closer != nil {
		if cErr := w.closer.Close(); cErr != nil && err == nil {
			err = cErr
		}
		w.closer = nil
	}
	return err
}
