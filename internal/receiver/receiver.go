// Package receiver decodes a stream of telemetry frames. A corrupt frame is
// reported and skipped; it never ends the stream.
package receiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/roman-kulish/flight-telemetry/internal/frame"
	"github.com/roman-kulish/flight-telemetry/internal/metrics"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

const (
	maxLineLength = 4 * 1024

	// maxLinePrefix bounds the part of an over-long line kept for reporting
	maxLinePrefix = 64
)

var (
	// ErrBrokenPipe is returned when reading the input fails
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrTooManyCorrupt is returned when the number of consecutive corrupt
	// frames reaches the configured threshold
	ErrTooManyCorrupt = errors.New("too many consecutive corrupt frames")
)

// Stats counts the frames seen by one Receive call.
type Stats struct {
	Frames  int
	Valid   int
	Corrupt int
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Receiver) {
	return func(r *Receiver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) func(*Receiver) {
	return func(r *Receiver) {
		r.metrics = m
	}
}

// WithCorruptHandler registers fn to be called with every rejected line.
func WithCorruptHandler(fn func(line string, err error)) func(*Receiver) {
	return func(r *Receiver) {
		r.onCorrupt = fn
	}
}

// WithCorruptThreshold stops the stream after n consecutive corrupt frames.
// Zero, the default, never stops.
func WithCorruptThreshold(n int) func(*Receiver) {
	return func(r *Receiver) {
		r.corruptThreshold = n
	}
}

type Receiver struct {
	logger           *slog.Logger
	metrics          *metrics.Metrics
	onCorrupt        func(line string, err error)
	corruptThreshold int
}

func NewReceiver(options ...func(*Receiver)) *Receiver {
	r := &Receiver{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// Receive reads frames from in, one per line, and sends every valid record to
// records. It returns at the end of the input or when ctx is done. A blocked
// read is not interrupted by ctx; close the input to unblock it.
func (r *Receiver) Receive(ctx context.Context, in io.Reader, records chan<- telemetry.Record) (Stats, error) {
	var stats Stats
	var consecutive int

	reader := bufio.NewReaderSize(in, maxLineLength)

	for {
		line, tooLong, readErr := readLine(reader)
		if ctx.Err() != nil {
			return stats, nil
		}

		line = strings.TrimSpace(line)
		if line != "" || tooLong {
			stats.Frames++

			var record telemetry.Record
			var err error
			if tooLong {
				err = &frame.DecodeError{Line: line, Err: fmt.Errorf("%w: exceeds %d bytes", frame.ErrTooLong, maxLineLength)}
			} else {
				record, err = frame.Decode(line)
			}

			if err != nil {
				stats.Corrupt++
				consecutive++
				r.corrupt(line, err)

				if r.corruptThreshold > 0 && consecutive >= r.corruptThreshold {
					return stats, ErrTooManyCorrupt
				}
			} else {
				consecutive = 0
				stats.Valid++
				r.metrics.FrameReceived(record.Protocol().String())

				select {
				case records <- record:
				case <-ctx.Done():
					return stats, nil
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, fs.ErrClosed) || errors.Is(readErr, io.ErrClosedPipe) {
				return stats, nil
			}
			return stats, fmt.Errorf("%w: error reading frames: %w", ErrBrokenPipe, readErr)
		}
	}
}

// readLine returns the next line including its terminator. A line that does
// not fit the reader buffer is consumed up to the next newline and reported
// as tooLong; only its first maxLinePrefix bytes are returned.
func readLine(reader *bufio.Reader) (line string, tooLong bool, err error) {
	b, err := reader.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return string(b), false, err
	}

	line = string(b[:min(len(b), maxLinePrefix)])
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = reader.ReadSlice('\n')
	}
	return line, true, err
}

func (r *Receiver) corrupt(line string, err error) {
	reason := frame.Reason(err)

	r.metrics.FrameCorrupt(reason)
	r.logger.Warn("corrupt frame", slog.String("reason", reason), slog.String("error", err.Error()), slog.String("line", line))

	if r.onCorrupt != nil {
		r.onCorrupt(line, err)
	}
}
