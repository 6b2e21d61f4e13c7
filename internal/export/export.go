// Package export writes decoded records to tabular and time series sinks.
package export

import (
	"context"
	"errors"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

// ErrProtocolMismatch is returned for a record of a protocol the writer was
// not created for.
var ErrProtocolMismatch = errors.New("record protocol does not match writer")

// Writer accepts decoded records one at a time.
type Writer interface {
	Write(ctx context.Context, r telemetry.Record) error
	Close() error
}

// Header returns the column names of protocol p, timestamp first. Level-2
// spells out altitude and temperature, as dashboards of that format expect.
func Header(p telemetry.Protocol) []string {
	switch p {
	case telemetry.Level1:
		return []string{"timestamp_ms", "ax", "ay", "az", "gx", "gy", "gz", "alt", "temp"}
	case telemetry.Level2:
		return []string{"timestamp_ms", "roll", "pitch", "heading", "altitude", "temperature"}
	default:
		return nil
	}
}
