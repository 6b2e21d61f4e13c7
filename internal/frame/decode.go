package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

var (
	// ErrCorrupt is matched by every error returned from Decode.
	ErrCorrupt = errors.New("corrupt frame")

	ErrMissingStart     = errors.New("missing start delimiter")
	ErrMissingChecksum  = errors.New("missing checksum delimiter")
	ErrBadChecksum      = errors.New("malformed checksum")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnknownProtocol  = errors.New("unknown protocol")
	ErrFieldCount       = errors.New("invalid field count")
	ErrBadField         = errors.New("malformed field")

	// ErrTooLong is reported by readers for a line exceeding their buffer.
	ErrTooLong = errors.New("frame too long")
)

// reasons maps decode errors to short labels for logs and metrics
var reasons = []struct {
	err   error
	label string
}{
	{ErrMissingStart, "missing_start"},
	{ErrMissingChecksum, "missing_checksum"},
	{ErrBadChecksum, "bad_checksum"},
	{ErrChecksumMismatch, "checksum_mismatch"},
	{ErrUnknownProtocol, "unknown_protocol"},
	{ErrFieldCount, "field_count"},
	{ErrBadField, "bad_field"},
	{ErrTooLong, "too_long"},
}

// DecodeError reports a frame rejected by Decode.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCorrupt, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrCorrupt, e.Err}
}

// Reason returns a short label for a decode error, "unknown" otherwise.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "unknown"
}

func corrupt(line string, err error) error {
	return &DecodeError{Line: line, Err: err}
}

// Split separates a frame into its payload, the bytes strictly between '$'
// and '*', and the checksum text following '*'. Surrounding whitespace,
// including the line terminator, is ignored.
func Split(line string) (payload, checksum string, err error) {
	line = strings.TrimSpace(line)

	if line == "" || line[0] != StartDelimiter {
		return "", "", corrupt(line, ErrMissingStart)
	}

	star := strings.IndexByte(line, ChecksumDelimiter)
	if star < 0 {
		return "", "", corrupt(line, ErrMissingChecksum)
	}

	return line[1:star], line[star+1:], nil
}

// Decode validates a frame and returns its record. The protocol tag at the
// start of the payload selects the checksum algorithm and the field set.
// Every failure is a *DecodeError matching ErrCorrupt.
func Decode(line string) (telemetry.Record, error) {
	payload, sumText, err := Split(line)
	if err != nil {
		return nil, err
	}

	tag, _, _ := strings.Cut(payload, string(FieldSeparator))
	p, ok := protocolFromTag(tag)
	if !ok {
		return nil, corrupt(line, fmt.Errorf("%w: %q", ErrUnknownProtocol, tag))
	}

	if len(sumText) != checksumWidth(p) {
		return nil, corrupt(line, fmt.Errorf("%w: %q", ErrBadChecksum, sumText))
	}
	received, err := strconv.ParseUint(sumText, 16, 16)
	if err != nil {
		return nil, corrupt(line, fmt.Errorf("%w: %q", ErrBadChecksum, sumText))
	}

	var computed uint64
	if p == telemetry.Level1 {
		computed = uint64(XOR([]byte(payload)))
	} else {
		computed = uint64(CRC16CCITT([]byte(payload)))
	}
	if received != computed {
		return nil, corrupt(line, fmt.Errorf("%w: received %s, computed %0*X", ErrChecksumMismatch, sumText, checksumWidth(p), computed))
	}

	fields := strings.Split(payload, string(FieldSeparator))
	if want := 2 + p.NumValues(); len(fields) != want {
		return nil, corrupt(line, fmt.Errorf("%w: %s frame has %d fields, expected %d", ErrFieldCount, p, len(fields), want))
	}

	millis, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, corrupt(line, fmt.Errorf("%w: timestamp %q", ErrBadField, fields[1]))
	}

	values := make([]float64, 0, p.NumValues())
	for i, field := range fields[2:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, corrupt(line, fmt.Errorf("%w: field %d %q", ErrBadField, i+2, field))
		}
		values = append(values, v)
	}

	r, err := telemetry.NewRecord(p, millis, values)
	if err != nil {
		return nil, corrupt(line, fmt.Errorf("%w: %w", ErrFieldCount, err))
	}
	return r, nil
}

// protocolFromTag matches the exact wire tag; unlike telemetry.ParseProtocol
// it does not fold case.
func protocolFromTag(tag string) (telemetry.Protocol, bool) {
	switch tag {
	case telemetry.Level1.String():
		return telemetry.Level1, true
	case telemetry.Level2.String():
		return telemetry.Level2, true
	default:
		return 0, false
	}
}
