package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

const (
	StartDelimiter    = '$'
	ChecksumDelimiter = '*'
	FieldSeparator    = ','
	Terminator        = '\n'
)

// precisions lists the decimal places of each value after the timestamp.
// They are part of the wire contract.
var precisions = map[telemetry.Protocol][]int{
	telemetry.Level1: {3, 3, 3, 3, 3, 3, 2, 2}, // ax ay az gx gy gz alt temp
	telemetry.Level2: {2, 2, 2, 2, 2},          // roll pitch heading alt temp
}

// Payload formats r as the checksummed part of a frame: the protocol tag,
// the integer timestamp and the fixed-precision values, comma separated.
// A NaN or infinite value is rejected with ErrBadField, since no frame could
// carry it.
func Payload(r telemetry.Record) (string, error) {
	p := r.Protocol()

	prec, ok := precisions[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProtocol, p)
	}

	values := r.Values()
	if len(values) != len(prec) {
		return "", fmt.Errorf("frame: %s record has %d values, expected %d", p, len(values), len(prec))
	}

	var sb strings.Builder
	sb.Grow(8 * (len(values) + 2))

	sb.WriteString(p.String())
	sb.WriteByte(FieldSeparator)
	sb.WriteString(strconv.FormatInt(r.Millis(), 10))

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("frame: %s value %d: %w: %v", p, i, ErrBadField, v)
		}
		sb.WriteByte(FieldSeparator)
		sb.WriteString(strconv.FormatFloat(v, 'f', prec[i], 64))
	}

	return sb.String(), nil
}

// Encode returns the frame of r without line terminator: $<payload>*<checksum>
func Encode(r telemetry.Record) (string, error) {
	payload, err := Payload(r)
	if err != nil {
		return "", err
	}

	sum, err := Checksum(r.Protocol(), payload)
	if err != nil {
		return "", err
	}

	return string(StartDelimiter) + payload + string(ChecksumDelimiter) + sum, nil
}

// Marshal returns the newline terminated frame of r, ready to be written to
// the link as one complete unit.
func Marshal(r telemetry.Record) ([]byte, error) {
	f, err := Encode(r)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, len(f)+1)
	b = append(b, f...)
	return append(b, Terminator), nil
}
