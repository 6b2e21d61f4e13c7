package telemetry

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Level1 is the legacy raw sensor protocol carrying accelerometer and
	// gyroscope readings, protected by an XOR checksum.
	Level1 Protocol = iota + 1

	// Level2 is the attitude protocol carrying the filter output, protected
	// by a CRC16-CCITT checksum.
	Level2
)

// Protocol is the telemetry protocol version. It selects both the field set
// of a record and the checksum algorithm of its frame.
type Protocol uint8

// String returns the protocol tag as it appears on the wire.
func (p Protocol) String() string {
	switch p {
	case Level1:
		return "L1"
	case Level2:
		return "L2"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// NumValues returns the number of values following the timestamp.
func (p Protocol) NumValues() int {
	switch p {
	case Level1:
		return 8
	case Level2:
		return 5
	default:
		return 0
	}
}

// ParseProtocol parses a wire tag such as "L2". Matching is case-insensitive.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L1":
		return Level1, nil
	case "L2":
		return Level2, nil
	default:
		return 0, fmt.Errorf("telemetry: unknown protocol %q", s)
	}
}

func (p *Protocol) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseProtocol(value.Value)
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}

func (p Protocol) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Record is one immutable telemetry tuple. Values are listed in wire order
// and exclude the timestamp.
type Record interface {
	Protocol() Protocol
	Millis() int64
	Values() []float64
}

// Raw is a Level-1 record of raw sensor readings
type Raw struct {
	Timestamp   int64   `json:"timestampMs"` // Milliseconds since boot
	AccelX      float64 `json:"ax"`          // X-axis acceleration in m/s²
	AccelY      float64 `json:"ay"`          // Y-axis acceleration in m/s²
	AccelZ      float64 `json:"az"`          // Z-axis acceleration in m/s²
	GyroX       float64 `json:"gx"`          // X-axis angular rate in deg/s
	GyroY       float64 `json:"gy"`          // Y-axis angular rate in deg/s
	GyroZ       float64 `json:"gz"`          // Z-axis angular rate in deg/s
	Altitude    float64 `json:"alt"`         // Altitude in meters
	Temperature float64 `json:"temp"`        // Temperature in °C
}

func (r Raw) Protocol() Protocol { return Level1 }
func (r Raw) Millis() int64      { return r.Timestamp }

func (r Raw) Values() []float64 {
	return []float64{r.AccelX, r.AccelY, r.AccelZ, r.GyroX, r.GyroY, r.GyroZ, r.Altitude, r.Temperature}
}

// Attitude is a Level-2 record of the orientation estimate
type Attitude struct {
	Timestamp   int64   `json:"timestampMs"` // Milliseconds since boot
	Roll        float64 `json:"roll"`        // Roll angle in degrees
	Pitch       float64 `json:"pitch"`       // Pitch angle in degrees
	Heading     float64 `json:"heading"`     // Heading angle in degrees
	Altitude    float64 `json:"alt"`         // Altitude in meters
	Temperature float64 `json:"temp"`        // Temperature in °C
}

func (a Attitude) Protocol() Protocol { return Level2 }
func (a Attitude) Millis() int64      { return a.Timestamp }

func (a Attitude) Values() []float64 {
	return []float64{a.Roll, a.Pitch, a.Heading, a.Altitude, a.Temperature}
}

// NewRecord builds the record variant of protocol p from values in wire order.
func NewRecord(p Protocol, millis int64, values []float64) (Record, error) {
	if n := p.NumValues(); n == 0 {
		return nil, fmt.Errorf("telemetry: unknown protocol %s", p)
	} else if len(values) != n {
		return nil, fmt.Errorf("telemetry: %s record takes %d values, %d given", p, n, len(values))
	}

	v := values
	if p == Level1 {
		return Raw{
			Timestamp: millis,
			AccelX:    v[0], AccelY: v[1], AccelZ: v[2],
			GyroX: v[3], GyroY: v[4], GyroZ: v[5],
			Altitude:    v[6],
			Temperature: v[7],
		}, nil
	}

	return Attitude{
		Timestamp:   millis,
		Roll:        v[0],
		Pitch:       v[1],
		Heading:     v[2],
		Altitude:    v[3],
		Temperature: v[4],
	}, nil
}
