package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

// InfluxConfig points at an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token" json:"-"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

func (c *InfluxConfig) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("influx: url is required"))
	}
	if c.Org == "" {
		errs = append(errs, errors.New("influx: org is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("influx: bucket is required"))
	}
	return errors.Join(errs...)
}

// InfluxWriter writes one point per record. Record timestamps are relative to
// the transmitter boot, so the boot instant is estimated from the first
// record and its arrival time.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking

	mu   sync.Mutex
	boot time.Time
	now  func() time.Time
}

func NewInfluxWriter(config InfluxConfig) (*InfluxWriter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := influxdb2.NewClient(config.URL, config.Token)

	return &InfluxWriter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Bucket),
		now:      time.Now,
	}, nil
}

func (w *InfluxWriter) Write(ctx context.Context, r telemetry.Record) error {
	w.mu.Lock()
	if w.boot.IsZero() {
		w.boot = w.now().Add(-time.Duration(r.Millis()) * time.Millisecond)
	}
	boot := w.boot
	w.mu.Unlock()

	p, err := toPoint(r, boot)
	if err != nil {
		return err
	}

	if err = w.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx: writing point: %w", err)
	}
	return nil
}

func (w *InfluxWriter) Close() error {
	w.client.Close()
	return nil
}

func toPoint(r telemetry.Record, boot time.Time) (*write.Point, error) {
	ts := boot.Add(time.Duration(r.Millis()) * time.Millisecond)
	tags := map[string]string{"protocol": r.Protocol().String()}

	switch v := r.(type) {
	case telemetry.Raw:
		return influxdb2.NewPoint(
			"imu",
			tags,
			map[string]interface{}{
				"ax":   v.AccelX,
				"ay":   v.AccelY,
				"az":   v.AccelZ,
				"gx":   v.GyroX,
				"gy":   v.GyroY,
				"gz":   v.GyroZ,
				"alt":  v.Altitude,
				"temp": v.Temperature,
			},
			ts,
		), nil

	case telemetry.Attitude:
		return influxdb2.NewPoint(
			"attitude",
			tags,
			map[string]interface{}{
				"roll":    v.Roll,
				"pitch":   v.Pitch,
				"heading": v.Heading,
				"alt":     v.Altitude,
				"temp":    v.Temperature,
			},
			ts,
		), nil

	default:
		return nil, fmt.Errorf("influx: unsupported record type %T", r)
	}
}
