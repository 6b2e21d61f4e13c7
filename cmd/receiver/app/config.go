package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/config"
	"github.com/roman-kulish/flight-telemetry/internal/export"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
	"github.com/roman-kulish/flight-telemetry/internal/transport"
)

const (
	InputStdin  InputType = "stdin"
	InputFile   InputType = "file"
	InputSerial InputType = "serial"
	InputMQTT   InputType = "mqtt"

	defaultMaxBatchSize   = 100
	defaultFlushInterval  = config.Duration(time.Second)
	defaultStatusInterval = config.Duration(10 * time.Second)
)

type InputType string

// Config represents the receiver configuration
type Config struct {
	Settings Settings             `yaml:"settings"`
	Input    InputConfig          `yaml:"input"`
	Protocol telemetry.Protocol   `yaml:"protocol"` // Expected protocol, recorded in the session and the CSV header
	Storage  *StorageConfig       `yaml:"storage"`
	CSV      *CSVConfig           `yaml:"csv"`
	Influx   *export.InfluxConfig `yaml:"influx"`
	Live     LiveConfig           `yaml:"live"`
	Metrics  MetricsConfig        `yaml:"metrics"`
	Echo     bool                 `yaml:"echo"` // Print every record in a human friendly form
}

// Settings represents global application settings
type Settings struct {
	LogLevel         string          `yaml:"logLevel"`
	CorruptThreshold int             `yaml:"corruptThreshold"` // Consecutive corrupt frames before giving up, 0 never
	StatusInterval   config.Duration `yaml:"statusInterval"`
}

// InputConfig represents the frame source. Only the fields of its type are
// read.
type InputConfig struct {
	Type   InputType              `yaml:"type"`
	Path   string                 `yaml:"path"`
	Serial transport.SerialConfig `yaml:"serial"`
	MQTT   transport.MQTTConfig   `yaml:"mqtt"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string          `yaml:"dataDirectory"`
	MaxBatchSize  int             `yaml:"maxBatchSize"`
	FlushInterval config.Duration `yaml:"flushInterval"`
}

type CSVConfig struct {
	Path string `yaml:"path"`
}

// LiveConfig enables re-broadcasting of valid frames to websocket clients
type LiveConfig struct {
	Listen string `yaml:"listen"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// NewConfig returns the configuration used without a file: Level-2 frames
// from stdin, echoed to stdout.
func NewConfig() *Config {
	c := &Config{Echo: true}
	c.setDefaults()
	return c
}

// LoadConfig reads and validates the YAML file at path
func LoadConfig(path string) (*Config, error) {
	c := &Config{}
	if err := config.Load(path, c); err != nil {
		return nil, err
	}

	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Input.Type == "" {
		c.Input.Type = InputStdin
	}
	if c.Protocol == 0 {
		c.Protocol = telemetry.Level2
	}
	if c.Settings.StatusInterval == 0 {
		c.Settings.StatusInterval = defaultStatusInterval
	}
	if c.Storage != nil {
		if c.Storage.MaxBatchSize == 0 {
			c.Storage.MaxBatchSize = defaultMaxBatchSize
		}
		if c.Storage.FlushInterval == 0 {
			c.Storage.FlushInterval = defaultFlushInterval
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := config.ParseLogLevel(c.Settings.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Settings.CorruptThreshold < 0 {
		errs = append(errs, fmt.Errorf("corruptThreshold must not be negative: %d", c.Settings.CorruptThreshold))
	}
	if c.Settings.StatusInterval < 0 {
		errs = append(errs, fmt.Errorf("statusInterval must not be negative: %s", c.Settings.StatusInterval))
	}
	if c.Protocol.NumValues() == 0 {
		errs = append(errs, fmt.Errorf("unsupported protocol %s", c.Protocol))
	}
	if err := c.Input.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("input: %w", err))
	}
	if s := c.Storage; s != nil {
		if s.MaxBatchSize < 1 {
			errs = append(errs, fmt.Errorf("storage: maxBatchSize must be positive: %d", s.MaxBatchSize))
		}
		if s.FlushInterval <= 0 {
			errs = append(errs, fmt.Errorf("storage: flushInterval must be positive: %s", s.FlushInterval))
		}
	}
	if c.CSV != nil && c.CSV.Path == "" {
		errs = append(errs, errors.New("csv: path is required"))
	}
	if c.Influx != nil {
		if err := c.Influx.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (i *InputConfig) Validate() error {
	switch i.Type {
	case InputStdin:
		return nil
	case InputFile:
		if i.Path == "" {
			return errors.New("file: path is required")
		}
		return nil
	case InputSerial:
		return i.Serial.Validate()
	case InputMQTT:
		return i.MQTT.Validate()
	default:
		return fmt.Errorf("unknown input type '%s'", i.Type)
	}
}
