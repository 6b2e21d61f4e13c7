package app

import (
	"errors"
	"fmt"

	"github.com/roman-kulish/flight-telemetry/internal/ahrs"
	"github.com/roman-kulish/flight-telemetry/internal/config"
	"github.com/roman-kulish/flight-telemetry/internal/scheduler"
	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
	"github.com/roman-kulish/flight-telemetry/internal/transport"
)

const (
	OutputStdout    OutputType = "stdout"
	OutputFile      OutputType = "file"
	OutputSerial    OutputType = "serial"
	OutputMQTT      OutputType = "mqtt"
	OutputWebsocket OutputType = "websocket"
)

type OutputType string

// Config represents the transmitter configuration
type Config struct {
	Settings    Settings          `yaml:"settings"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	Filter      FilterConfig      `yaml:"filter"`
	Outputs     []OutputConfig    `yaml:"outputs"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// TransmitterConfig controls the tick loop and the simulated sensors
type TransmitterConfig struct {
	Protocol telemetry.Protocol `yaml:"protocol"`
	Interval config.Duration    `yaml:"interval"`
	Strategy string             `yaml:"strategy"`
	MaxTicks int                `yaml:"maxTicks"` // 0 runs until interrupted
	Seed     *uint64            `yaml:"seed"`
	Noise    *bool              `yaml:"noise"` // Defaults to true
}

type FilterConfig struct {
	Mode ahrs.Mode `yaml:"mode"`
	Beta *float64  `yaml:"beta"` // Defaults to ahrs.DefaultBeta; zero disables the correction
}

// OutputConfig represents a single frame destination. Only the fields of its
// type are read.
type OutputConfig struct {
	Type     OutputType             `yaml:"type"`
	Optional bool                   `yaml:"optional"` // Failures are logged instead of stopping the transmitter
	Path     string                 `yaml:"path"`
	Serial   transport.SerialConfig `yaml:"serial"`
	MQTT     transport.MQTTConfig   `yaml:"mqtt"`
	Listen   string                 `yaml:"listen"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// NewConfig returns the configuration used without a file: Level-2 frames on
// stdout at 20 Hz.
func NewConfig() *Config {
	c := &Config{}
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
	if c.Transmitter.Protocol == 0 {
		c.Transmitter.Protocol = telemetry.Level2
	}
	if c.Transmitter.Interval == 0 {
		c.Transmitter.Interval = config.Duration(scheduler.DefaultInterval)
	}
	if c.Transmitter.Strategy == "" {
		c.Transmitter.Strategy = string(scheduler.FixedSleep)
	}
	if c.Filter.Mode == "" {
		c.Filter.Mode = ahrs.ModeGyro
	}
	if c.Filter.Beta == nil {
		beta := ahrs.DefaultBeta
		c.Filter.Beta = &beta
	}
	if len(c.Outputs) == 0 {
		c.Outputs = []OutputConfig{{Type: OutputStdout}}
	}
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := config.ParseLogLevel(c.Settings.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Transmitter.Protocol.NumValues() == 0 {
		errs = append(errs, fmt.Errorf("unsupported protocol %s", c.Transmitter.Protocol))
	}
	if c.Transmitter.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive: %s", c.Transmitter.Interval))
	}
	if _, err := scheduler.ParseStrategy(c.Transmitter.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Transmitter.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("maxTicks must not be negative: %d", c.Transmitter.MaxTicks))
	}
	if err := c.Filter.Mode.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Filter.Beta != nil && *c.Filter.Beta < 0 {
		errs = append(errs, fmt.Errorf("filter beta must not be negative: %f", *c.Filter.Beta))
	}

	stdout := 0
	for i := range c.Outputs {
		out := &c.Outputs[i]
		if out.Type == OutputStdout {
			stdout++
		}
		if err := out.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	if stdout > 1 {
		errs = append(errs, errors.New("stdout output listed more than once"))
	}

	return errors.Join(errs...)
}

func (o *OutputConfig) Validate() error {
	switch o.Type {
	case OutputStdout:
		return nil
	case OutputFile:
		if o.Path == "" {
			return errors.New("file: path is required")
		}
		return nil
	case OutputSerial:
		return o.Serial.Validate()
	case OutputMQTT:
		return o.MQTT.Validate()
	case OutputWebsocket:
		if o.Listen == "" {
			return errors.New("websocket: listen address is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown output type '%s'", o.Type)
	}
}
