package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

const DefaultBaudRate = 115200

// SerialConfig describes a UART link with 8N1 framing.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate uint   `yaml:"baudRate"`
}

func (c *SerialConfig) Validate() error {
	if c.Port == "" {
		return errors.New("serial: port is required")
	}
	return nil
}

func (c *SerialConfig) options() serial.OpenOptions {
	baud := c.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	return serial.OpenOptions{
		PortName:        c.Port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
}

func openPort(config SerialConfig) (io.ReadWriteCloser, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.Open(config.options())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", config.Port, err)
	}
	return port, nil
}

// OpenSerial returns a Sink writing frames to a serial port.
func OpenSerial(config SerialConfig) (*WriterSink, error) {
	port, err := openPort(config)
	if err != nil {
		return nil, err
	}

	return &WriterSink{w: port, c: port}, nil
}

// OpenSerialReader opens a serial port for reading frames.
func OpenSerialReader(config SerialConfig) (io.ReadCloser, error) {
	return openPort(config)
}
