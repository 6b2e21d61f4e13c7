package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roman-kulish/flight-telemetry/internal/transport"
)

// stdout is replaced in tests
var stdout io.Writer = os.Stdout

// listener is a websocket hub waiting to be served
type listener struct {
	addr string
	hub  *transport.Hub
}

// createOutputs opens every configured output and combines them into one
// sink. Optional outputs never fail a Send.
func createOutputs(configs []OutputConfig, logger *slog.Logger) (transport.Sink, []listener, error) {
	var sinks []transport.Sink
	var listeners []listener

	closeAll := func(err error) (transport.Sink, []listener, error) {
		return nil, nil, errors.Join(err, transport.Multi(sinks...).Close())
	}

	for i, config := range configs {
		var sink transport.Sink
		var err error
		name := fmt.Sprintf("%s#%d", config.Type, i)

		switch config.Type {
		case OutputStdout:
			sink = transport.NewWriterSink(bufio.NewWriter(stdout))

		case OutputFile:
			sink, err = transport.OpenFile(config.Path)

		case OutputSerial:
			sink, err = transport.OpenSerial(config.Serial)

		case OutputMQTT:
			sink, err = transport.NewMQTTSink(config.MQTT)

		case OutputWebsocket:
			hub := transport.NewHub(transport.WithHubLogger(logger.With(slog.String("output", name))))
			listeners = append(listeners, listener{addr: config.Listen, hub: hub})
			sink = hub

		default:
			err = fmt.Errorf("unknown type '%s'", config.Type)
		}
		if err != nil {
			return closeAll(fmt.Errorf("creating output %s: %w", name, err))
		}

		if config.Optional {
			sink = transport.Optional(name, sink, logger)
		}
		sinks = append(sinks, sink)

		logger.Info("output ready", slog.String("output", name), slog.Bool("optional", config.Optional))
	}

	return transport.Multi(sinks...), listeners, nil
}
