package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/storage"
	"github.com/roman-kulish/flight-telemetry/internal/transport"
)

const storageDir = "data"

// stdin is replaced in tests
var stdin io.Reader = os.Stdin

// openInput opens the frame source and describes it for the session record
func openInput(config *InputConfig) (io.ReadCloser, string, error) {
	switch config.Type {
	case InputStdin:
		if rc, ok := stdin.(io.ReadCloser); ok {
			return rc, "stdin", nil
		}
		return io.NopCloser(stdin), "stdin", nil

	case InputFile:
		f, err := os.Open(config.Path)
		if err != nil {
			return nil, "", fmt.Errorf("opening frame file: %w", err)
		}
		return f, config.Path, nil

	case InputSerial:
		r, err := transport.OpenSerialReader(config.Serial)
		if err != nil {
			return nil, "", err
		}
		return r, config.Serial.Port, nil

	case InputMQTT:
		r, err := transport.SubscribeMQTT(config.MQTT)
		if err != nil {
			return nil, "", err
		}
		return r, config.MQTT.Broker, nil

	default:
		return nil, "", fmt.Errorf("unknown input type '%s'", config.Type)
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, string, error) {
	dbPath := config.DataDirectory
	if dbPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, "", fmt.Errorf("storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, "", fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("telemetry_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), dbPath, nil
}
