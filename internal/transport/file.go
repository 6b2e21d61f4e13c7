package transport

import (
	"fmt"
	"os"
)

// OpenFile appends frames to the file at path, creating it when missing.
func OpenFile(path string) (*WriterSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open frame file: %w", err)
	}

	return &WriterSink{w: file, c: file}, nil
}
