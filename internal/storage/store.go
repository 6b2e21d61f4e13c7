package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

// Store persists the output of receiver runs: one session per run, the
// decoded records and the rejected frames.
type Store interface {
	// CreateSession starts a new receiver session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - protocol: Expected protocol tag ("L1" or "L2")
	//   - source: Where the frames come from (e.g., "stdin", a serial port, an MQTT topic)
	//   - config: Optional receiver configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, protocol, source string, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID. ErrNoData is returned when it
	// does not exist.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreRecords saves a batch of decoded records in a single atomic
	// transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session the records belong to
	//   - receivedAt: Wall clock time the batch was received
	//   - records: Records of any protocol, in arrival order
	StoreRecords(ctx context.Context, sessionID int64, receivedAt time.Time, records []telemetry.Record) error

	// StoreCorrupt saves a rejected frame with a short reason label.
	StoreCorrupt(ctx context.Context, sessionID int64, receivedAt time.Time, line, reason string) error

	// Counts returns the number of records and corrupt frames of a session.
	Counts(ctx context.Context, sessionID int64) (records, corrupt int64, err error)

	// ReadRecords returns a reader over the records of a session in timestamp
	// order. The reader must be closed after use.
	ReadRecords(ctx context.Context, sessionID int64, opts ...ReaderOption) (*RecordReader, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
