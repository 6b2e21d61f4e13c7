package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

// ErrNoData indicates that the requested session does not exist.
var ErrNoData = errors.New("no data available")

// ReaderOption configures a RecordReader.
type ReaderOption func(*RecordReader)

// WithMillisRange limits the reader to records whose timestamp falls within
// [from, to] milliseconds since boot.
func WithMillisRange(from, to int64) ReaderOption {
	return func(r *RecordReader) {
		r.from = from
		r.to = to
	}
}

// WithProtocol skips records of other protocols.
func WithProtocol(p telemetry.Protocol) ReaderOption {
	return func(r *RecordReader) {
		r.protocol = p
	}
}

// RecordReader iterates over the stored records of a session:
//
//	for reader.Next(ctx) {
//		record := reader.Current()
//	}
//	if err := reader.Error(); err != nil { ... }
//
// A reader must be used from a single goroutine.
type RecordReader struct {
	db        *sql.DB
	sessionID int64
	session   *Session

	from     int64
	to       int64
	protocol telemetry.Protocol

	rows    *sql.Rows
	current telemetry.Record
	err     error
}

func newRecordReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*RecordReader, error) {
	rr := &RecordReader{
		db:        db,
		sessionID: sessionID,
		from:      math.MinInt64,
		to:        math.MaxInt64,
	}
	for _, opt := range opts {
		opt(rr)
	}
	if err := rr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return rr, nil
}

func (rr *RecordReader) init(ctx context.Context) error {
	if rr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if rr.from > rr.to {
		return fmt.Errorf("range start %d ms is after range end %d ms", rr.from, rr.to)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: rr.loadSession},
		{msg: "initializing query", fn: rr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (rr *RecordReader) loadSession(ctx context.Context) error {
	sess, err := scanSession(rr.db.QueryRowContext(ctx, selectSessionSQL, rr.sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %d: %w", rr.sessionID, ErrNoData)
		}
		return err
	}

	rr.session = sess
	return nil
}

func (rr *RecordReader) initQuery(ctx context.Context) (err error) {
	rr.rows, err = rr.db.QueryContext(ctx, selectRecordsSQL, rr.sessionID, rr.from, rr.to)
	return err
}

// Session returns the session being read.
func (rr *RecordReader) Session() *Session {
	return rr.session
}

// Next advances to the next record. It returns false at the end of the data
// or on error; check Error to tell them apart.
func (rr *RecordReader) Next(ctx context.Context) bool {
	if rr.err != nil || rr.rows == nil {
		return false
	}

	for {
		select {
		case <-ctx.Done():
			rr.err = ctx.Err()
			return false
		default:
		}

		if !rr.rows.Next() {
			rr.current = nil
			return false
		}

		var d recordData
		if rr.err = rr.rows.Scan(
			&d.Protocol,
			&d.Timestamp,
			&d.AccelX,
			&d.AccelY,
			&d.AccelZ,
			&d.GyroX,
			&d.GyroY,
			&d.GyroZ,
			&d.Roll,
			&d.Pitch,
			&d.Heading,
			&d.Altitude,
			&d.Temperature,
		); rr.err != nil {
			return false
		}

		record, err := fromRecordData(&d)
		if err != nil {
			rr.err = fmt.Errorf("converting record: %w", err)
			return false
		}
		if rr.protocol != 0 && record.Protocol() != rr.protocol {
			continue
		}

		rr.current = record
		return true
	}
}

func (rr *RecordReader) Current() telemetry.Record {
	return rr.current
}

func (rr *RecordReader) Error() error {
	if rr.err != nil {
		return rr.err
	}
	if rr.rows != nil {
		return rr.rows.Err()
	}
	return nil
}

func (rr *RecordReader) Close() error {
	if rr.rows != nil {
		err := rr.rows.Close()
		rr.current = nil
		rr.rows = nil
		return err
	}
	return nil
}
