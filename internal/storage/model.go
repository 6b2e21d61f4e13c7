package storage

import (
	"database/sql"
	"time"
)

// Session describes one receiver run.
type Session struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"startTime"`
	Protocol  string    `json:"protocol"`
	Source    string    `json:"source"`
	Config    *string   `json:"config,omitempty"`
}

// recordData is a row of the records table. Columns a protocol does not
// carry are NULL.
type recordData struct {
	SessionID   int64
	ReceivedAt  time.Time
	Protocol    string
	Timestamp   int64
	AccelX      sql.NullFloat64
	AccelY      sql.NullFloat64
	AccelZ      sql.NullFloat64
	GyroX       sql.NullFloat64
	GyroY       sql.NullFloat64
	GyroZ       sql.NullFloat64
	Roll        sql.NullFloat64
	Pitch       sql.NullFloat64
	Heading     sql.NullFloat64
	Altitude    float64
	Temperature float64
}

func (d *recordData) args() []any {
	return []any{
		d.SessionID,
		d.ReceivedAt,
		d.Protocol,
		d.Timestamp,
		d.AccelX,
		d.AccelY,
		d.AccelZ,
		d.GyroX,
		d.GyroY,
		d.GyroZ,
		d.Roll,
		d.Pitch,
		d.Heading,
		d.Altitude,
		d.Temperature,
	}
}
