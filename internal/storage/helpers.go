package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/flight-telemetry/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

func toRecordData(sessionID int64, receivedAt time.Time, r telemetry.Record) (*recordData, error) {
	data := &recordData{
		SessionID:  sessionID,
		ReceivedAt: receivedAt.UTC(),
		Protocol:   r.Protocol().String(),
		Timestamp:  r.Millis(),
	}

	switch v := r.(type) {
	case telemetry.Raw:
		data.AccelX = nullFloat(v.AccelX)
		data.AccelY = nullFloat(v.AccelY)
		data.AccelZ = nullFloat(v.AccelZ)
		data.GyroX = nullFloat(v.GyroX)
		data.GyroY = nullFloat(v.GyroY)
		data.GyroZ = nullFloat(v.GyroZ)
		data.Altitude = v.Altitude
		data.Temperature = v.Temperature

	case telemetry.Attitude:
		data.Roll = nullFloat(v.Roll)
		data.Pitch = nullFloat(v.Pitch)
		data.Heading = nullFloat(v.Heading)
		data.Altitude = v.Altitude
		data.Temperature = v.Temperature

	default:
		return nil, fmt.Errorf("unsupported record type %T", r)
	}

	return data, nil
}

// fromRecordData rebuilds the record of a row, checking that every column of
// its protocol is present.
func fromRecordData(d *recordData) (telemetry.Record, error) {
	p, err := telemetry.ParseProtocol(d.Protocol)
	if err != nil {
		return nil, err
	}

	var columns []sql.NullFloat64
	switch p {
	case telemetry.Level1:
		columns = []sql.NullFloat64{d.AccelX, d.AccelY, d.AccelZ, d.GyroX, d.GyroY, d.GyroZ}
	case telemetry.Level2:
		columns = []sql.NullFloat64{d.Roll, d.Pitch, d.Heading}
	}

	values := make([]float64, 0, len(columns)+2)
	for i, c := range columns {
		if !c.Valid {
			return nil, fmt.Errorf("%s record at %d ms: value %d is NULL", p, d.Timestamp, i)
		}
		values = append(values, c.Float64)
	}
	values = append(values, d.Altitude, d.Temperature)

	return telemetry.NewRecord(p, d.Timestamp, values)
}

// configString converts a session config to its stored form: strings and
// byte slices as is, anything else as JSON.
func configString(config any) (sql.NullString, error) {
	switch c := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: c, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(c), Valid: true}, nil
	default:
		p, err := json.Marshal(config)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}
