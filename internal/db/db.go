// Package db persists locate sessions and their accepted detections to
// sqlite. The live trail is in-memory state owned by the session; the
// database is the durable record for reviewing past runs.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mitchross/intercept/internal/btlocate"
)

type DB struct {
	*sql.DB
}

// New opens (or creates) the sqlite database at path and brings the schema
// up to date. Use ":memory:" for tests.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// modernc sqlite allows one writer; serialize at the pool level instead
	// of surfacing SQLITE_BUSY to callers.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SessionRecord is one row of locate_sessions.
type SessionRecord struct {
	SessionID        string     `json:"session_id"`
	Target           string     `json:"target"`
	Environment      string     `json:"environment"`
	PathLossExponent float64    `json:"path_loss_exponent"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// CreateSession records the start of a locate run.
func (db *DB) CreateSession(rec SessionRecord) error {
	_, err := db.Exec(
		`INSERT INTO locate_sessions (session_id, target, environment, path_loss_exponent, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Target, rec.Environment, rec.PathLossExponent, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", rec.SessionID, err)
	}
	return nil
}

// EndSession stamps a session's end time. Ending an unknown or already
// ended session is not an error; stop is idempotent all the way down.
func (db *DB) EndSession(sessionID string, endedAt time.Time) error {
	_, err := db.Exec(
		`UPDATE locate_sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`,
		endedAt, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]SessionRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, target, environment, path_loss_exponent, started_at, ended_at
		 FROM locate_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var ended sql.NullTime
		if err := rows.Scan(&rec.SessionID, &rec.Target, &rec.Environment, &rec.PathLossExponent, &rec.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordDetection appends one accepted detection to the session's history.
func (db *DB) RecordDetection(sessionID string, det btlocate.Detection) error {
	_, err := db.Exec(
		`INSERT INTO locate_detections (session_id, timestamp, rssi, rssi_ema, estimated_distance, proximity_band, lat, lon)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, det.Timestamp,
		nullableInt(det.RSSI), nullableFloat(det.RSSIEMA), nullableFloat(det.DistanceM),
		string(det.Band), nullableFloat(det.Lat), nullableFloat(det.Lon),
	)
	if err != nil {
		return fmt.Errorf("failed to record detection: %w", err)
	}
	return nil
}

// Detections returns a session's detections in insertion order, capped at
// limit (0 means no cap).
func (db *DB) Detections(sessionID string, limit int) ([]btlocate.Detection, error) {
	if limit <= 0 {
		limit = -1 // sqlite: negative LIMIT means unlimited
	}
	rows, err := db.Query(
		`SELECT timestamp, rssi, rssi_ema, estimated_distance, proximity_band, lat, lon
		 FROM locate_detections WHERE session_id = ? ORDER BY detection_id LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []btlocate.Detection
	for rows.Next() {
		var det btlocate.Detection
		var rssi sql.NullInt64
		var ema, dist, lat, lon sql.NullFloat64
		var band string
		if err := rows.Scan(&det.Timestamp, &rssi, &ema, &dist, &band, &lat, &lon); err != nil {
			return nil, err
		}
		det.Band = btlocate.Band(band)
		if rssi.Valid {
			v := int(rssi.Int64)
			det.RSSI = &v
		}
		if ema.Valid {
			v := ema.Float64
			det.RSSIEMA = &v
		}
		if dist.Valid {
			v := dist.Float64
			det.DistanceM = &v
		}
		if lat.Valid && lon.Valid {
			la, lo := lat.Float64, lon.Float64
			det.Lat = &la
			det.Lon = &lo
		}
		out = append(out, det)
	}
	return out, rows.Err()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
