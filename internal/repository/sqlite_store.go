package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteStateStore keeps one state row per station and an append-only
// history of every saved reading.
type SQLiteStateStore struct {
	db        *sql.DB
	DBPath    string
	stationID string
}

// NewSQLiteStateStore creates and initializes a new SQLite store
func NewSQLiteStateStore(dbPath, stationID string) (*SQLiteStateStore, error) {
	if dbPath == "" {
		// Set default path if not specified
		dbDir := "data"
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = filepath.Join(dbDir, "river-alert.db")
	}

	log.Info().Str("path", dbPath).Msg("Opening state database")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Timestamps are stored as RFC3339 text so the source offset survives a round trip
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS station_state (
		station_id TEXT PRIMARY KEY,
		station_name TEXT NOT NULL,
		water_level_m REAL NOT NULL,
		bank_level_m REAL,
		status_text TEXT NOT NULL,
		observed_at TEXT NOT NULL,
		last_alert_at TEXT,
		last_alert_fingerprint TEXT
	);
	CREATE TABLE IF NOT EXISTS reading_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station_id TEXT NOT NULL,
		water_level_m REAL NOT NULL,
		bank_level_m REAL,
		status_text TEXT NOT NULL,
		observed_at TEXT NOT NULL,
		UNIQUE(station_id, observed_at)
	);
	CREATE INDEX IF NOT EXISTS idx_history_station ON reading_history(station_id, observed_at);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStateStore{
		db:        db,
		DBPath:    dbPath,
		stationID: stationID,
	}, nil
}

// Close closes the database connection
func (r *SQLiteStateStore) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load returns the state row for the configured station
func (r *SQLiteStateStore) Load(ctx context.Context) (*entities.StoredState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT station_id, station_name, water_level_m, bank_level_m, status_text,
			observed_at, last_alert_at, last_alert_fingerprint
		FROM station_state
		WHERE station_id = ?`, r.stationID)

	var (
		st          entities.StoredState
		bank        sql.NullFloat64
		observedAt  string
		lastAlertAt sql.NullString
		fingerprint sql.NullString
	)
	err := row.Scan(&st.StationID, &st.StationName, &st.WaterLevelM, &bank, &st.StatusText,
		&observedAt, &lastAlertAt, &fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state for %s: %w", r.stationID, err)
	}

	if st.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt); err != nil {
		return nil, &StateCorruptError{Path: r.DBPath, Err: fmt.Errorf("observed_at: %w", err)}
	}
	if bank.Valid {
		v := bank.Float64
		st.BankLevelM = &v
	}
	if lastAlertAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAlertAt.String)
		if err != nil {
			return nil, &StateCorruptError{Path: r.DBPath, Err: fmt.Errorf("last_alert_at: %w", err)}
		}
		st.LastAlertAt = &t
	}
	if fingerprint.Valid {
		fp := fingerprint.String
		st.LastAlertFingerprint = &fp
	}
	return &st, nil
}

// Save upserts the state row and records the reading in the history, in one transaction
func (r *SQLiteStateStore) Save(ctx context.Context, st entities.StoredState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var lastAlertAt, fingerprint any
	if st.LastAlertAt != nil {
		lastAlertAt = st.LastAlertAt.Format(time.RFC3339Nano)
	}
	if st.LastAlertFingerprint != nil {
		fingerprint = *st.LastAlertFingerprint
	}
	observedAt := st.ObservedAt.Format(time.RFC3339Nano)
	// rows are keyed by the configured station so Load finds them even when
	// a source reports its own station code
	key := r.stationID
	if key == "" {
		key = st.StationID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO station_state(station_id, station_name, water_level_m, bank_level_m, status_text,
			observed_at, last_alert_at, last_alert_fingerprint)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
		station_name=excluded.station_name,
		water_level_m=excluded.water_level_m,
		bank_level_m=excluded.bank_level_m,
		status_text=excluded.status_text,
		observed_at=excluded.observed_at,
		last_alert_at=excluded.last_alert_at,
		last_alert_fingerprint=excluded.last_alert_fingerprint`,
		key, st.StationName, st.WaterLevelM, st.BankLevelM, st.StatusText,
		observedAt, lastAlertAt, fingerprint)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save state for %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reading_history(station_id, water_level_m, bank_level_m, status_text, observed_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO UPDATE SET
		water_level_m=excluded.water_level_m,
		bank_level_m=excluded.bank_level_m,
		status_text=excluded.status_text`,
		key, st.WaterLevelM, st.BankLevelM, st.StatusText, observedAt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record history for %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetHistory returns up to limit recorded readings for the station, newest first
func (r *SQLiteStateStore) GetHistory(ctx context.Context, limit int) ([]entities.StoredState, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT station_id, water_level_m, bank_level_m, status_text, observed_at
		FROM reading_history
		WHERE station_id = ?
		ORDER BY observed_at DESC
		LIMIT ?`, r.stationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", r.stationID, err)
	}
	defer rows.Close()

	var result []entities.StoredState
	for rows.Next() {
		var (
			st         entities.StoredState
			bank       sql.NullFloat64
			observedAt string
		)
		if err := rows.Scan(&st.StationID, &st.WaterLevelM, &bank, &st.StatusText, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if bank.Valid {
			v := bank.Float64
			st.BankLevelM = &v
		}
		if st.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt); err != nil {
			return nil, fmt.Errorf("failed to parse observed_at %q: %w", observedAt, err)
		}
		result = append(result, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}
