package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deckdraft/deckdraft/internal/domain"
	"github.com/deckdraft/deckdraft/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		state TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		cycle INTEGER NOT NULL DEFAULT 1,
		generation_in_flight INTEGER NOT NULL DEFAULT 0,
		answers_json TEXT NOT NULL DEFAULT '[]',
		plan_notes_json TEXT NOT NULL DEFAULT '[]',
		plan_json TEXT,
		strawman_json TEXT,
		slides_json TEXT NOT NULL DEFAULT '[]',
		history_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadSession retrieves a session by id.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_id, state, topic, cycle, generation_in_flight,
		       answers_json, plan_notes_json, plan_json, strawman_json,
		       slides_json, history_json, created_at, updated_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var sess domain.Session
	var answersJSON, planNotesJSON, slidesJSON, historyJSON string
	var planJSON, strawmanJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.SessionID, &sess.UserID, &sess.State, &sess.Topic, &sess.Cycle,
		&sess.GenerationInFlight, &answersJSON, &planNotesJSON,
		&planJSON, &strawmanJSON, &slidesJSON, &historyJSON,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if !sess.State.Valid() {
		return nil, fmt.Errorf("session %s has unknown state %q", sessionID, sess.State)
	}

	if err := json.Unmarshal([]byte(answersJSON), &sess.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(planNotesJSON), &sess.PlanNotes); err != nil {
		return nil, fmt.Errorf("decode plan notes: %w", err)
	}
	if err := json.Unmarshal([]byte(slidesJSON), &sess.Slides); err != nil {
		return nil, fmt.Errorf("decode slides: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if planJSON.Valid {
		if err := json.Unmarshal([]byte(planJSON.String), &sess.Plan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
	}
	if strawmanJSON.Valid {
		if err := json.Unmarshal([]byte(strawmanJSON.String), &sess.Strawman); err != nil {
			return nil, fmt.Errorf("decode strawman: %w", err)
		}
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)

	return &sess, nil
}

// SaveSession creates or replaces a session record. Retries on SQLite
// concurrency errors with exponential backoff.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (
		session_id, user_id, state, topic, cycle, generation_in_flight,
		answers_json, plan_notes_json, plan_json, strawman_json,
		slides_json, history_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		user_id = excluded.user_id,
		state = excluded.state,
		topic = excluded.topic,
		cycle = excluded.cycle,
		generation_in_flight = excluded.generation_in_flight,
		answers_json = excluded.answers_json,
		plan_notes_json = excluded.plan_notes_json,
		plan_json = excluded.plan_json,
		strawman_json = excluded.strawman_json,
		slides_json = excluded.slides_json,
		history_json = excluded.history_json,
		updated_at = excluded.updated_at`

	answersJSON, err := marshalOrEmptyList(sess.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	planNotesJSON, err := marshalOrEmptyList(sess.PlanNotes)
	if err != nil {
		return fmt.Errorf("encode plan notes: %w", err)
	}
	slidesJSON, err := marshalOrEmptyList(sess.Slides)
	if err != nil {
		return fmt.Errorf("encode slides: %w", err)
	}
	historyJSON, err := marshalOrEmptyList(sess.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	var planJSON interface{}
	if sess.Plan != nil {
		data, err := json.Marshal(sess.Plan)
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		planJSON = string(data)
	}

	var strawmanJSON interface{}
	if sess.Strawman != nil {
		data, err := json.Marshal(sess.Strawman)
		if err != nil {
			return fmt.Errorf("encode strawman: %w", err)
		}
		strawmanJSON = string(data)
	}

	err = shared.RetryOnSQLiteConflict(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			sess.SessionID, sess.UserID, string(sess.State), sess.Topic,
			sess.Cycle, sess.GenerationInFlight,
			answersJSON, planNotesJSON, planJSON, strawmanJSON,
			slidesJSON, historyJSON,
			sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions idle longer than ttl.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func marshalOrEmptyList(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}
