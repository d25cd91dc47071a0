// Package sqlite 使用 SQLite 持久化用户、会话凭证与面试结果。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	preset_id  TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT 1,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS completed_interviews (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL REFERENCES users(id),
	preset_id       TEXT NOT NULL,
	answers         TEXT NOT NULL,
	elapsed_seconds INTEGER NOT NULL,
	score           INTEGER NOT NULL,
	feedback        TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_completed_interviews_user ON completed_interviews(user_id);
`

// Store implements repository.Store on a single SQLite file.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, user interview.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)`,
		user.ID, user.Name, user.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (interview.User, error) {
	var user interview.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interview.User{}, repository.ErrUserNotFound
		}
		return interview.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *Store) CreateTicket(ctx context.Context, ticket interview.Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (token, user_id, preset_id, active, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ticket.Token, ticket.UserID, ticket.PresetID, ticket.Active, ticket.ExpiresAt.UTC(), ticket.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, token string) (interview.Ticket, error) {
	var ticket interview.Ticket
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, preset_id, active, expires_at, created_at FROM tickets WHERE token = ?`, token,
	).Scan(&ticket.Token, &ticket.UserID, &ticket.PresetID, &ticket.Active, &ticket.ExpiresAt, &ticket.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interview.Ticket{}, repository.ErrTicketNotFound
		}
		return interview.Ticket{}, fmt.Errorf("failed to query ticket: %w", err)
	}
	return ticket, nil
}

func (s *Store) DeactivateTicket(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tickets SET active = 0 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to deactivate ticket: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrTicketNotFound
	}
	return nil
}

// SaveResult checks the owning user and inserts the record in one transaction.
func (s *Store) SaveResult(ctx context.Context, result interview.CompletedInterview) error {
	answersJSON, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, result.UserID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists == 0 {
		return repository.ErrUserNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO completed_interviews (id, user_id, preset_id, answers, elapsed_seconds, score, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.UserID,
		result.PresetID,
		string(answersJSON),
		result.ElapsedSeconds,
		result.Score,
		result.Feedback,
		result.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, id string) (interview.CompletedInterview, error) {
	var (
		result      interview.CompletedInterview
		answersJSON string
		createdAt   time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, preset_id, answers, elapsed_seconds, score, feedback, created_at
		FROM completed_interviews WHERE id = ?`, id,
	).Scan(
		&result.ID,
		&result.UserID,
		&result.PresetID,
		&answersJSON,
		&result.ElapsedSeconds,
		&result.Score,
		&result.Feedback,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interview.CompletedInterview{}, repository.ErrResultNotFound
		}
		return interview.CompletedInterview{}, fmt.Errorf("failed to query result: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &result.Answers); err != nil {
		return interview.CompletedInterview{}, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	result.CreatedAt = createdAt
	return result, nil
}
