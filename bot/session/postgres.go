package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps sessions in the chat_sessions table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle. The schema is created by
// the embedded migrations in core/database.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	selectSessionSQL = `SELECT record FROM chat_sessions WHERE chat_id = $1`
	upsertSessionSQL = `INSERT INTO chat_sessions (chat_id, status, record, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (chat_id) DO UPDATE
SET status = EXCLUDED.status, record = EXCLUDED.record, updated_at = now()`
	deleteSessionSQL = `DELETE FROM chat_sessions WHERE chat_id = $1`
)

// Get implements Store.
func (p *PostgresStore) Get(ctx context.Context, chatID int64) (Session, error) {
	if err := checkChatID(chatID); err != nil {
		return Session{}, err
	}
	var raw []byte
	err := p.db.GetContext(ctx, &raw, selectSessionSQL, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return New(chatID), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: postgres get: %w", err)
	}
	return Unmarshal(chatID, raw)
}

// Set implements Store with a single upsert.
func (p *PostgresStore) Set(ctx context.Context, s Session) error {
	if err := checkChatID(s.ChatID); err != nil {
		return err
	}
	raw, err := Marshal(s)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, upsertSessionSQL, s.ChatID, string(s.Status()), string(raw)); err != nil {
		return fmt.Errorf("session: postgres upsert: %w", err)
	}
	return nil
}

// Delete implements Store.
func (p *PostgresStore) Delete(ctx context.Context, chatID int64) error {
	if err := checkChatID(chatID); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, deleteSessionSQL, chatID); err != nil {
		return fmt.Errorf("session: postgres delete: %w", err)
	}
	return nil
}
