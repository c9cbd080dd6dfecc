package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	pgLoadQuery = `SELECT data FROM sessions WHERE key = $1`
	pgSaveQuery = `INSERT INTO sessions (key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// PostgresStore keeps sessions as JSONB rows in the sessions table created by
// the database migrations.
type PostgresStore struct {
	db    *sqlx.DB
	codec Codec
	now   func() time.Time
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, codec: JSONCodec{}, now: time.Now}
}

// Load reads the row for key or returns a default session.
func (p *PostgresStore) Load(ctx context.Context, key Key) (*Session, error) {
	var raw []byte
	if err := p.db.GetContext(ctx, &raw, pgLoadQuery, string(key)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return New(), nil
		}
		return nil, &StoreError{Op: "load", Key: key, Err: err}
	}
	s, err := p.codec.Decode(raw)
	if err != nil {
		return nil, &StoreError{Op: "load", Key: key, Err: err}
	}
	return s, nil
}

// Save upserts the session row.
func (p *PostgresStore) Save(ctx context.Context, key Key, s *Session) error {
	if s == nil {
		return &StoreError{Op: "save", Key: key, Err: errors.New("nil session")}
	}
	raw, err := p.codec.Encode(s)
	if err != nil {
		return &StoreError{Op: "save", Key: key, Err: err}
	}
	if _, err := p.db.ExecContext(ctx, pgSaveQuery, string(key), string(raw), p.now().UTC()); err != nil {
		return &StoreError{Op: "save", Key: key, Err: err}
	}
	return nil
}
