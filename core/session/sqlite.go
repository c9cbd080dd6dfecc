package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);`

// SQLiteStore keeps CBOR encoded sessions in a single sqlite file.
type SQLiteStore struct {
	db    *sqlx.DB
	codec Codec
	now   func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("session sqlite: create dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session sqlite: open: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session sqlite: schema: %w", err)
	}
	codec, err := NewCBORCodec()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session sqlite: codec: %w", err)
	}
	return &SQLiteStore{db: db, codec: codec, now: time.Now}, nil
}

// Load reads the blob for key or returns a default session.
func (s *SQLiteStore) Load(ctx context.Context, key Key) (*Session, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT data FROM sessions WHERE key = ?`, string(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return New(), nil
		}
		return nil, &StoreError{Op: "load", Key: key, Err: err}
	}
	sess, err := s.codec.Decode(raw)
	if err != nil {
		return nil, &StoreError{Op: "load", Key: key, Err: err}
	}
	return sess, nil
}

// Save upserts the session blob.
func (s *SQLiteStore) Save(ctx context.Context, key Key, sess *Session) error {
	if sess == nil {
		return &StoreError{Op: "save", Key: key, Err: errors.New("nil session")}
	}
	raw, err := s.codec.Encode(sess)
	if err != nil {
		return &StoreError{Op: "save", Key: key, Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(key), raw, s.now().UTC(),
	)
	if err != nil {
		return &StoreError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
