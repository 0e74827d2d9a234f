// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a durable Store backed by SQLite. Blocks are stored as a
// JSON column; ordering is preserved by a per-conversation sequence number.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies the
// schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "opening sqlite db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "pinging sqlite db %s", dbPath)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	blocks          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	UNIQUE (conversation_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
`
	if _, err := db.Exec(ddl); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "migrating conversation tables")
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, created_at) VALUES (?, ?)`,
		conv.ID, time.Now().UTC(),
	); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "inserting conversation %s", conv.ID)
	}

	for seq, msg := range conv.Messages() {
		if err := insertMessage(ctx, tx, conv.ID, seq, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "committing conversation %s", conv.ID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Conversation, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversations WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "querying conversation %s", id)
	}
	if exists == 0 {
		return nil, inqerr.New(inqerr.CodeConversationNotFound,
			"conversation not found", inqerr.FieldConversationID(id))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, blocks, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "querying messages for %s", id)
	}
	defer func() { _ = rows.Close() }()

	conv := NewWithID(id)
	for rows.Next() {
		var msg Message
		var blocksJSON string
		if err := rows.Scan(&msg.ID, &msg.Role, &blocksJSON, &msg.CreatedAt); err != nil {
			return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "scanning message row")
		}
		if err := json.Unmarshal([]byte(blocksJSON), &msg.Blocks); err != nil {
			return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "decoding blocks for message %s", msg.ID)
		}
		conv.AppendMessage(msg)
	}
	if err := rows.Err(); err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "iterating messages for %s", id)
	}

	return conv, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversations WHERE id = ?`, id).Scan(&exists); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "querying conversation %s", id)
	}
	if exists == 0 {
		return inqerr.New(inqerr.CodeConversationNotFound,
			"conversation not found", inqerr.FieldConversationID(id))
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq)+1, 0) FROM messages WHERE conversation_id = ?`, id).Scan(&next); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "computing next seq for %s", id)
	}

	if err := insertMessage(ctx, tx, id, next, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "committing message append for %s", id)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, convID string, seq int, msg Message) error {
	blocksJSON, err := json.Marshal(msg.Blocks)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "encoding blocks for message %s", msg.ID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages (id, conversation_id, seq, role, blocks, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, convID, seq, string(msg.Role), string(blocksJSON), msg.CreatedAt,
	); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeConversationStoreFailure, "inserting message %s", msg.ID)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
