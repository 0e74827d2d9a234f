// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package builtin

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/inquest-dev/inquest/internal/tool"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func init() {
	// Registers the vec0 extension on every new SQLite connection.
	sqlite_vec.Auto()
}

// Embedder turns text into a fixed-size vector. The default is a
// deterministic hashing embedder so the index works without any model
// backend; production deployments plug in a real embedding client.
type Embedder func(ctx context.Context, text string) ([]float32, error)

const hashEmbedderDims = 256

// HashEmbedder returns a local embedder that maps token hashes into a
// fixed-size normalized vector. It has no semantic understanding but is
// deterministic and dependency-free, which is what tests and air-gapped
// deployments need.
func HashEmbedder() Embedder {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, hashEmbedderDims)
		for _, token := range tokenize(text) {
			sum := sha256.Sum256([]byte(token))
			idx := binary.BigEndian.Uint32(sum[:4]) % hashEmbedderDims
			sign := float32(1)
			if sum[4]&1 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for i := range vec {
				vec[i] *= scale
			}
		}
		return vec, nil
	}
}

func tokenize(text string) []string {
	var tokens []string
	start := -1
	for i, r := range text {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if alnum && start < 0 {
			start = i
		} else if !alnum && start >= 0 {
			tokens = append(tokens, text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

// SemanticIndex stores documents alongside their embeddings in SQLite and
// answers nearest-neighbor queries through the sqlite-vec extension.
type SemanticIndex struct {
	db       *sql.DB
	embedder Embedder
	dims     int
}

// NewSemanticIndex opens (or creates) the index at dbPath. A nil embedder
// selects the hashing default.
func NewSemanticIndex(dbPath string, embedder Embedder, dims int) (*SemanticIndex, error) {
	if embedder == nil {
		embedder = HashEmbedder()
		dims = hashEmbedderDims
	}
	if dims <= 0 {
		return nil, inqerr.New(inqerr.CodeToolArgsInvalid, "semantic index requires positive dimensions")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "opening semantic index %s", dbPath)
	}

	schema := fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS doc_vectors USING vec0(
	id TEXT PRIMARY KEY,
	embedding FLOAT[%d]
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);`, dims)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "creating semantic index schema")
	}

	return &SemanticIndex{db: db, embedder: embedder, dims: dims}, nil
}

// Close releases the underlying database handle.
func (s *SemanticIndex) Close() error {
	return s.db.Close()
}

// Add indexes a document under id, replacing any previous version.
func (s *SemanticIndex) Add(ctx context.Context, id, content string, metadata map[string]any) error {
	if id == "" || content == "" {
		return inqerr.New(inqerr.CodeToolArgsInvalid, "semantic index: id and content are required")
	}

	vec, err := s.embedder(ctx, content)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "embedding document %s", id)
	}
	if len(vec) != s.dims {
		return inqerr.Errorf(inqerr.CodeToolBackendFailure,
			"embedder returned %d dimensions, index expects %d", len(vec), s.dims)
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "serializing embedding for %s", id)
	}

	meta := "{}"
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return inqerr.Wrapf(err, inqerr.CodeToolArgsInvalid, "encoding metadata for %s", id)
		}
		meta = string(encoded)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "beginning index transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 virtual tables have no upsert, so replace is delete then insert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_vectors WHERE id = ?`, id); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "clearing previous vector for %s", id)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO doc_vectors (id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "inserting vector for %s", id)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO documents (id, content, metadata, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata`,
		id, content, meta, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "inserting document %s", id)
	}

	return tx.Commit()
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Search returns the limit documents closest to query.
func (s *SemanticIndex) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, inqerr.New(inqerr.CodeToolArgsInvalid, "semantic index: query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	vec, err := s.embedder(ctx, query)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "embedding query")
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "serializing query embedding")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT v.id, v.distance, d.content, COALESCE(d.metadata, '{}')
FROM doc_vectors v
LEFT JOIN documents d ON d.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`, blob, limit)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "searching semantic index")
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var content sql.NullString
		var meta string
		if err := rows.Scan(&r.ID, &r.Distance, &content, &meta); err != nil {
			return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "scanning search result")
		}
		r.Content = content.String
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
				return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "decoding metadata for %s", r.ID)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type semanticArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SemanticSearch builds the semantic_search tool over idx.
func SemanticSearch(idx *SemanticIndex) tool.Definition {
	return tool.Definition{
		Name:        "semantic_search",
		Description: "Search indexed investigation documents by semantic similarity and return the closest matches.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural language query describing what to find.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     50,
					"description": "Maximum number of matches (default 5).",
				},
			},
			"required": []any{"query"},
		},
		Timeout: 15 * time.Second,
		Handler: func(ctx context.Context, req tool.Request) (string, error) {
			var args semanticArgs
			if err := json.Unmarshal(req.Arguments, &args); err != nil {
				return "", inqerr.Wrapf(err, inqerr.CodeToolArgsInvalid, "semantic_search: decoding arguments")
			}
			results, err := idx.Search(ctx, args.Query, args.Limit)
			if err != nil {
				return "", err
			}
			if results == nil {
				results = []SearchResult{}
			}
			encoded, err := json.Marshal(map[string]any{"matches": results})
			if err != nil {
				return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "semantic_search: encoding result")
			}
			return string(encoded), nil
		},
	}
}
