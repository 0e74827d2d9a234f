// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package builtin provides the tools Inquest ships with: dataset SQL
// queries, semantic document search, and code search against a code host.
package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inquest-dev/inquest/internal/tool"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// defaultMaxRows caps dataset query result sets so a broad SELECT cannot
// flood the conversation.
const defaultMaxRows = 100

type datasetArgs struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"max_rows"`
}

// OpenDataset opens the investigation dataset at dbPath in read-only mode.
func OpenDataset(dbPath string) (*sql.DB, error) {
	return openDataset(dbPath, "&mode=ro")
}

// OpenDatasetWritable opens the dataset read-write, for loaders that seed it.
func OpenDatasetWritable(dbPath string) (*sql.DB, error) {
	return openDataset(dbPath, "")
}

func openDataset(dbPath, extra string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000"+extra)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "opening dataset %s", dbPath)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "pinging dataset %s", dbPath)
	}
	return db, nil
}

// DatasetQuery builds the dataset_query tool: read-only SQL against the
// investigation dataset. Only SELECT and WITH statements are accepted.
func DatasetQuery(db *sql.DB) tool.Definition {
	return tool.Definition{
		Name:        "dataset_query",
		Description: "Run a read-only SQL query against the investigation dataset. Only SELECT statements are allowed.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "A single SELECT statement.",
				},
				"max_rows": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     1000,
					"description": "Maximum number of rows to return (default 100).",
				},
			},
			"required": []any{"sql"},
		},
		Timeout: 20 * time.Second,
		Handler: func(ctx context.Context, req tool.Request) (string, error) {
			var args datasetArgs
			if err := json.Unmarshal(req.Arguments, &args); err != nil {
				return "", inqerr.Wrapf(err, inqerr.CodeToolArgsInvalid, "dataset_query: decoding arguments")
			}
			return runDatasetQuery(ctx, db, args)
		},
	}
}

func runDatasetQuery(ctx context.Context, db *sql.DB, args datasetArgs) (string, error) {
	stmt := strings.TrimSpace(args.SQL)
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", inqerr.New(inqerr.CodeToolArgsInvalid,
			"dataset_query: only SELECT statements are allowed",
			inqerr.FieldTool("dataset_query"))
	}

	maxRows := args.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "dataset_query: executing query")
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "dataset_query: reading columns")
	}

	var out []map[string]any
	truncated := false
	for rows.Next() {
		if len(out) >= maxRows {
			truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "dataset_query: scanning row")
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "dataset_query: iterating rows")
	}

	payload := map[string]any{
		"rows":      out,
		"row_count": len(out),
		"truncated": truncated,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "dataset_query: encoding result")
	}
	return string(encoded), nil
}
