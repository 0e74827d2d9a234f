// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/inquest-dev/inquest/internal/tool"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// CodeSearchConfig points the code_search tool at a code host search API.
type CodeSearchConfig struct {
	// BaseURL is the code host search endpoint, e.g. https://code.internal/api/search.
	BaseURL string
	// Client defaults to a client with a 15s timeout.
	Client *http.Client
}

type codeSearchArgs struct {
	Query string `json:"query"`
	Repo  string `json:"repo"`
	Limit int    `json:"limit"`
}

// CodeSearch builds the code_search tool. The caller's own token is passed
// through to the code host so results honor their repository permissions.
func CodeSearch(cfg CodeSearchConfig) tool.Definition {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return tool.Definition{
		Name:        "code_search",
		Description: "Search source code on the configured code host. Results are scoped to repositories the requesting user can read.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search expression, e.g. a symbol name or literal string.",
				},
				"repo": map[string]any{
					"type":        "string",
					"description": "Optional repository to restrict the search to.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     100,
					"description": "Maximum number of matches (default 20).",
				},
			},
			"required": []any{"query"},
		},
		Timeout: 20 * time.Second,
		Handler: func(ctx context.Context, req tool.Request) (string, error) {
			var args codeSearchArgs
			if err := json.Unmarshal(req.Arguments, &args); err != nil {
				return "", inqerr.Wrapf(err, inqerr.CodeToolArgsInvalid, "code_search: decoding arguments")
			}
			return runCodeSearch(ctx, client, cfg.BaseURL, args, req.UserToken)
		},
	}
}

func runCodeSearch(ctx context.Context, client *http.Client, baseURL string, args codeSearchArgs, userToken string) (string, error) {
	if baseURL == "" {
		return "", inqerr.New(inqerr.CodeToolBackendFailure, "code_search: no code host configured")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	q := url.Values{}
	q.Set("q", args.Query)
	q.Set("limit", strconv.Itoa(limit))
	if args.Repo != "" {
		q.Set("repo", args.Repo)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "code_search: building request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if userToken != "" {
		// The caller's token, not the service's. The code host enforces
		// per-user repository visibility.
		httpReq.Header.Set("Authorization", "Bearer "+userToken)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "code_search: calling code host")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", inqerr.Wrapf(err, inqerr.CodeToolBackendFailure, "code_search: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", inqerr.New(inqerr.CodeToolBackendFailure,
			fmt.Sprintf("code_search: code host returned %d: %s", resp.StatusCode, truncate(string(body), 200)),
			inqerr.FieldTool("code_search"))
	}
	if !json.Valid(body) {
		return "", inqerr.New(inqerr.CodeToolBackendFailure, "code_search: code host returned non-JSON response")
	}
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
