// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package tool defines the tool model: named, schema-described
// capabilities that perform read or side-effecting operations against
// backend services and return structured data or typed errors.
package tool

import (
	"context"
	"encoding/json"
	"time"
)

// Request carries one tool invocation's arguments plus the end-user
// credential. The user token is opaque here: the gateway never inspects
// it, and the backend behind the handler is the authority on per-user
// authorization. An empty token means the caller supplied no end-user
// identity and the handler decides whether degraded shared-identity
// access is acceptable.
type Request struct {
	Arguments json.RawMessage
	UserToken string
}

// HandlerFunc executes a tool call and returns the result payload.
// Errors are typed via pkg/errors codes; callers fold them into
// conversation data rather than propagating them as crashes.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Definition is one immutable tool: its public schema plus the handler
// capability. Definitions are loaded once at startup and shared read-only
// across all conversations.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     HandlerFunc

	// Timeout bounds one handler call. Zero means the dispatcher default.
	Timeout time.Duration
}

// Credentials is the two-token pair a caller presents: the app token
// proves which application is invoking the gateway, the user token
// identifies the end user for backend authorization. Both are transient,
// request-scoped values; neither is persisted.
type Credentials struct {
	AppToken  string
	UserToken string
}
