// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquest-dev/inquest/internal/conversation"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func newTestDispatcher(t *testing.T, defs ...Definition) *Dispatcher {
	t.Helper()
	r := NewRegistry()
	for _, def := range defs {
		require.NoError(t, r.Register(def))
	}
	d, err := NewDispatcher(r, 0)
	require.NoError(t, err)
	return d
}

func TestDispatcherExecute(t *testing.T) {
	d := newTestDispatcher(t, echoDefinition("echo"))

	out, err := d.Execute(context.Background(), "echo", json.RawMessage(`{"message":"hello"}`), "")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestDispatcherExecuteNotFound(t *testing.T) {
	d := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), "missing", nil, "")
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolNotFound, inqerr.CodeOf(err))
	assert.True(t, inqerr.IsNotFound(err))
}

func TestDispatcherExecuteSchemaGate(t *testing.T) {
	called := false
	def := echoDefinition("strict")
	inner := def.Handler
	def.Handler = func(ctx context.Context, req Request) (string, error) {
		called = true
		return inner(ctx, req)
	}
	d := newTestDispatcher(t, def)

	_, err := d.Execute(context.Background(), "strict", json.RawMessage(`{"message":3}`), "")
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolArgsInvalid, inqerr.CodeOf(err))
	assert.False(t, called, "handler must not run on schema violation")
}

func TestDispatcherExecuteTimeout(t *testing.T) {
	def := Definition{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context, _ Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	d := newTestDispatcher(t, def)

	_, err := d.Execute(context.Background(), "slow", nil, "")
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolTimeout, inqerr.CodeOf(err))
	assert.True(t, inqerr.IsTimeout(err))
}

func TestDispatcherExecuteHandlerFailure(t *testing.T) {
	def := Definition{
		Name: "fails",
		Handler: func(context.Context, Request) (string, error) {
			return "", errors.New("backend exploded")
		},
	}
	d := newTestDispatcher(t, def)

	_, err := d.Execute(context.Background(), "fails", nil, "")
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolHandlerFailure, inqerr.CodeOf(err))
}

func TestDispatcherExecutePanicRecovered(t *testing.T) {
	def := Definition{
		Name: "panics",
		Handler: func(context.Context, Request) (string, error) {
			panic("boom")
		},
	}
	d := newTestDispatcher(t, def)

	_, err := d.Execute(context.Background(), "panics", nil, "")
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolHandlerFailure, inqerr.CodeOf(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestDispatcherExecutePassesUserToken(t *testing.T) {
	var seen string
	def := Definition{
		Name: "observer",
		Handler: func(_ context.Context, req Request) (string, error) {
			seen = req.UserToken
			return "ok", nil
		},
	}
	d := newTestDispatcher(t, def)

	_, err := d.Execute(context.Background(), "observer", nil, "user-token-123")
	require.NoError(t, err)
	assert.Equal(t, "user-token-123", seen)
}

func TestDispatcherOutcome(t *testing.T) {
	d := newTestDispatcher(t, echoDefinition("echo"))

	inv := conversation.ToolInvocation{
		ID:        "call_1",
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi"}`),
	}
	out := d.Outcome(context.Background(), inv, "")
	assert.Equal(t, "call_1", out.InvocationID)
	assert.Equal(t, "hi", out.Payload)
	assert.False(t, out.IsError)
}

func TestDispatcherOutcomeFoldsErrors(t *testing.T) {
	d := newTestDispatcher(t, echoDefinition("echo"))

	tests := []struct {
		name string
		inv  conversation.ToolInvocation
	}{
		{
			name: "unknown tool",
			inv:  conversation.ToolInvocation{ID: "call_a", Name: "nope"},
		},
		{
			name: "bad arguments",
			inv:  conversation.ToolInvocation{ID: "call_b", Name: "echo", Arguments: json.RawMessage(`{}`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := d.Outcome(context.Background(), tt.inv, "")
			assert.Equal(t, tt.inv.ID, out.InvocationID)
			assert.True(t, out.IsError)
			assert.NotEmpty(t, out.Payload)
		})
	}
}
