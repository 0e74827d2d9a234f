// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func echoDefinition(name string) Definition {
	return Definition{
		Name:        name,
		Description: "echoes its message back",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []any{"message"},
		},
		Handler: func(_ context.Context, req Request) (string, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(req.Arguments, &args); err != nil {
				return "", err
			}
			return args.Message, nil
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	def, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", def.Name)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	err := r.Register(echoDefinition("echo"))
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolRegisterConflict, inqerr.CodeOf(err))
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Definition{Handler: func(context.Context, Request) (string, error) { return "", nil }})
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolSchemaInvalid, inqerr.CodeOf(err))

	err = r.Register(Definition{Name: "no-handler"})
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolSchemaInvalid, inqerr.CodeOf(err))
}

func TestRegistryRegisterBadSchema(t *testing.T) {
	r := NewRegistry()
	def := echoDefinition("broken")
	def.InputSchema = map[string]any{"type": 42}

	err := r.Register(def)
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolSchemaInvalid, inqerr.CodeOf(err))
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(echoDefinition(name)))
	}

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestRegistryValidateArguments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition("echo")))

	tests := []struct {
		name     string
		tool     string
		args     string
		wantCode inqerr.Code
	}{
		{name: "valid", tool: "echo", args: `{"message":"hi"}`},
		{name: "missing required", tool: "echo", args: `{}`, wantCode: inqerr.CodeToolArgsInvalid},
		{name: "wrong type", tool: "echo", args: `{"message":7}`, wantCode: inqerr.CodeToolArgsInvalid},
		{name: "not json", tool: "echo", args: `{`, wantCode: inqerr.CodeToolArgsInvalid},
		{name: "unknown tool", tool: "nope", args: `{}`, wantCode: inqerr.CodeToolNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateArguments(tt.tool, json.RawMessage(tt.args))
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, inqerr.CodeOf(err))
		})
	}
}

func TestRegistryValidateArgumentsEmptyDefaultsToObject(t *testing.T) {
	r := NewRegistry()
	def := echoDefinition("loose")
	def.InputSchema = map[string]any{"type": "object"}
	require.NoError(t, r.Register(def))

	assert.NoError(t, r.ValidateArguments("loose", nil))
}

func TestRegistryNilSchemaSkipsValidation(t *testing.T) {
	r := NewRegistry()
	def := echoDefinition("raw")
	def.InputSchema = nil
	require.NoError(t, r.Register(def))

	assert.NoError(t, r.ValidateArguments("raw", json.RawMessage(`"anything"`)))
}
