// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package engine_test

import (
	"context"
	"testing"

	"github.com/inquest-dev/inquest/internal/engine"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	name string
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Generate(_ context.Context, _ engine.Request) (*engine.Turn, error) {
	return &engine.Turn{StopReason: engine.StopEndTurn}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := engine.NewRegistry("anthropic/claude-sonnet-4-5")

	require.NoError(t, reg.Register(&stubEngine{name: "anthropic"}))

	e, err := reg.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", e.Name())

	_, err = reg.Get("missing")
	require.Error(t, err)
	assert.True(t, inqerr.HasCode(err, inqerr.CodeEngineNotFound))
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	reg := engine.NewRegistry("anthropic/claude-sonnet-4-5")

	require.NoError(t, reg.Register(&stubEngine{name: "anthropic"}))
	err := reg.Register(&stubEngine{name: "anthropic"})
	require.Error(t, err)
}

func TestRegistryResolve(t *testing.T) {
	reg := engine.NewRegistry("anthropic/claude-sonnet-4-5")
	require.NoError(t, reg.Register(&stubEngine{name: "anthropic"}))
	require.NoError(t, reg.Register(&stubEngine{name: "openai"}))

	e, model, err := reg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", e.Name())
	assert.Equal(t, "claude-sonnet-4-5", model)

	e, model, err = reg.Resolve("openai/gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
	assert.Equal(t, "gpt-4.1", model)

	_, _, err = reg.Resolve("no-slash-model")
	require.Error(t, err)
	assert.True(t, inqerr.HasCode(err, inqerr.CodeEngineRequestInvalid))
}
