// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := inqerr.New(
		inqerr.CodeToolArgsInvalid,
		"arguments rejected",
		inqerr.FieldTool("dataset_query"),
		inqerr.Field("field", "sql"),
	)

	require.Error(t, err)
	assert.Equal(t, inqerr.CodeToolArgsInvalid, inqerr.CodeOf(err))
	assert.True(t, inqerr.HasCode(err, inqerr.CodeToolArgsInvalid))

	fields := inqerr.FieldsOf(err)
	assert.Equal(t, "dataset_query", fields["tool"])
	assert.Equal(t, "sql", fields["field"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := inqerr.Errorf(inqerr.CodeEngineUpstreamFailure, "calling engine %s: status %d", "anthropic", 529)
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeEngineUpstreamFailure, inqerr.CodeOf(err))
	assert.Contains(t, err.Error(), "calling engine anthropic: status 529")
}

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("conversation missing")
	err := inqerr.Wrap(
		root,
		inqerr.CodeConversationNotFound,
		"loading conversation",
		inqerr.FieldConversationID("conv-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, inqerr.CodeConversationNotFound, inqerr.CodeOf(err))
	assert.True(t, inqerr.IsNotFound(err))
	assert.Equal(t, "conv-42", inqerr.FieldsOf(err)["conversation_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, inqerr.Wrap(nil, inqerr.CodeLoopFailure, "ignored"))
	assert.NoError(t, inqerr.Wrapf(nil, inqerr.CodeLoopFailure, "ignored"))
	assert.NoError(t, inqerr.With(nil))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, inqerr.IsUnauthorized(inqerr.New(inqerr.CodeAuthAppUnrecognized, "app not allowed")))
	assert.True(t, inqerr.IsUnauthorized(inqerr.New(inqerr.CodeAuthTokenExpired, "expired")))
	assert.True(t, inqerr.IsTransient(inqerr.New(inqerr.CodeAuthVerifyUnavailable, "introspection unreachable")))
	assert.False(t, inqerr.IsTransient(inqerr.New(inqerr.CodeAuthAppUnrecognized, "app not allowed")))
	assert.True(t, inqerr.IsTimeout(inqerr.New(inqerr.CodeToolTimeout, "deadline")))
	assert.True(t, inqerr.IsBudgetExceeded(inqerr.New(inqerr.CodeLoopBudgetExhausted, "iterations spent")))
	assert.True(t, inqerr.IsUpstreamFailure(inqerr.New(inqerr.CodeEngineUpstreamFailure, "502 from engine")))
	assert.True(t, inqerr.IsInvalidInput(inqerr.New(inqerr.CodeConversationUnpaired, "unpaired invocation")))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", inqerr.New(inqerr.CodeToolNotFound, "x"), http.StatusNotFound},
		{"invalid input", inqerr.New(inqerr.CodeToolArgsInvalid, "x"), http.StatusBadRequest},
		{"unauthorized", inqerr.New(inqerr.CodeAuthTokenInvalid, "x"), http.StatusUnauthorized},
		{"transient", inqerr.New(inqerr.CodeAuthVerifyUnavailable, "x"), http.StatusServiceUnavailable},
		{"budget", inqerr.New(inqerr.CodeLoopBudgetExhausted, "x"), http.StatusTooManyRequests},
		{"timeout", inqerr.New(inqerr.CodeToolTimeout, "x"), http.StatusGatewayTimeout},
		{"upstream", inqerr.New(inqerr.CodeEngineUpstreamFailure, "x"), http.StatusBadGateway},
		{"fallback", stderrors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inqerr.HTTPStatus(tc.err))
		})
	}
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, inqerr.Code(""), inqerr.CodeOf(stderrors.New("plain")))
	assert.False(t, inqerr.HasCode(stderrors.New("plain"), inqerr.CodeLoopFailure))
}
