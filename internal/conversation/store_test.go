// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package conversation_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/inquest-dev/inquest/internal/conversation"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T) *conversation.Conversation {
	t.Helper()

	conv := conversation.New()
	conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("what broke?")})
	conv.Append(conversation.RoleAssistant, []conversation.Block{
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{"sql":"SELECT 1"}`)),
	})
	conv.Append(conversation.RoleToolResult, []conversation.Block{
		conversation.OutcomeBlock("inv-1", "1", false),
	})
	conv.Append(conversation.RoleAssistant, []conversation.Block{conversation.TextBlock("nothing broke")})
	return conv
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := conversation.NewMemoryStore()

	conv := seedConversation(t)
	require.NoError(t, st.Put(ctx, conv))

	got, err := st.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Len(), got.Len())
	assert.Equal(t, "nothing broke", got.LastAssistantText())
	require.NoError(t, got.Validate())
}

func TestMemoryStoreGetUnknownID(t *testing.T) {
	st := conversation.NewMemoryStore()
	_, err := st.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, inqerr.IsNotFound(err))
}

func TestMemoryStoreAppendMessage(t *testing.T) {
	ctx := context.Background()
	st := conversation.NewMemoryStore()

	conv := conversation.New()
	msg := conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("q")})
	require.NoError(t, st.Put(ctx, conv))

	followup := msg
	followup.ID = "msg-2"
	require.NoError(t, st.AppendMessage(ctx, conv.ID, followup))

	got, err := st.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())

	err = st.AppendMessage(ctx, "missing", followup)
	assert.True(t, inqerr.IsNotFound(err))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "conversations.db")

	st, err := conversation.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	conv := seedConversation(t)
	require.NoError(t, st.Put(ctx, conv))

	got, err := st.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, conv.Len(), got.Len())

	msgs := got.Messages()
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "dataset_query", msgs[1].Invocations()[0].Name)
	assert.Equal(t, "inv-1", msgs[2].Outcomes()[0].InvocationID)
	require.NoError(t, got.Validate())
}

func TestSQLiteStoreAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "conversations.db")

	st, err := conversation.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	conv := conversation.New()
	first := conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("one")})
	require.NoError(t, st.Put(ctx, conv))

	second := first
	second.ID = "msg-2"
	second.Blocks = []conversation.Block{conversation.TextBlock("two")}
	require.NoError(t, st.AppendMessage(ctx, conv.ID, second))

	got, err := st.Get(ctx, conv.ID)
	require.NoError(t, err)
	msgs := got.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text())
	assert.Equal(t, "two", msgs[1].Text())
}

func TestSQLiteStoreGetUnknownID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conversations.db")

	st, err := conversation.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, inqerr.IsNotFound(err))
}
