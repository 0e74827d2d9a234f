// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package conversation_test

import (
	"encoding/json"
	"testing"

	"github.com/inquest-dev/inquest/internal/conversation"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCopiesBlocks(t *testing.T) {
	conv := conversation.New()

	blocks := []conversation.Block{
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{"sql":"SELECT 1"}`)),
	}
	conv.Append(conversation.RoleAssistant, blocks)

	// Mutating the caller's slice must not leak into the stored message.
	blocks[0].Invocation.Name = "mutated"

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Invocations(), 1)
	assert.Equal(t, "dataset_query", msgs[0].Invocations()[0].Name)
}

func TestMessageTextConcatenatesBlocks(t *testing.T) {
	conv := conversation.New()
	msg := conv.Append(conversation.RoleAssistant, []conversation.Block{
		conversation.TextBlock("first "),
		conversation.InvocationBlock("inv-1", "code_search", json.RawMessage(`{}`)),
		conversation.TextBlock("second"),
	})

	assert.Equal(t, "first second", msg.Text())
	assert.Len(t, msg.Invocations(), 1)
}

func TestValidatePairedConversation(t *testing.T) {
	conv := conversation.New()
	conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("why is latency up?")})
	conv.Append(conversation.RoleAssistant, []conversation.Block{
		conversation.TextBlock("let me check"),
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{"sql":"SELECT 1"}`)),
		conversation.InvocationBlock("inv-2", "semantic_search", json.RawMessage(`{"query":"latency"}`)),
	})
	conv.Append(conversation.RoleToolResult, []conversation.Block{
		conversation.OutcomeBlock("inv-1", "42", false),
		conversation.OutcomeBlock("inv-2", "no matches", true),
	})
	conv.Append(conversation.RoleAssistant, []conversation.Block{conversation.TextBlock("done")})

	require.NoError(t, conv.Validate())
}

func TestValidateUnansweredInvocation(t *testing.T) {
	conv := conversation.New()
	conv.Append(conversation.RoleAssistant, []conversation.Block{
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{}`)),
	})

	err := conv.Validate()
	require.Error(t, err)
	assert.True(t, inqerr.HasCode(err, inqerr.CodeConversationUnpaired))
}

func TestValidateOutcomeCountMismatch(t *testing.T) {
	conv := conversation.New()
	conv.Append(conversation.RoleAssistant, []conversation.Block{
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{}`)),
		conversation.InvocationBlock("inv-2", "code_search", json.RawMessage(`{}`)),
	})
	conv.Append(conversation.RoleToolResult, []conversation.Block{
		conversation.OutcomeBlock("inv-1", "ok", false),
	})

	err := conv.Validate()
	require.Error(t, err)
	assert.True(t, inqerr.HasCode(err, inqerr.CodeConversationUnpaired))
}

func TestValidateOutcomeOrderMismatch(t *testing.T) {
	conv := conversation.New()
	conv.Append(conversation.RoleAssistant, []conversation.Block{
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{}`)),
		conversation.InvocationBlock("inv-2", "code_search", json.RawMessage(`{}`)),
	})
	conv.Append(conversation.RoleToolResult, []conversation.Block{
		conversation.OutcomeBlock("inv-2", "ok", false),
		conversation.OutcomeBlock("inv-1", "ok", false),
	})

	err := conv.Validate()
	require.Error(t, err)
	assert.True(t, inqerr.HasCode(err, inqerr.CodeConversationUnpaired))
}

func TestValidateDanglingToolResult(t *testing.T) {
	conv := conversation.New()
	conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("hi")})
	conv.Append(conversation.RoleToolResult, []conversation.Block{
		conversation.OutcomeBlock("inv-1", "orphan", false),
	})

	err := conv.Validate()
	require.Error(t, err)
	assert.True(t, inqerr.HasCode(err, inqerr.CodeConversationUnpaired))
}

func TestLastAssistantText(t *testing.T) {
	conv := conversation.New()
	assert.Empty(t, conv.LastAssistantText())

	conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("q")})
	conv.Append(conversation.RoleAssistant, []conversation.Block{conversation.TextBlock("a1")})
	conv.Append(conversation.RoleUser, []conversation.Block{conversation.TextBlock("q2")})
	conv.Append(conversation.RoleAssistant, []conversation.Block{conversation.TextBlock("a2")})

	assert.Equal(t, "a2", conv.LastAssistantText())
}

func TestBlockJSONRoundTrip(t *testing.T) {
	blocks := []conversation.Block{
		conversation.TextBlock("hello"),
		conversation.InvocationBlock("inv-1", "dataset_query", json.RawMessage(`{"sql":"SELECT 1"}`)),
		conversation.OutcomeBlock("inv-1", "1", false),
	}

	raw, err := json.Marshal(blocks)
	require.NoError(t, err)

	var decoded []conversation.Block
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, conversation.BlockTypeText, decoded[0].Type)
	assert.Equal(t, "dataset_query", decoded[1].Invocation.Name)
	assert.Equal(t, "inv-1", decoded[2].Outcome.InvocationID)
}
