// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package conversation

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockTypeText           BlockType = "text"
	BlockTypeToolInvocation BlockType = "tool_invocation"
	BlockTypeToolOutcome    BlockType = "tool_outcome"
)

// ToolInvocation is a request by the reasoning engine to run a tool.
type ToolInvocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolOutcome is the result of exactly one ToolInvocation, matched by
// InvocationID. IsError marks handler failures that were folded into
// conversation data rather than aborting the turn.
type ToolOutcome struct {
	InvocationID string `json:"invocation_id"`
	Payload      string `json:"payload"`
	IsError      bool   `json:"is_error"`
}

// Block is one typed content block within a message. Exactly one of the
// payload fields is set, selected by Type.
type Block struct {
	Type       BlockType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
	Outcome    *ToolOutcome    `json:"outcome,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockTypeText, Text: text}
}

// InvocationBlock builds a tool-invocation content block.
func InvocationBlock(id, name string, arguments json.RawMessage) Block {
	return Block{
		Type:       BlockTypeToolInvocation,
		Invocation: &ToolInvocation{ID: id, Name: name, Arguments: arguments},
	}
}

// OutcomeBlock builds a tool-outcome content block.
func OutcomeBlock(invocationID, payload string, isError bool) Block {
	return Block{
		Type:    BlockTypeToolOutcome,
		Outcome: &ToolOutcome{InvocationID: invocationID, Payload: payload, IsError: isError},
	}
}

// Message is one turn in a conversation. Messages are immutable once
// appended; Conversation.Append stores a deep copy of the block slice.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Blocks    []Block   `json:"blocks"`
	CreatedAt time.Time `json:"created_at"`
}

// Text concatenates all text blocks in order.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type == BlockTypeText {
			out += b.Text
		}
	}
	return out
}

// Invocations returns the tool-invocation blocks in the order produced.
func (m *Message) Invocations() []ToolInvocation {
	var out []ToolInvocation
	for _, b := range m.Blocks {
		if b.Type == BlockTypeToolInvocation && b.Invocation != nil {
			out = append(out, *b.Invocation)
		}
	}
	return out
}

// Outcomes returns the tool-outcome blocks in order.
func (m *Message) Outcomes() []ToolOutcome {
	var out []ToolOutcome
	for _, b := range m.Blocks {
		if b.Type == BlockTypeToolOutcome && b.Outcome != nil {
			out = append(out, *b.Outcome)
		}
	}
	return out
}

func copyBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		cp := b
		if b.Invocation != nil {
			inv := *b.Invocation
			inv.Arguments = append(json.RawMessage(nil), b.Invocation.Arguments...)
			cp.Invocation = &inv
		}
		if b.Outcome != nil {
			oc := *b.Outcome
			cp.Outcome = &oc
		}
		out[i] = cp
	}
	return out
}
