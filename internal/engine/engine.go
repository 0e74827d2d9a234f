// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package engine abstracts the reasoning engine: the external model that,
// given a conversation and tool schemas, produces text and/or tool
// invocation requests.
//
// Adapters stream partial output to an optional delta sink for display,
// but Generate always returns the complete assistant turn. Conversation
// state is built from that complete turn, never from the deltas.
package engine

import (
	"context"

	"github.com/inquest-dev/inquest/internal/conversation"
)

// Engine is the black-box reasoning engine interface.
type Engine interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Turn, error)
}

// ToolSchema describes one tool offered to the engine: its name, what it
// does, and the structural shape of accepted arguments (JSON Schema).
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one reasoning-engine call: the full conversation so far plus
// the tool schemas the engine may invoke. An empty Tools slice forces a
// text-only reply.
type Request struct {
	Model    string
	System   string
	Messages []conversation.Message
	Tools    []ToolSchema

	MaxTokens   int
	Temperature float32

	// OnTextDelta, when non-nil, receives partial text as it streams.
	// It is a display side-channel only; the returned Turn is the
	// authoritative record.
	OnTextDelta func(text string)
}

// StopReason reports why the engine ended its turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Usage tracks token consumption for one engine call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates another call's usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Turn is one complete assistant turn: ordered text and tool-invocation
// blocks produced as a unit, never assembled from a partially-seen stream.
type Turn struct {
	Blocks     []conversation.Block
	StopReason StopReason
	Usage      Usage
}

// Invocations returns the turn's tool-invocation blocks in order.
func (t *Turn) Invocations() []conversation.ToolInvocation {
	var out []conversation.ToolInvocation
	for _, b := range t.Blocks {
		if b.Type == conversation.BlockTypeToolInvocation && b.Invocation != nil {
			out = append(out, *b.Invocation)
		}
	}
	return out
}

// HasToolCalls reports whether the turn requests any tool invocations.
func (t *Turn) HasToolCalls() bool {
	return len(t.Invocations()) > 0
}

// Text concatenates the turn's text blocks in order.
func (t *Turn) Text() string {
	var out string
	for _, b := range t.Blocks {
		if b.Type == conversation.BlockTypeText {
			out += b.Text
		}
	}
	return out
}
