// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquest-dev/inquest/internal/conversation"
	"github.com/inquest-dev/inquest/internal/engine"
	"github.com/inquest-dev/inquest/internal/tool"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// scriptedEngine returns pre-built turns in order, recording each request
// it sees.
type scriptedEngine struct {
	mu       sync.Mutex
	turns    []*engine.Turn
	err      error
	requests []engine.Request
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Generate(_ context.Context, req engine.Request) (*engine.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.turns) == 0 {
		return &engine.Turn{
			Blocks:     []conversation.Block{conversation.TextBlock("out of script")},
			StopReason: engine.StopEndTurn,
		}, nil
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	return turn, nil
}

func textTurn(text string) *engine.Turn {
	return &engine.Turn{
		Blocks:     []conversation.Block{conversation.TextBlock(text)},
		StopReason: engine.StopEndTurn,
		Usage:      engine.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolTurn(text string, invocations ...conversation.ToolInvocation) *engine.Turn {
	blocks := []conversation.Block{}
	if text != "" {
		blocks = append(blocks, conversation.TextBlock(text))
	}
	for _, inv := range invocations {
		blocks = append(blocks, conversation.InvocationBlock(inv.ID, inv.Name, inv.Arguments))
	}
	return &engine.Turn{
		Blocks:     blocks,
		StopReason: engine.StopToolUse,
		Usage:      engine.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestLoop(t *testing.T, eng engine.Engine, maxIterations int, defs ...tool.Definition) (*Loop, conversation.Store) {
	t.Helper()

	registry := engine.NewRegistry("scripted/test-model")
	require.NoError(t, registry.Register(eng))

	toolReg := tool.NewRegistry()
	for _, def := range defs {
		require.NoError(t, toolReg.Register(def))
	}
	dispatcher, err := tool.NewDispatcher(toolReg, 0)
	require.NoError(t, err)

	store := conversation.NewMemoryStore()
	loop, err := NewLoop(Config{
		Engines:       registry,
		Dispatcher:    dispatcher,
		Store:         store,
		MaxIterations: maxIterations,
		System:        "You investigate incidents.",
	})
	require.NoError(t, err)
	return loop, store
}

func lookupTool(name string) tool.Definition {
	return tool.Definition{
		Name:        name,
		Description: "returns a canned lookup result",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{"type": "string"},
			},
			"required": []any{"key"},
		},
		Handler: func(_ context.Context, req tool.Request) (string, error) {
			var args struct {
				Key string `json:"key"`
			}
			if err := json.Unmarshal(req.Arguments, &args); err != nil {
				return "", err
			}
			return fmt.Sprintf("value-for-%s", args.Key), nil
		},
	}
}

func TestLoopTextOnlyAnswer(t *testing.T) {
	eng := &scriptedEngine{turns: []*engine.Turn{textTurn("the disk is full")}}
	loop, _ := newTestLoop(t, eng, 5)

	result, err := loop.Run(context.Background(), Request{Prompt: "why is db-2 slow?"})
	require.NoError(t, err)
	assert.Equal(t, "the disk is full", result.Text)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, result.Incomplete)
	assert.Equal(t, engine.Usage{InputTokens: 10, OutputTokens: 5}, result.Usage)
}

func TestLoopToolRoundTrip(t *testing.T) {
	inv := conversation.ToolInvocation{
		ID:        "call_1",
		Name:      "lookup",
		Arguments: json.RawMessage(`{"key":"db-2"}`),
	}
	eng := &scriptedEngine{turns: []*engine.Turn{
		toolTurn("checking the host", inv),
		textTurn("db-2 maps to value-for-db-2"),
	}}
	loop, store := newTestLoop(t, eng, 5, lookupTool("lookup"))

	result, err := loop.Run(context.Background(), Request{Prompt: "look up db-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, "db-2 maps to value-for-db-2", result.Text)

	// The engine's second call must see the tool result paired to the
	// invocation.
	require.Len(t, eng.requests, 2)
	msgs := eng.requests[1].Messages
	require.Len(t, msgs, 3) // user, assistant, tool_result
	assert.Equal(t, conversation.RoleToolResult, msgs[2].Role)
	outcomes := msgs[2].Outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "call_1", outcomes[0].InvocationID)
	assert.Equal(t, "value-for-db-2", outcomes[0].Payload)
	assert.False(t, outcomes[0].IsError)

	// The persisted conversation holds the full paired record.
	conv, err := store.Get(context.Background(), result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 4, conv.Len())
	assert.NoError(t, conv.Validate())
}

func TestLoopThreeSequentialToolRounds(t *testing.T) {
	mkInv := func(id, key string) conversation.ToolInvocation {
		return conversation.ToolInvocation{
			ID:        id,
			Name:      "lookup",
			Arguments: json.RawMessage(fmt.Sprintf(`{"key":%q}`, key)),
		}
	}
	eng := &scriptedEngine{turns: []*engine.Turn{
		toolTurn("checking the host", mkInv("call_1", "host")),
		toolTurn("checking the disk", mkInv("call_2", "disk")),
		toolTurn("checking the log", mkInv("call_3", "log")),
		textTurn("the disk filled up"),
	}}
	loop, store := newTestLoop(t, eng, 5, lookupTool("lookup"))

	result, err := loop.Run(context.Background(), Request{Prompt: "why is db-2 slow?"})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, "the disk filled up", result.Text)
	assert.False(t, result.Incomplete)

	// Each engine call after the first must see one more assistant and
	// one more paired tool-result message than the previous one.
	require.Len(t, eng.requests, 4)
	for i, req := range eng.requests {
		require.Len(t, req.Messages, 1+2*i)
		for _, wantID := range []string{"call_1", "call_2", "call_3"}[:i] {
			found := false
			for _, msg := range req.Messages {
				for _, out := range msg.Outcomes() {
					if out.InvocationID == wantID {
						found = true
						assert.False(t, out.IsError)
					}
				}
			}
			assert.True(t, found, "outcome for %s must precede engine call %d", wantID, i)
		}
	}

	// user + 3x(assistant, tool_result) + final assistant, still valid.
	conv, err := store.Get(context.Background(), result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 8, conv.Len())
	assert.NoError(t, conv.Validate())
}

func TestLoopParallelToolsKeepOrder(t *testing.T) {
	invs := []conversation.ToolInvocation{
		{ID: "call_a", Name: "lookup", Arguments: json.RawMessage(`{"key":"alpha"}`)},
		{ID: "call_b", Name: "lookup", Arguments: json.RawMessage(`{"key":"beta"}`)},
		{ID: "call_c", Name: "lookup", Arguments: json.RawMessage(`{"key":"gamma"}`)},
	}
	eng := &scriptedEngine{turns: []*engine.Turn{
		toolTurn("", invs...),
		textTurn("done"),
	}}
	loop, _ := newTestLoop(t, eng, 5, lookupTool("lookup"))

	_, err := loop.Run(context.Background(), Request{Prompt: "look up all three"})
	require.NoError(t, err)

	outcomes := eng.requests[1].Messages[2].Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, "call_a", outcomes[0].InvocationID)
	assert.Equal(t, "call_b", outcomes[1].InvocationID)
	assert.Equal(t, "call_c", outcomes[2].InvocationID)
	assert.Equal(t, "value-for-alpha", outcomes[0].Payload)
	assert.Equal(t, "value-for-gamma", outcomes[2].Payload)
}

func TestLoopFailedToolBecomesErrorOutcome(t *testing.T) {
	failing := tool.Definition{
		Name: "flaky",
		Handler: func(context.Context, tool.Request) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}
	inv := conversation.ToolInvocation{ID: "call_1", Name: "flaky"}
	eng := &scriptedEngine{turns: []*engine.Turn{
		toolTurn("", inv),
		textTurn("the tool failed, here is what I know"),
	}}
	loop, _ := newTestLoop(t, eng, 5, failing)

	result, err := loop.Run(context.Background(), Request{Prompt: "try the flaky tool"})
	require.NoError(t, err, "a failing tool must not fail the investigation")
	assert.Equal(t, "the tool failed, here is what I know", result.Text)

	outcomes := eng.requests[1].Messages[2].Outcomes()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].IsError)
	assert.Contains(t, outcomes[0].Payload, "backend unreachable")
}

func TestLoopBudgetExhaustedForcesTextAnswer(t *testing.T) {
	inv := conversation.ToolInvocation{
		ID: "call_x", Name: "lookup", Arguments: json.RawMessage(`{"key":"k"}`),
	}
	// The engine asks for tools on every scripted turn; the script runs
	// out right when the forced final call happens.
	eng := &scriptedEngine{turns: []*engine.Turn{
		toolTurn("", inv),
		toolTurn("", conversation.ToolInvocation{ID: "call_y", Name: "lookup", Arguments: json.RawMessage(`{"key":"k"}`)}),
	}}
	loop, store := newTestLoop(t, eng, 2, lookupTool("lookup"))

	result, err := loop.Run(context.Background(), Request{Prompt: "keep digging"})
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.Equal(t, 3, result.Iterations) // 2 budgeted + 1 forced final

	// The forced final call must offer no tools.
	require.Len(t, eng.requests, 3)
	assert.Empty(t, eng.requests[2].Tools)
	assert.NotEmpty(t, eng.requests[0].Tools)

	conv, err := store.Get(context.Background(), result.ConversationID)
	require.NoError(t, err)
	assert.NoError(t, conv.Validate())
}

func TestLoopEngineFailurePropagates(t *testing.T) {
	eng := &scriptedEngine{err: inqerr.New(inqerr.CodeEngineUpstreamFailure, "model overloaded")}
	loop, _ := newTestLoop(t, eng, 5)

	var events []Event
	_, err := loop.Run(context.Background(), Request{
		Prompt:  "anything",
		OnEvent: func(ev Event) { events = append(events, ev) },
	})
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeLoopFailure, inqerr.CodeOf(err))

	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1].Type)
}

func TestLoopEmitsEventSequence(t *testing.T) {
	inv := conversation.ToolInvocation{
		ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{"key":"k"}`),
	}
	eng := &scriptedEngine{turns: []*engine.Turn{
		toolTurn("", inv),
		textTurn("answer"),
	}}
	loop, _ := newTestLoop(t, eng, 5, lookupTool("lookup"))

	var events []Event
	_, err := loop.Run(context.Background(), Request{
		Prompt:  "go",
		OnEvent: func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, EventToolStarted)
	assert.Contains(t, types, EventToolFinished)
	assert.Equal(t, EventDone, types[len(types)-1])

	for i, ev := range events {
		if ev.Type == EventToolStarted {
			assert.Equal(t, "call_1", ev.InvocationID)
			assert.Equal(t, "lookup", ev.ToolName)
			// finished must come after started for the same invocation
			found := false
			for _, later := range events[i+1:] {
				if later.Type == EventToolFinished && later.InvocationID == "call_1" {
					found = true
				}
			}
			assert.True(t, found)
		}
	}
}

func TestLoopContinuesExistingConversation(t *testing.T) {
	eng := &scriptedEngine{turns: []*engine.Turn{
		textTurn("first answer"),
		textTurn("second answer"),
	}}
	loop, _ := newTestLoop(t, eng, 5)

	first, err := loop.Run(context.Background(), Request{Prompt: "first question"})
	require.NoError(t, err)

	second, err := loop.Run(context.Background(), Request{
		ConversationID: first.ConversationID,
		Prompt:         "second question",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	// The second engine call sees the whole history.
	last := eng.requests[len(eng.requests)-1]
	require.Len(t, last.Messages, 3)
	assert.Equal(t, "first question", last.Messages[0].Text())
	assert.Equal(t, "first answer", last.Messages[1].Text())
	assert.Equal(t, "second question", last.Messages[2].Text())
}

func TestLoopUnknownConversation(t *testing.T) {
	eng := &scriptedEngine{}
	loop, _ := newTestLoop(t, eng, 5)

	_, err := loop.Run(context.Background(), Request{
		ConversationID: "no-such-conversation",
		Prompt:         "hello",
	})
	require.Error(t, err)
	assert.True(t, inqerr.IsNotFound(err))
}

func TestLoopRejectsEmptyPrompt(t *testing.T) {
	eng := &scriptedEngine{}
	loop, _ := newTestLoop(t, eng, 5)

	_, err := loop.Run(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, inqerr.CodeLoopInvalidInput, inqerr.CodeOf(err))
}

func TestLoopStreamsTextDeltas(t *testing.T) {
	eng := &deltaEngine{}
	registry := engine.NewRegistry("delta/test-model")
	require.NoError(t, registry.Register(eng))
	dispatcher, err := tool.NewDispatcher(tool.NewRegistry(), 0)
	require.NoError(t, err)
	loop, err := NewLoop(Config{
		Engines:    registry,
		Dispatcher: dispatcher,
		Store:      conversation.NewMemoryStore(),
	})
	require.NoError(t, err)

	var streamed string
	result, err := loop.Run(context.Background(), Request{
		Prompt: "stream it",
		OnEvent: func(ev Event) {
			if ev.Type == EventTextDelta {
				streamed += ev.Text
			}
		},
	})
	require.NoError(t, err)

	// The streamed deltas mirror the recorded answer but the turn record
	// is authoritative.
	assert.Equal(t, "hello world", streamed)
	assert.Equal(t, "hello world", result.Text)
}

// deltaEngine emits its answer through OnTextDelta before returning it.
type deltaEngine struct{}

func (d *deltaEngine) Name() string { return "delta" }

func (d *deltaEngine) Generate(_ context.Context, req engine.Request) (*engine.Turn, error) {
	for _, chunk := range []string{"hello", " ", "world"} {
		if req.OnTextDelta != nil {
			req.OnTextDelta(chunk)
		}
	}
	return &engine.Turn{
		Blocks:     []conversation.Block{conversation.TextBlock("hello world")},
		StopReason: engine.StopEndTurn,
	}, nil
}
