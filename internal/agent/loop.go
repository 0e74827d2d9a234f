// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package agent runs investigations: a bounded reason-act loop that
// alternates reasoning engine calls with tool execution until the engine
// produces a final answer or the iteration budget runs out.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inquest-dev/inquest/internal/conversation"
	"github.com/inquest-dev/inquest/internal/engine"
	"github.com/inquest-dev/inquest/internal/tool"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// defaultMaxIterations bounds the reason-act loop when MaxIterations is
// not configured. Each iteration is one engine call plus the tool calls
// it requests.
const defaultMaxIterations = 10

// State names the phase an investigation is in.
type State string

const (
	// StateAwaitingModel means an engine call is in flight.
	StateAwaitingModel State = "awaiting_model"
	// StateExecutingTools means requested tool invocations are running.
	StateExecutingTools State = "executing_tools"
	// StateDone means the investigation has produced its final answer.
	StateDone State = "done"
)

// Config holds dependencies for the Loop.
type Config struct {
	Engines    *engine.Registry
	Dispatcher *tool.Dispatcher
	Store      conversation.Store
	// MaxIterations bounds engine calls per investigation. Zero selects
	// the default of 10.
	MaxIterations int
	// System is the system prompt sent on every engine call.
	System      string
	MaxTokens   int
	Temperature float32
}

// Request starts or continues one investigation.
type Request struct {
	// ConversationID continues an existing conversation when set.
	ConversationID string
	// Prompt is the user's question or instruction.
	Prompt string
	// EngineRef selects the engine and model, as "engine/model". Empty
	// selects the registry default.
	EngineRef string
	// UserToken is the caller's own credential, passed through to tool
	// handlers so backends enforce the caller's permissions.
	UserToken string
	// OnEvent receives streaming progress events. Optional.
	OnEvent EmitFunc
}

// Result is the completed investigation.
type Result struct {
	ConversationID string
	// Text is the final assistant answer.
	Text string
	// Iterations is the number of engine calls made.
	Iterations int
	Usage      engine.Usage
	// Incomplete is set when the iteration budget ran out and the final
	// answer was forced without tool access.
	Incomplete bool
}

// Loop drives investigations.
type Loop struct {
	engines       *engine.Registry
	dispatcher    *tool.Dispatcher
	store         conversation.Store
	maxIterations int
	system        string
	maxTokens     int
	temperature   float32
}

// NewLoop creates a Loop with the given dependencies.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Engines == nil {
		return nil, inqerr.New(inqerr.CodeLoopInvalidInput, "engine registry is required")
	}
	if cfg.Dispatcher == nil {
		return nil, inqerr.New(inqerr.CodeLoopInvalidInput, "tool dispatcher is required")
	}
	if cfg.Store == nil {
		return nil, inqerr.New(inqerr.CodeLoopInvalidInput, "conversation store is required")
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return &Loop{
		engines:       cfg.Engines,
		dispatcher:    cfg.Dispatcher,
		store:         cfg.Store,
		maxIterations: maxIter,
		system:        cfg.System,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
	}, nil
}

// Run executes one investigation to completion. On a normal turn the
// engine either answers in text, which ends the loop, or requests tool
// calls, which are all executed and answered in one tool-result message
// before the next engine call. When the iteration budget is exhausted a
// final engine call is made without tools so the investigation always
// ends in text, marked Incomplete.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, inqerr.New(inqerr.CodeLoopInvalidInput, "prompt is required")
	}
	eng, model, err := l.engines.Resolve(req.EngineRef)
	if err != nil {
		return nil, err
	}

	conv, err := l.loadConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	userMsg := conv.Append(conversation.RoleUser, []conversation.Block{
		conversation.TextBlock(req.Prompt),
	})
	if err := l.store.AppendMessage(ctx, conv.ID, userMsg); err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeLoopFailure,
			"persisting user message in conversation %s", conv.ID)
	}

	tools := l.toolSchemas()
	result := &Result{ConversationID: conv.ID}
	start := time.Now()

	for iter := 0; iter < l.maxIterations; iter++ {
		slog.Debug("investigation state",
			"conversation_id", conv.ID, "state", StateAwaitingModel, "iteration", iter)
		turn, err := l.callEngine(ctx, eng, model, conv, tools, req.OnEvent)
		if err != nil {
			emit(req.OnEvent, Event{Type: EventError, Message: err.Error()})
			return nil, err
		}
		result.Iterations++
		result.Usage.Add(turn.Usage)

		asstMsg := conv.Append(conversation.RoleAssistant, turn.Blocks)
		if err := l.store.AppendMessage(ctx, conv.ID, asstMsg); err != nil {
			return nil, inqerr.Wrapf(err, inqerr.CodeLoopFailure,
				"persisting assistant message in conversation %s", conv.ID)
		}

		if !turn.HasToolCalls() {
			result.Text = turn.Text()
			l.finish(conv, result, start)
			emit(req.OnEvent, Event{Type: EventDone})
			return result, nil
		}

		slog.Debug("investigation state",
			"conversation_id", conv.ID, "state", StateExecutingTools, "tools", len(turn.Invocations()))
		toolMsg, err := l.executeTools(ctx, conv, turn.Invocations(), req.UserToken, req.OnEvent)
		if err != nil {
			emit(req.OnEvent, Event{Type: EventError, Message: err.Error()})
			return nil, err
		}
		if err := l.store.AppendMessage(ctx, conv.ID, toolMsg); err != nil {
			return nil, inqerr.Wrapf(err, inqerr.CodeLoopFailure,
				"persisting tool results in conversation %s", conv.ID)
		}
	}

	// Budget exhausted. One final call without tools forces a text answer
	// so the conversation never ends on an open tool request.
	turn, err := l.callEngine(ctx, eng, model, conv, nil, req.OnEvent)
	if err != nil {
		emit(req.OnEvent, Event{Type: EventError, Message: err.Error()})
		return nil, err
	}
	result.Iterations++
	result.Usage.Add(turn.Usage)
	result.Incomplete = true

	asstMsg := conv.Append(conversation.RoleAssistant, textOnly(turn.Blocks))
	if err := l.store.AppendMessage(ctx, conv.ID, asstMsg); err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeLoopFailure,
			"persisting final message in conversation %s", conv.ID)
	}
	result.Text = asstMsg.Text()
	l.finish(conv, result, start)
	emit(req.OnEvent, Event{Type: EventDone})
	return result, nil
}

func (l *Loop) loadConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	if id != "" {
		conv, err := l.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := conv.Validate(); err != nil {
			return nil, err
		}
		return conv, nil
	}

	conv := conversation.New()
	if err := l.store.Put(ctx, conv); err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeLoopFailure, "creating conversation")
	}
	return conv, nil
}

func (l *Loop) callEngine(
	ctx context.Context,
	eng engine.Engine,
	model string,
	conv *conversation.Conversation,
	tools []engine.ToolSchema,
	onEvent EmitFunc,
) (*engine.Turn, error) {
	turn, err := eng.Generate(ctx, engine.Request{
		Model:       model,
		System:      l.system,
		Messages:    conv.Messages(),
		Tools:       tools,
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
		OnTextDelta: func(text string) {
			emit(onEvent, Event{Type: EventTextDelta, Text: text})
		},
	})
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeLoopFailure,
			"engine %s call failed in conversation %s", eng.Name(), conv.ID)
	}
	return turn, nil
}

// executeTools runs every requested invocation and builds one tool-result
// message answering all of them in request order. Execution is concurrent
// but the outcome order always mirrors the invocation order, and every
// failure becomes an error outcome rather than a loop failure.
func (l *Loop) executeTools(
	ctx context.Context,
	conv *conversation.Conversation,
	invocations []conversation.ToolInvocation,
	userToken string,
	onEvent EmitFunc,
) (conversation.Message, error) {
	for _, inv := range invocations {
		emit(onEvent, Event{Type: EventToolStarted, InvocationID: inv.ID, ToolName: inv.Name})
	}

	outcomes := make([]conversation.ToolOutcome, len(invocations))
	var wg sync.WaitGroup
	for i, inv := range invocations {
		wg.Add(1)
		go func(i int, inv conversation.ToolInvocation) {
			defer wg.Done()
			outcomes[i] = l.dispatcher.Outcome(ctx, inv, userToken)
		}(i, inv)
	}
	wg.Wait()

	blocks := make([]conversation.Block, 0, len(outcomes))
	for i, out := range outcomes {
		emit(onEvent, Event{
			Type:         EventToolFinished,
			InvocationID: out.InvocationID,
			ToolName:     invocations[i].Name,
			IsError:      out.IsError,
		})
		blocks = append(blocks, conversation.OutcomeBlock(out.InvocationID, out.Payload, out.IsError))
	}

	msg := conv.Append(conversation.RoleToolResult, blocks)
	if err := conv.Validate(); err != nil {
		return conversation.Message{}, err
	}
	return msg, nil
}

func (l *Loop) finish(conv *conversation.Conversation, result *Result, start time.Time) {
	slog.Info("investigation finished",
		"conversation_id", conv.ID,
		"state", StateDone,
		"iterations", result.Iterations,
		"incomplete", result.Incomplete,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

func (l *Loop) toolSchemas() []engine.ToolSchema {
	defs := l.dispatcher.Registry().Definitions()
	schemas := make([]engine.ToolSchema, 0, len(defs))
	for _, def := range defs {
		schemas = append(schemas, engine.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return schemas
}

// textOnly drops anything that is not a text block. Used on the forced
// final turn, where tool requests can no longer be answered.
func textOnly(blocks []conversation.Block) []conversation.Block {
	kept := make([]conversation.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == conversation.BlockTypeText {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, conversation.TextBlock(""))
	}
	return kept
}
