// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/inquest-dev/inquest/internal/conversation"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// defaultHandlerTimeout bounds a handler call when neither the definition
// nor the dispatcher config sets one.
const defaultHandlerTimeout = 30 * time.Second

// Dispatcher resolves invocations through the Registry and executes
// handlers under a bounded timeout.
type Dispatcher struct {
	registry       *Registry
	defaultTimeout time.Duration
}

// NewDispatcher creates a Dispatcher. A zero defaultTimeout falls back to
// 30 seconds.
func NewDispatcher(registry *Registry, defaultTimeout time.Duration) (*Dispatcher, error) {
	if registry == nil {
		return nil, inqerr.New(inqerr.CodeToolSchemaInvalid, "registry is required")
	}
	if defaultTimeout <= 0 {
		defaultTimeout = defaultHandlerTimeout
	}
	return &Dispatcher{registry: registry, defaultTimeout: defaultTimeout}, nil
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs one tool call: resolve the definition, gate the arguments
// against the input schema, and invoke the handler with a timeout. The
// handler is never invoked with malformed input. Errors are typed:
// tool.registry.not_found, tool.arguments.invalid_input,
// tool.handler.timeout, tool.handler.failure.
func (d *Dispatcher) Execute(ctx context.Context, name string, args json.RawMessage, userToken string) (string, error) {
	def, ok := d.registry.Lookup(name)
	if !ok {
		return "", inqerr.New(inqerr.CodeToolNotFound,
			"tool not registered", inqerr.FieldTool(name))
	}

	if err := d.registry.ValidateArguments(name, args); err != nil {
		return "", err
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := callHandler(execCtx, def.Handler, Request{Arguments: args, UserToken: userToken})
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return "", inqerr.Wrapf(err, inqerr.CodeToolTimeout,
				"tool %q execution timed out after %s", name, timeout)
		}
		return "", inqerr.Wrapf(err, inqerr.CodeToolHandlerFailure,
			"tool %q handler failed", name)
	}

	return content, nil
}

// Outcome executes one invocation and folds every failure mode into a
// ToolOutcome. Tool failure is always data, never a thrown failure that
// aborts the loop.
func (d *Dispatcher) Outcome(ctx context.Context, inv conversation.ToolInvocation, userToken string) conversation.ToolOutcome {
	content, err := d.Execute(ctx, inv.Name, inv.Arguments, userToken)
	if err != nil {
		slog.Debug("tool call failed, folding error into outcome",
			"tool", inv.Name,
			"invocation_id", inv.ID,
			"error", err,
		)
		return conversation.ToolOutcome{
			InvocationID: inv.ID,
			Payload:      err.Error(),
			IsError:      true,
		}
	}
	return conversation.ToolOutcome{
		InvocationID: inv.ID,
		Payload:      content,
	}
}

// callHandler invokes the handler, converting a panic into an error so a
// misbehaving tool cannot take down the loop.
func callHandler(ctx context.Context, handler HandlerFunc, req Request) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, req)
}
