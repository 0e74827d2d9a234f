// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package agent

// EventType identifies a streaming event emitted while an investigation
// runs.
type EventType string

const (
	// EventTextDelta carries an incremental chunk of assistant text.
	EventTextDelta EventType = "text-delta"
	// EventToolStarted fires when a tool invocation begins executing.
	EventToolStarted EventType = "tool-started"
	// EventToolFinished fires when a tool invocation completes, whether or
	// not it succeeded.
	EventToolFinished EventType = "tool-finished"
	// EventDone fires once when the investigation finishes.
	EventDone EventType = "done"
	// EventError fires when the investigation fails. It is terminal.
	EventError EventType = "error"
)

// Event is one streaming progress update. Events exist for observers; the
// conversation record is the only source of truth, and a consumer that
// drops or reorders events loses nothing but display fidelity.
type Event struct {
	Type EventType `json:"type"`
	// Text carries the chunk for text-delta events.
	Text string `json:"text,omitempty"`
	// InvocationID and ToolName identify the call for tool events.
	InvocationID string `json:"invocation_id,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	// IsError marks a failed tool call on tool-finished events.
	IsError bool `json:"is_error,omitempty"`
	// Message carries the failure description for error events.
	Message string `json:"message,omitempty"`
}

// EmitFunc receives streaming events. Implementations must not block for
// long; the loop calls them inline.
type EmitFunc func(Event)

// emit forwards ev to fn when one is registered. A nil emitter makes
// streaming a no-op.
func emit(fn EmitFunc, ev Event) {
	if fn != nil {
		fn(ev)
	}
}
