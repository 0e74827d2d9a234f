// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package conversation

import (
	"time"

	"github.com/google/uuid"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Conversation is the ordered, append-only turn history for one
// investigation. It is owned by a single orchestration loop instance;
// concurrent mutation for the same id requires external serialization.
type Conversation struct {
	ID       string
	messages []Message
}

// New creates an empty conversation with a fresh id.
func New() *Conversation {
	return &Conversation{ID: uuid.New().String()}
}

// NewWithID creates an empty conversation with the given id.
func NewWithID(id string) *Conversation {
	return &Conversation{ID: id}
}

// Append adds a message to the history. The block slice is deep-copied so
// the appended message cannot be mutated through the caller's reference.
func (c *Conversation) Append(role Role, blocks []Block) Message {
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Blocks:    copyBlocks(blocks),
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// AppendMessage adds an already-built message, deep-copying its blocks.
// Used when replaying a persisted conversation.
func (c *Conversation) AppendMessage(msg Message) {
	msg.Blocks = copyBlocks(msg.Blocks)
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the message history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// LastAssistantText returns the concatenated text of the most recent
// assistant message, or "" if none exists.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i].Text()
		}
	}
	return ""
}

// Validate checks the invocation/outcome pairing invariant: every
// ToolInvocation block in an assistant message must be answered by exactly
// one ToolOutcome block, carrying the same invocation id and in the same
// order, in the immediately following tool-result message, before any
// subsequent assistant message. A conversation that fails Validate must
// not be replayed to the reasoning engine.
func (c *Conversation) Validate() error {
	for i, msg := range c.messages {
		switch msg.Role {
		case RoleAssistant:
			invocations := msg.Invocations()
			if len(invocations) == 0 {
				continue
			}
			if i+1 >= len(c.messages) {
				return inqerr.New(inqerr.CodeConversationUnpaired,
					"assistant message has unanswered tool invocations",
					inqerr.FieldConversationID(c.ID),
					inqerr.Field("message_index", i),
				)
			}
			next := c.messages[i+1]
			if next.Role != RoleToolResult {
				return inqerr.New(inqerr.CodeConversationUnpaired,
					"tool invocations must be followed by a tool-result message",
					inqerr.FieldConversationID(c.ID),
					inqerr.Field("message_index", i),
				)
			}
			outcomes := next.Outcomes()
			if len(outcomes) != len(invocations) {
				return inqerr.Errorf(inqerr.CodeConversationUnpaired,
					"conversation %s: %d invocations answered by %d outcomes at message %d",
					c.ID, len(invocations), len(outcomes), i)
			}
			for j, inv := range invocations {
				if outcomes[j].InvocationID != inv.ID {
					return inqerr.Errorf(inqerr.CodeConversationUnpaired,
						"conversation %s: outcome %d answers invocation %q, expected %q",
						c.ID, j, outcomes[j].InvocationID, inv.ID)
				}
			}
		case RoleToolResult:
			if i == 0 || c.messages[i-1].Role != RoleAssistant {
				return inqerr.New(inqerr.CodeConversationUnpaired,
					"tool-result message does not follow an assistant message",
					inqerr.FieldConversationID(c.ID),
					inqerr.Field("message_index", i),
				)
			}
		}
	}
	return nil
}
