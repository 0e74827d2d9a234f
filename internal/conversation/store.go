// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package conversation

import (
	"context"
	"sync"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Store persists conversation histories. The orchestration loop owns the
// live Conversation object; the store exists for durability and replay.
type Store interface {
	Put(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	AppendMessage(ctx context.Context, id string, msg Message) error
	Close() error
}

// NewStore creates a Store for the named backend ("memory" or "sqlite").
func NewStore(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, inqerr.Errorf(inqerr.CodeConfigValidateInvalidValue,
			"unsupported conversation store backend %q", backend)
	}
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: map[string][]Message{}}
}

func (s *MemoryStore) Put(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = conv.Messages()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.convs[id]
	if !ok {
		return nil, inqerr.New(inqerr.CodeConversationNotFound,
			"conversation not found", inqerr.FieldConversationID(id))
	}

	conv := NewWithID(id)
	for _, m := range msgs {
		conv.AppendMessage(m)
	}
	return conv, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return inqerr.New(inqerr.CodeConversationNotFound,
			"conversation not found", inqerr.FieldConversationID(id))
	}
	msg.Blocks = copyBlocks(msg.Blocks)
	s.convs[id] = append(s.convs[id], msg)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
