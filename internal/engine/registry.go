// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package engine

import (
	"strings"
	"sync"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Registry maps engine names to Engine implementations and resolves
// "engine/model" references. Read-mostly after startup.
type Registry struct {
	mu         sync.RWMutex
	engines    map[string]Engine
	defaultRef string
}

// NewRegistry creates a Registry. defaultRef is the "engine/model"
// reference used when a caller supplies no model.
func NewRegistry(defaultRef string) *Registry {
	return &Registry{
		engines:    make(map[string]Engine),
		defaultRef: defaultRef,
	}
}

// Register adds an engine under its own name. Registering the same name
// twice is a configuration error.
func (r *Registry) Register(e Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Name()
	if _, exists := r.engines[name]; exists {
		return inqerr.New(inqerr.CodeConfigValidateInvalidValue,
			"engine already registered", inqerr.FieldEngine(name))
	}
	r.engines[name] = e
	return nil
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[name]
	if !ok {
		return nil, inqerr.New(inqerr.CodeEngineNotFound,
			"engine not registered", inqerr.FieldEngine(name))
	}
	return e, nil
}

// Resolve parses an "engine/model" reference (or the default when ref is
// empty) and returns the engine plus the bare model name.
func (r *Registry) Resolve(ref string) (Engine, string, error) {
	if ref == "" {
		ref = r.defaultRef
	}

	idx := strings.Index(ref, "/")
	if idx <= 0 || idx == len(ref)-1 {
		return nil, "", inqerr.Errorf(inqerr.CodeEngineRequestInvalid,
			"model reference must be in \"engine/model\" format, got %q", ref)
	}

	e, err := r.Get(ref[:idx])
	if err != nil {
		return nil, "", err
	}
	return e, ref[idx+1:], nil
}

// Names returns the registered engine names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}
