// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package tool

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// entry pairs a definition with its compiled argument schema.
type entry struct {
	def    Definition
	schema *jsonschema.Schema
}

// Registry maps tool names to definitions and compiled input schemas.
// Schemas are compiled once at registration so unregistered tools and
// malformed schemas are caught at startup, not at dispatch time. The
// registry is read-only after startup and freely shared.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register adds a definition, compiling its input schema. Duplicate names
// and uncompilable schemas are rejected.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return inqerr.New(inqerr.CodeToolSchemaInvalid, "tool name is required")
	}
	if def.Handler == nil {
		return inqerr.New(inqerr.CodeToolSchemaInvalid,
			"tool handler is required", inqerr.FieldTool(def.Name))
	}

	schema, err := compileSchema(def.Name, def.InputSchema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return inqerr.New(inqerr.CodeToolRegisterConflict,
			"tool already registered", inqerr.FieldTool(def.Name))
	}
	r.tools[def.Name] = &entry{def: def, schema: schema}
	return nil
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Definitions returns all registered definitions, sorted by name for a
// stable listing order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ValidateArguments checks raw JSON arguments against the tool's compiled
// input schema. A schema violation is a gateway-level rejection: the
// handler must never see malformed input.
func (r *Registry) ValidateArguments(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return inqerr.New(inqerr.CodeToolNotFound,
			"tool not registered", inqerr.FieldTool(name))
	}
	if e.schema == nil {
		return nil
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var payload any
	if err := json.Unmarshal(args, &payload); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolArgsInvalid,
			"tool %q: arguments are not valid JSON", name)
	}

	if err := e.schema.Validate(payload); err != nil {
		return inqerr.Wrapf(err, inqerr.CodeToolArgsInvalid,
			"tool %q: arguments violate input schema", name)
	}
	return nil
}

func compileSchema(name string, raw map[string]any) (*jsonschema.Schema, error) {
	if raw == nil {
		return nil, nil
	}

	// Round-trip through JSON so schema values use the types the compiler
	// expects regardless of how the map was authored.
	doc, err := normalizeSchema(raw)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolSchemaInvalid,
			"tool %q: encoding input schema", name)
	}

	c := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolSchemaInvalid,
			"tool %q: adding schema resource", name)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeToolSchemaInvalid,
			"tool %q: compiling input schema", name)
	}
	return schema, nil
}

func normalizeSchema(raw map[string]any) (any, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
