// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Decision is the outcome of validating an app token.
type Decision string

const (
	// DecisionAllow means the token is valid and the app may call tools.
	DecisionAllow Decision = "allow"
	// DecisionDeny means the token is conclusively invalid or the app is
	// not permitted. Denials are cacheable.
	DecisionDeny Decision = "deny"
)

// Verdict is a cacheable validation result. Only conclusive verdicts are
// ever cached; a transient verification failure is reported as an error
// from Validate and never becomes a Verdict.
type Verdict struct {
	Decision Decision `json:"decision"`
	// AppID is the authenticated application, set on Allow.
	AppID string `json:"app_id,omitempty"`
	// Reason explains a denial.
	Reason string `json:"reason,omitempty"`
}

// Allowed reports whether the verdict permits the request.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// VerdictCache stores validation verdicts keyed by token hash. Raw tokens
// never enter the cache.
type VerdictCache interface {
	// Get returns the cached verdict for key, or nil on a miss.
	Get(ctx context.Context, key string) (*Verdict, error)
	// Set stores the verdict for ttl.
	Set(ctx context.Context, key string, verdict Verdict, ttl time.Duration) error
}

// CacheKey derives the cache key for a token. Hashing keeps credentials
// out of cache storage and log lines.
func CacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "inquest:auth:" + hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	verdict   Verdict
	expiresAt time.Time
}

// MemoryVerdictCache is the in-process default cache. Entries expire
// lazily on read.
type MemoryVerdictCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryVerdictCache creates an empty in-process cache.
func NewMemoryVerdictCache() *MemoryVerdictCache {
	return &MemoryVerdictCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements VerdictCache.
func (c *MemoryVerdictCache) Get(_ context.Context, key string) (*Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	v := e.verdict
	return &v, nil
}

// Set implements VerdictCache.
func (c *MemoryVerdictCache) Set(_ context.Context, key string, verdict Verdict, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{verdict: verdict, expiresAt: c.now().Add(ttl)}
	return nil
}

// Len returns the number of live entries, counting expired ones that have
// not been read yet.
func (c *MemoryVerdictCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ VerdictCache = (*MemoryVerdictCache)(nil)
