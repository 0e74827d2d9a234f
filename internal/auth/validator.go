// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// defaultVerdictTTL bounds how long a cached verdict is trusted. It must
// stay well under the shortest token lifetime so an expired token cannot
// ride a stale Allow.
const defaultVerdictTTL = 5 * time.Minute

// Introspector answers whether a token is active. Satisfied by
// IntrospectionClient.
type Introspector interface {
	Introspect(ctx context.Context, token string) (*IntrospectionResult, error)
}

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// Verifier performs the local signature check. A verifier without a
	// secret disables the local step.
	Verifier *JWTVerifier
	// AllowedApps restricts which authenticated app IDs may call the
	// gateway. Empty means any authenticated app.
	AllowedApps []string
	// Introspector confirms a locally verified token is still live, and
	// is the whole verification path for opaque tokens. Nil skips the
	// liveness check.
	Introspector Introspector
	// Cache holds verdicts. Nil selects the in-process cache.
	Cache VerdictCache
	// CacheTTL bounds verdict reuse. Zero selects the 5 minute default.
	CacheTTL time.Duration
}

// Validator decides whether an app token may reach the tool gateway.
//
// Validation runs in order: the verdict cache, a local JWT claim check
// that never touches the network, then remote introspection. The local
// check short-circuits denials only; an allow is confirmed against the
// introspection endpoint when one is configured, so revocation takes
// effect within one cache TTL. Conclusive verdicts (Allow and Deny
// alike) are cached; a transient verification failure is returned as an
// error with code auth.verify.unavailable and is never cached.
type Validator struct {
	verifier     *JWTVerifier
	allowedApps  map[string]struct{}
	introspector Introspector
	cache        VerdictCache
	ttl          time.Duration
}

// NewValidator creates a Validator from cfg.
func NewValidator(cfg ValidatorConfig) *Validator {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryVerdictCache()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultVerdictTTL
	}
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = NewJWTVerifier(nil)
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedApps) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedApps))
		for _, app := range cfg.AllowedApps {
			allowed[app] = struct{}{}
		}
	}

	return &Validator{
		verifier:     verifier,
		allowedApps:  allowed,
		introspector: cfg.Introspector,
		cache:        cache,
		ttl:          ttl,
	}
}

// Validate decides for one token. The returned error is non-nil only when
// no conclusive answer could be reached; callers must fail the request
// without caching anything in that case.
func (v *Validator) Validate(ctx context.Context, token string) (Verdict, error) {
	if token == "" {
		return Verdict{Decision: DecisionDeny, Reason: "missing token"}, nil
	}

	key := CacheKey(token)
	if cached, err := v.cache.Get(ctx, key); err != nil {
		// A broken cache degrades to a miss, never to an outage.
		slog.Warn("verdict cache read failed", "error", err)
	} else if cached != nil {
		return *cached, nil
	}

	verdict, err := v.decide(ctx, token)
	if err != nil {
		return Verdict{}, err
	}

	if cacheErr := v.cache.Set(ctx, key, verdict, v.ttl); cacheErr != nil {
		slog.Warn("verdict cache write failed", "error", cacheErr)
	}
	return verdict, nil
}

// decide runs the local and remote steps. The local JWT check is
// conclusive for denials only: a bad signature, an expired token, or an
// unlisted app is rejected without touching the network. An allow still
// requires one liveness call to the introspection endpoint when one is
// configured, so a revoked token is caught well before it would
// naturally expire. Without an introspector the local allow stands.
func (v *Validator) decide(ctx context.Context, token string) (Verdict, error) {
	if v.verifier.Enabled() {
		appID, err := v.verifier.Verify(token)
		if err != nil {
			return Verdict{Decision: DecisionDeny, Reason: err.Error()}, nil
		}
		verdict := v.checkAllowList(appID)
		if !verdict.Allowed() || v.introspector == nil {
			return verdict, nil
		}
		result, err := v.introspector.Introspect(ctx, token)
		if err != nil {
			return Verdict{}, err
		}
		if !result.Active {
			return Verdict{Decision: DecisionDeny, AppID: appID, Reason: "token revoked or inactive"}, nil
		}
		return verdict, nil
	}

	if v.introspector == nil {
		return Verdict{}, inqerr.New(inqerr.CodeAuthVerifyUnavailable,
			"no local secret and no introspection endpoint configured")
	}

	result, err := v.introspector.Introspect(ctx, token)
	if err != nil {
		return Verdict{}, err
	}
	if !result.Active {
		return Verdict{Decision: DecisionDeny, Reason: "token revoked or inactive"}, nil
	}
	return v.checkAllowList(result.Sub), nil
}

func (v *Validator) checkAllowList(appID string) Verdict {
	if v.allowedApps != nil {
		if _, ok := v.allowedApps[appID]; !ok {
			return Verdict{
				Decision: DecisionDeny,
				Reason:   "app is not on the allow list",
			}
		}
	}
	return Verdict{Decision: DecisionAllow, AppID: appID}
}
