// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// userTokenHeader carries the end user's own credential. The gateway never
// validates it; it is handed to tool handlers verbatim so backends enforce
// the caller's permissions themselves.
const userTokenHeader = "X-Inquest-User-Token"

type contextKey int

const (
	appIDKey contextKey = iota
	userTokenKey
)

// AppIDFromContext returns the authenticated app ID, if any.
func AppIDFromContext(ctx context.Context) string {
	appID, _ := ctx.Value(appIDKey).(string)
	return appID
}

// UserTokenFromContext returns the pass-through user token, if any.
func UserTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(userTokenKey).(string)
	return token
}

// requireAppToken validates the Bearer app token before the request
// reaches any handler. A denial is 401; a validator that cannot reach a
// conclusive answer is 503 so clients retry rather than re-authenticate.
func (s *Server) requireAppToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		verdict, err := s.validator.Validate(r.Context(), token)
		if err != nil {
			slog.Warn("token validation unavailable", "error", err, "path", r.URL.Path)
			writeAuthError(w, http.StatusServiceUnavailable, inqerr.CodeAuthVerifyUnavailable, "token validation temporarily unavailable")
			return
		}
		if !verdict.Allowed() {
			slog.Debug("request denied",
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"reason", verdict.Reason,
			)
			writeAuthError(w, http.StatusUnauthorized, inqerr.CodeAuthTokenInvalid, "invalid or missing app token")
			return
		}

		ctx := context.WithValue(r.Context(), appIDKey, verdict.AppID)
		if userToken := r.Header.Get(userTokenHeader); userToken != "" {
			ctx = context.WithValue(ctx, userTokenKey, userToken)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func writeAuthError(w http.ResponseWriter, status int, code inqerr.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
