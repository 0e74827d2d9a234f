// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package auth validates app tokens before any request reaches the tool
// gateway. Validation is layered: a verdict cache, then a local JWT check
// that never touches the network, then remote introspection as the
// authority of record.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// JWTVerifier checks HS256-signed app tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given secret. An empty secret
// is allowed and disables local verification.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Enabled reports whether a signing secret is configured.
func (v *JWTVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify validates the token signature and expiry and returns the app ID
// from the "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", inqerr.Wrap(err, inqerr.CodeAuthTokenExpired, "token expired")
		}
		return "", inqerr.Wrap(err, inqerr.CodeAuthTokenInvalid, "token verification failed")
	}
	if !token.Valid {
		return "", inqerr.New(inqerr.CodeAuthTokenInvalid, "token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", inqerr.New(inqerr.CodeAuthTokenInvalid, "token carries no claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", inqerr.New(inqerr.CodeAuthTokenInvalid, "token is missing the sub claim")
	}
	return sub, nil
}

// Generate mints a signed app token for appID. Used by the token CLI
// command and by tests.
func (v *JWTVerifier) Generate(appID string, expiresIn time.Duration) (string, error) {
	if !v.Enabled() {
		return "", inqerr.New(inqerr.CodeAuthTokenInvalid, "no signing secret configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": appID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", inqerr.Wrap(err, inqerr.CodeAuthTokenInvalid, "signing token")
	}
	return signed, nil
}
