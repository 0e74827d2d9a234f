// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// IntrospectionResult is the identity provider's answer for one token.
type IntrospectionResult struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub"`
	Exp    int64  `json:"exp"`
}

// IntrospectionClient asks the identity provider whether a token is
// active, in the RFC 7662 request shape.
type IntrospectionClient struct {
	endpoint string
	client   *http.Client
}

// NewIntrospectionClient creates a client for the given endpoint. A nil
// httpClient gets a 10s timeout default.
func NewIntrospectionClient(endpoint string, httpClient *http.Client) *IntrospectionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &IntrospectionClient{endpoint: endpoint, client: httpClient}
}

// Introspect checks one token. A non-2xx status or transport failure is a
// transient error (auth.verify.unavailable); only a well-formed response
// is conclusive.
func (c *IntrospectionClient) Introspect(ctx context.Context, token string) (*IntrospectionResult, error) {
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "building introspection request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "calling introspection endpoint")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "reading introspection response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, inqerr.Errorf(inqerr.CodeAuthVerifyUnavailable,
			"introspection endpoint returned %d", resp.StatusCode)
	}

	var result IntrospectionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "decoding introspection response")
	}
	return &result, nil
}
