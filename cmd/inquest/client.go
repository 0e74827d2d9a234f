// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// ErrGatewayNotRunning indicates the gateway refused the connection.
var ErrGatewayNotRunning = errors.New("gateway is not running (connection refused)")

// defaultHTTPClient is the package-level HTTP client used by gateway
// commands. Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Minute, // investigations can run many tool rounds
}

// gatewayClient provides HTTP access to a running Inquest gateway.
type gatewayClient struct {
	baseURL   string
	appToken  string
	userToken string
	http      *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr, appToken, userToken string) *gatewayClient {
	return &gatewayClient{
		baseURL:   "http://" + addr,
		appToken:  appToken,
		userToken: userToken,
		http:      defaultHTTPClient,
	}
}

// postJSON performs a POST request and decodes the JSON response into dest.
// Returns ErrGatewayNotRunning on connection refused.
func (c *gatewayClient) postJSON(path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return inqerr.Wrap(err, inqerr.CodeCLIRequestFailure, "encoding request")
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return inqerr.Wrap(err, inqerr.CodeCLIRequestFailure, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.appToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.appToken)
	}
	if c.userToken != "" {
		req.Header.Set("X-Inquest-User-Token", c.userToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return ErrGatewayNotRunning
		}
		return inqerr.Wrap(err, inqerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return inqerr.Wrap(err, inqerr.CodeCLIResponseInvalid, "reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return inqerr.Errorf(inqerr.CodeCLIRequestFailure,
			"gateway returned status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return inqerr.Wrap(err, inqerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// rpc performs one JSON-RPC call against the gateway's tool endpoint.
func (c *gatewayClient) rpc(method string, params any, result any) error {
	req := map[string]any{"id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.postJSON("/rpc", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return inqerr.Errorf(inqerr.CodeCLIRequestFailure,
			"gateway error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return inqerr.Wrap(err, inqerr.CodeCLIResponseInvalid, "decoding rpc result")
		}
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused,
// etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
