// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// JSON-RPC error codes on the wire.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

// rpcRequest is the tool gateway wire request.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// rpcResponse carries either a result or an error, never both.
type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolDescriptor is one entry in the tools/list result.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// toolContent is one typed item in a tools/call result content array.
type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolCallResult is the tools/call result. Handler failures and timeouts
// land here with IsError set; only malformed requests become RPC errors.
type toolCallResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func textResult(text string, isError bool) *toolCallResult {
	return &toolCallResult{
		Content: []toolContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// initializeParams is accepted for protocol symmetry. The gateway records
// the client identity but grants nothing based on it.
type initializeParams struct {
	ClientInfo clientInfo `json:"client_info"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocol_version"`
	ServerInfo      serverInfo     `json:"server_info"`
	Capabilities    map[string]any `json:"capabilities"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// protocolVersion is bumped when the wire format changes incompatibly.
const protocolVersion = "2026-01"

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcResponse{Error: &rpcError{Code: rpcParseError, Message: "request body is not valid JSON"}})
		return
	}
	if req.Method == "" {
		writeRPC(w, rpcResponse{ID: req.ID, Error: &rpcError{Code: rpcInvalidRequest, Message: "method is required"}})
		return
	}

	resp := rpcResponse{ID: req.ID}
	switch req.Method {
	case "initialize":
		var params initializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				resp.Error = &rpcError{Code: rpcInvalidParams, Message: "params must be an object"}
				break
			}
			if params.ClientInfo.Name != "" {
				slog.Debug("gateway handshake",
					"client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version)
			}
		}
		resp.Result = initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: "inquest-gateway", Version: "0.1.0"},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		}

	case "tools/list":
		defs := s.dispatcher.Registry().Definitions()
		tools := make([]toolDescriptor, 0, len(defs))
		for _, def := range defs {
			tools = append(tools, toolDescriptor{
				Name:        def.Name,
				Description: def.Description,
				InputSchema: def.InputSchema,
			})
		}
		resp.Result = map[string]any{"tools": tools}

	case "tools/call":
		result, rpcErr := s.callTool(r, req.Params)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}

	default:
		resp.Error = &rpcError{Code: rpcMethodNotFound, Message: "unknown method: " + req.Method}
	}

	writeRPC(w, resp)
}

// callTool dispatches one tools/call. Unknown tools and schema violations
// are the caller's mistake and come back as RPC errors; anything that goes
// wrong inside the handler is a tool-level failure reported in the result.
func (s *Server) callTool(r *http.Request, rawParams json.RawMessage) (*toolCallResult, *rpcError) {
	var params toolsCallParams
	if len(rawParams) == 0 {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "params must be an object with name and arguments"}
	}
	if params.Name == "" {
		return nil, &rpcError{Code: rpcInvalidParams, Message: "tool name is required"}
	}

	userToken := UserTokenFromContext(r.Context())
	content, err := s.dispatcher.Execute(r.Context(), params.Name, params.Arguments, userToken)
	if err != nil {
		switch {
		case inqerr.IsNotFound(err):
			return nil, &rpcError{Code: rpcMethodNotFound, Message: "unknown tool: " + params.Name}
		case inqerr.IsInvalidInput(err):
			return nil, &rpcError{Code: rpcInvalidParams, Message: err.Error()}
		default:
			slog.Debug("tool call failed",
				"tool", params.Name,
				"app_id", AppIDFromContext(r.Context()),
				"error", err,
			)
			return textResult(err.Error(), true), nil
		}
	}
	return textResult(content, false), nil
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("writing rpc response failed", "error", err)
	}
}
