// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inquest-dev/inquest/internal/agent"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// InvestigationRequest is the request body for the streaming endpoint.
type InvestigationRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id,omitempty"`
	Engine         string `json:"engine,omitempty"`
}

// investigationSummary closes the stream: the authoritative result after
// every streamed event.
type investigationSummary struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Iterations     int    `json:"iterations"`
	Incomplete     bool   `json:"incomplete"`
	InputTokens    int    `json:"input_tokens"`
	OutputTokens   int    `json:"output_tokens"`
}

// handleInvestigationStream runs one investigation, streaming progress as
// SSE frames when the client asks for text/event-stream and collecting
// events into a JSON array otherwise. Stream consumers must treat events
// as display hints only; the final summary carries the result of record.
func (s *Server) handleInvestigationStream(w http.ResponseWriter, r *http.Request) {
	var req InvestigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, `{"error":"prompt is required"}`, http.StatusUnprocessableEntity)
		return
	}
	if s.loop == nil {
		http.Error(w, `{"error":"investigation loop not configured"}`, http.StatusServiceUnavailable)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamSSE(w, r, req)
		return
	}
	s.streamJSON(w, r, req)
}

func (s *Server) runInvestigation(r *http.Request, req InvestigationRequest, onEvent agent.EmitFunc) (*agent.Result, error) {
	return s.loop.Run(r.Context(), agent.Request{
		ConversationID: req.ConversationID,
		Prompt:         req.Prompt,
		EngineRef:      req.Engine,
		UserToken:      UserTokenFromContext(r.Context()),
		OnEvent:        onEvent,
	})
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, req InvestigationRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The server-wide write timeout would sever a long investigation
	// mid-stream without a terminal frame. Clear it for this response;
	// the loop's iteration budget bounds the stream's lifetime instead.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("clearing stream write deadline failed", "error", err)
	}

	flusher, _ := w.(http.Flusher)
	writeFrame := func(event string, data any) {
		encoded, err := json.Marshal(data)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, encoded); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	result, err := s.runInvestigation(r, req, func(ev agent.Event) {
		writeFrame(string(ev.Type), ev)
	})
	if err != nil {
		// The loop already emitted an error event; close the stream with
		// a terminal frame for clients that missed it.
		writeFrame(string(agent.EventError), agent.Event{Type: agent.EventError, Message: err.Error()})
		return
	}

	writeFrame("summary", investigationSummary{
		ConversationID: result.ConversationID,
		Text:           result.Text,
		Iterations:     result.Iterations,
		Incomplete:     result.Incomplete,
		InputTokens:    result.Usage.InputTokens,
		OutputTokens:   result.Usage.OutputTokens,
	})
}

func (s *Server) streamJSON(w http.ResponseWriter, r *http.Request, req InvestigationRequest) {
	var events []agent.Event
	result, err := s.runInvestigation(r, req, func(ev agent.Event) {
		events = append(events, ev)
	})

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(inqerr.HTTPStatus(err))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":  map[string]any{"code": inqerr.CodeOf(err), "message": err.Error()},
			"events": events,
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"events": events,
		"result": investigationSummary{
			ConversationID: result.ConversationID,
			Text:           result.Text,
			Iterations:     result.Iterations,
			Incomplete:     result.Incomplete,
			InputTokens:    result.Usage.InputTokens,
			OutputTokens:   result.Usage.OutputTokens,
		},
	})
}
