// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

// Package gateway exposes the tool gateway and the investigation API over
// HTTP: a JSON-RPC endpoint for tool access, an SSE endpoint for streaming
// investigations, and a health endpoint.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inquest-dev/inquest/internal/agent"
	"github.com/inquest-dev/inquest/internal/auth"
	"github.com/inquest-dev/inquest/internal/tool"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wires the gateway's routes onto a chi router with a huma API for
// the OpenAPI description.
type Server struct {
	router     chi.Router
	api        huma.API
	cfg        Config
	validator  *auth.Validator
	dispatcher *tool.Dispatcher
	loop       *agent.Loop
}

// New creates a Server. The validator guards every tool and investigation
// route; health stays open.
func New(cfg Config, validator *auth.Validator, dispatcher *tool.Dispatcher, loop *agent.Loop) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, inqerr.New(inqerr.CodeGatewayStartFailure, "listen address is required")
	}
	if validator == nil {
		return nil, inqerr.New(inqerr.CodeGatewayStartFailure, "token validator is required")
	}
	if dispatcher == nil {
		return nil, inqerr.New(inqerr.CodeGatewayStartFailure, "tool dispatcher is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("Inquest Gateway", "0.1.0")
	humaConfig.Info.Description = "Tool gateway and investigation API"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	srv := &Server{
		router:     r,
		api:        api,
		cfg:        cfg,
		validator:  validator,
		dispatcher: dispatcher,
		loop:       loop,
	}

	r.Group(func(r chi.Router) {
		r.Use(srv.requireAppToken)
		r.Post("/rpc", srv.handleRPC)
		r.Post("/api/v1/investigations/stream", srv.handleInvestigationStream)
	})
	srv.documentStreamRoute()

	return srv, nil
}

// documentStreamRoute adds the investigation stream operation to the
// OpenAPI spec manually. The handler needs raw http.ResponseWriter access
// for SSE flushing, so it cannot use huma's standard handler signature;
// the chi route does the actual request handling and this entry exists
// for documentation.
func (s *Server) documentStreamRoute() {
	minPromptLen := 1
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "investigation-stream",
		Method:      http.MethodPost,
		Path:        "/api/v1/investigations/stream",
		Summary:     "Run an investigation, streaming progress via SSE",
		Description: "Start or continue an investigation. Set Accept: text/event-stream for SSE frames ending in a summary frame, otherwise receives a JSON body with collected events and the result.",
		Tags:        []string{"investigations"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"prompt"},
						Properties: map[string]*huma.Schema{
							"prompt": {
								Type:        "string",
								MinLength:   &minPromptLen,
								Description: "Question or instruction to investigate",
							},
							"conversation_id": {
								Type:        "string",
								Description: "Optional conversation to continue",
							},
							"engine": {
								Type:        "string",
								Description: "Engine and model as engine/model; empty selects the default",
							},
						},
					},
				},
			},
		},
	})
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return inqerr.Wrapf(err, inqerr.CodeGatewayStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return inqerr.Wrap(err, inqerr.CodeGatewayInternalFailure, "shutting down")
	}

	return <-errCh
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
