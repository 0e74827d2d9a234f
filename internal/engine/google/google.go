// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package google

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/inquest-dev/inquest/internal/conversation"
	"github.com/inquest-dev/inquest/internal/engine"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Config holds Google engine configuration.
type Config struct {
	APIKey string
}

// Engine implements engine.Engine using the Google Gemini API.
type Engine struct {
	client *genai.Client
	config Config
}

// New creates a new Google engine. Returns an error if the API key is missing.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, inqerr.New(inqerr.CodeEngineRequestInvalid,
			"google: missing api_key in config", inqerr.FieldEngine("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeEngineUpstreamFailure, "google: creating client")
	}

	return &Engine{client: client, config: cfg}, nil
}

func (e *Engine) Name() string { return "google" }

// Generate streams one assistant turn, forwarding text deltas to
// req.OnTextDelta, and returns the complete accumulated turn.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (*engine.Turn, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	config := buildConfig(req)

	var text string
	turn := &engine.Turn{StopReason: engine.StopEndTurn}

	for result, err := range e.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return nil, inqerr.Wrapf(err, inqerr.CodeEngineUpstreamFailure, "google: streaming content")
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text += part.Text
					if req.OnTextDelta != nil {
						req.OnTextDelta(part.Text)
					}
				}
				if part.FunctionCall != nil {
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, inqerr.Wrapf(err, inqerr.CodeEngineUpstreamFailure,
							"google: marshaling tool call arguments for %q", part.FunctionCall.Name)
					}
					id := part.FunctionCall.ID
					if id == "" {
						// Gemini omits call ids; synthesize a stable one so
						// outcome pairing still works.
						id = fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, len(turn.Blocks))
					}
					if text != "" {
						turn.Blocks = append(turn.Blocks, conversation.TextBlock(text))
						text = ""
					}
					turn.Blocks = append(turn.Blocks,
						conversation.InvocationBlock(id, part.FunctionCall.Name, args))
					turn.StopReason = engine.StopToolUse
				}
			}
		}

		if result.UsageMetadata != nil {
			turn.Usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
			turn.Usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
		}
	}

	if text != "" {
		turn.Blocks = append(turn.Blocks, conversation.TextBlock(text))
	}

	return turn, nil
}

// buildConfig converts an engine.Request into a genai.GenerateContentConfig.
func buildConfig(req engine.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}

	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.System},
			},
		}
	}

	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}

	return cfg
}

// convertMessages transforms conversation messages into genai.Content
// slices. Tool outcomes become FunctionResponse parts; the function name is
// recovered from the invocation that the outcome answers.
func convertMessages(msgs []conversation.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	invocationNames := make(map[string]string)

	for _, msg := range msgs {
		switch msg.Role {
		case conversation.RoleUser:
			result = append(result, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{
					{Text: msg.Text()},
				},
			})

		case conversation.RoleAssistant:
			var parts []*genai.Part
			for _, b := range msg.Blocks {
				switch b.Type {
				case conversation.BlockTypeText:
					parts = append(parts, &genai.Part{Text: b.Text})
				case conversation.BlockTypeToolInvocation:
					invocationNames[b.Invocation.ID] = b.Invocation.Name
					var args map[string]any
					if err := json.Unmarshal(b.Invocation.Arguments, &args); err != nil {
						return nil, inqerr.Wrapf(err, inqerr.CodeEngineRequestInvalid,
							"google: decoding arguments for invocation %q", b.Invocation.ID)
					}
					parts = append(parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							ID:   b.Invocation.ID,
							Name: b.Invocation.Name,
							Args: args,
						},
					})
				}
			}
			result = append(result, &genai.Content{Role: "model", Parts: parts})

		case conversation.RoleToolResult:
			var parts []*genai.Part
			for _, oc := range msg.Outcomes() {
				response := map[string]any{"result": oc.Payload}
				if oc.IsError {
					response = map[string]any{"error": oc.Payload}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       oc.InvocationID,
						Name:     invocationNames[oc.InvocationID],
						Response: response,
					},
				})
			}
			result = append(result, &genai.Content{Role: "user", Parts: parts})

		default:
			return nil, inqerr.Errorf(inqerr.CodeEngineRequestInvalid,
				"google: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// convertTools transforms engine.ToolSchema slices into genai.Tool slices.
func convertTools(tools []engine.ToolSchema) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	return []*genai.Tool{
		{FunctionDeclarations: decls},
	}
}
