// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package anthropic

import (
	"context"
	"encoding/json"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/inquest-dev/inquest/internal/conversation"
	"github.com/inquest-dev/inquest/internal/engine"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Config holds Anthropic engine configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Engine implements engine.Engine using the Anthropic Messages API.
type Engine struct {
	client anthropicsdk.Client
	config Config
}

// New creates a new Anthropic engine. Returns an error if the API key is missing.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, inqerr.New(inqerr.CodeEngineRequestInvalid,
			"anthropic: missing api_key in config", inqerr.FieldEngine("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Engine{client: anthropicsdk.NewClient(opts...), config: cfg}, nil
}

func (e *Engine) Name() string { return "anthropic" }

// Generate streams one assistant turn, forwarding text deltas to
// req.OnTextDelta, and returns the complete accumulated turn.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (*engine.Turn, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeEngineRequestInvalid, "anthropic: building request params")
	}

	return e.streamTurn(ctx, params, req.OnTextDelta)
}

// buildParams converts an engine.Request into Anthropic SDK MessageNewParams.
func buildParams(req engine.Request) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.System},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(float64(req.Temperature))
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms conversation messages into Anthropic SDK
// MessageParam slices. Tool outcomes travel as tool_result blocks inside a
// user message, per the Messages API contract.
func convertMessages(msgs []conversation.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case conversation.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(msg.Text()),
			))

		case conversation.RoleAssistant:
			var blocks []anthropicsdk.ContentBlockParamUnion
			for _, b := range msg.Blocks {
				switch b.Type {
				case conversation.BlockTypeText:
					blocks = append(blocks, anthropicsdk.NewTextBlock(b.Text))
				case conversation.BlockTypeToolInvocation:
					blocks = append(blocks, anthropicsdk.NewToolUseBlock(
						b.Invocation.ID,
						json.RawMessage(b.Invocation.Arguments),
						b.Invocation.Name,
					))
				}
			}
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))

		case conversation.RoleToolResult:
			var blocks []anthropicsdk.ContentBlockParamUnion
			for _, oc := range msg.Outcomes() {
				blocks = append(blocks, anthropicsdk.NewToolResultBlock(
					oc.InvocationID, oc.Payload, oc.IsError,
				))
			}
			result = append(result, anthropicsdk.NewUserMessage(blocks...))

		default:
			return nil, inqerr.Errorf(inqerr.CodeEngineRequestInvalid,
				"anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// convertTools transforms engine.ToolSchema slices into Anthropic SDK tool params.
func convertTools(tools []engine.ToolSchema) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := extractSchema(t.InputSchema)
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.Opt(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}

// extractSchema maps a full JSON Schema object (keys like "type",
// "properties", "required") into the Anthropic SDK's ToolInputSchemaParam,
// which expects Properties and Required as separate fields.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{}
	if props, ok := raw["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := raw["required"]; ok {
		if arr, ok := req.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			schema.Required = strs
		}
	}
	return schema
}

// streamTurn runs the streaming loop, accumulating content blocks in the
// order the API produces them and returning the complete turn.
func (e *Engine) streamTurn(ctx context.Context, params anthropicsdk.MessageNewParams, onDelta func(string)) (*engine.Turn, error) {
	stream := e.client.Messages.NewStreaming(ctx, params)

	type blockAccum struct {
		kind        string // "text" or "tool_use"
		text        string
		id          string
		name        string
		partialJSON string
	}

	var ordered []*blockAccum
	byIndex := make(map[int64]*blockAccum)
	turn := &engine.Turn{StopReason: engine.StopEndTurn}

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			turn.Usage.InputTokens = int(event.Message.Usage.InputTokens)

		case "content_block_start":
			cb := event.ContentBlock
			acc := &blockAccum{kind: cb.Type, id: cb.ID, name: cb.Name}
			ordered = append(ordered, acc)
			byIndex[event.Index] = acc

		case "content_block_delta":
			acc, ok := byIndex[event.Index]
			if !ok {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				acc.text += event.Delta.Text
				if onDelta != nil {
					onDelta(event.Delta.Text)
				}
			case "input_json_delta":
				acc.partialJSON += event.Delta.PartialJSON
			}

		case "message_delta":
			turn.Usage.OutputTokens = int(event.Usage.OutputTokens)
			switch string(event.Delta.StopReason) {
			case "tool_use":
				turn.StopReason = engine.StopToolUse
			case "max_tokens":
				turn.StopReason = engine.StopMaxTokens
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeEngineUpstreamFailure, "anthropic: streaming message")
	}

	for _, acc := range ordered {
		switch acc.kind {
		case "text":
			turn.Blocks = append(turn.Blocks, conversation.TextBlock(acc.text))
		case "tool_use":
			args := acc.partialJSON
			if !json.Valid([]byte(args)) {
				args = "{}"
			}
			turn.Blocks = append(turn.Blocks,
				conversation.InvocationBlock(acc.id, acc.name, json.RawMessage(args)))
		}
	}

	return turn, nil
}
