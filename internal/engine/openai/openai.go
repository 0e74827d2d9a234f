// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package openai

import (
	"context"
	"encoding/json"
	"sort"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/inquest-dev/inquest/internal/conversation"
	"github.com/inquest-dev/inquest/internal/engine"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// Config holds OpenAI engine configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Engine implements engine.Engine using the OpenAI Chat Completions API.
type Engine struct {
	client openaisdk.Client
	config Config
}

// New creates a new OpenAI engine. Returns an error if the API key is missing.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, inqerr.New(inqerr.CodeEngineRequestInvalid,
			"openai: missing api_key in config", inqerr.FieldEngine("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Engine{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (e *Engine) Name() string { return "openai" }

// Generate streams one assistant turn, forwarding text deltas to
// req.OnTextDelta, and returns the complete accumulated turn.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (*engine.Turn, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeEngineRequestInvalid, "openai: building request params")
	}

	return e.streamTurn(ctx, params, req.OnTextDelta)
}

// buildParams converts an engine.Request into OpenAI SDK ChatCompletionNewParams.
func buildParams(req engine.Request) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.System)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Temperature))
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms conversation messages into OpenAI SDK message
// param slices. The system prompt is prepended as a system message; tool
// outcomes become one tool message each, keyed by tool_call_id.
func convertMessages(msgs []conversation.Message, system string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if system != "" {
		result = append(result, openaisdk.SystemMessage(system))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case conversation.RoleUser:
			result = append(result, openaisdk.UserMessage(msg.Text()))

		case conversation.RoleAssistant:
			invocations := msg.Invocations()
			if len(invocations) == 0 {
				result = append(result, openaisdk.AssistantMessage(msg.Text()))
				continue
			}

			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if text := msg.Text(); text != "" {
				assistant.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(text),
				}
			}
			for _, inv := range invocations {
				assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: inv.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      inv.Name,
						Arguments: string(inv.Arguments),
					},
				})
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{
				OfAssistant: &assistant,
			})

		case conversation.RoleToolResult:
			for _, oc := range msg.Outcomes() {
				result = append(result, openaisdk.ToolMessage(oc.Payload, oc.InvocationID))
			}

		default:
			return nil, inqerr.Errorf(inqerr.CodeEngineRequestInvalid,
				"openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// convertTools transforms engine.ToolSchema slices into OpenAI SDK tool params.
func convertTools(tools []engine.ToolSchema) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		})
	}
	return result
}

// streamTurn runs the streaming loop. Chat Completions interleaves text and
// tool-call deltas; text is accumulated as one leading block and tool calls
// are emitted after it, ordered by their stream index.
func (e *Engine) streamTurn(ctx context.Context, params openaisdk.ChatCompletionNewParams, onDelta func(string)) (*engine.Turn, error) {
	stream := e.client.Chat.Completions.NewStreaming(ctx, params)

	type toolAccum struct {
		id          string
		name        string
		partialArgs string
	}

	var text string
	toolCalls := make(map[int64]*toolAccum)
	turn := &engine.Turn{StopReason: engine.StopEndTurn}

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			delta := choice.Delta

			if delta.Content != "" {
				text += delta.Content
				if onDelta != nil {
					onDelta(delta.Content)
				}
			}

			for _, tc := range delta.ToolCalls {
				acc, ok := toolCalls[tc.Index]
				if !ok {
					acc = &toolAccum{}
					toolCalls[tc.Index] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					acc.partialArgs += tc.Function.Arguments
				}
			}

			switch choice.FinishReason {
			case "tool_calls":
				turn.StopReason = engine.StopToolUse
			case "length":
				turn.StopReason = engine.StopMaxTokens
			}
		}

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			turn.Usage.InputTokens = int(chunk.Usage.PromptTokens)
			turn.Usage.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, inqerr.Wrapf(err, inqerr.CodeEngineUpstreamFailure, "openai: streaming completion")
	}

	if text != "" {
		turn.Blocks = append(turn.Blocks, conversation.TextBlock(text))
	}

	indexes := make([]int64, 0, len(toolCalls))
	for idx := range toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for _, idx := range indexes {
		acc := toolCalls[idx]
		args := acc.partialArgs
		if !json.Valid([]byte(args)) {
			args = "{}"
		}
		turn.Blocks = append(turn.Blocks,
			conversation.InvocationBlock(acc.id, acc.name, json.RawMessage(args)))
	}

	if len(toolCalls) > 0 && turn.StopReason == engine.StopEndTurn {
		turn.StopReason = engine.StopToolUse
	}

	return turn, nil
}
