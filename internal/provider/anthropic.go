package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider implements LLMProvider against the Anthropic Messages API
// via the go-anthropic SDK.
type AnthropicProvider struct {
	client       *anthropic.Client
	defaultModel string
}

// NewAnthropicProvider creates an Anthropic provider. An empty apiBase uses
// the SDK default endpoint.
func NewAnthropicProvider(apiKey, apiBase, defaultModel string) *AnthropicProvider {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-5"
	}
	var opts []anthropic.ClientOption
	if apiBase != "" {
		opts = append(opts, anthropic.WithBaseURL(apiBase))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(apiKey, opts...),
		defaultModel: defaultModel,
	}
}

// DefaultModel returns the configured default model.
func (p *AnthropicProvider) DefaultModel() string {
	return p.defaultModel
}

// Chat sends a completion request to the Anthropic Messages API.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.client.CreateMessages(ctx, p.buildRequest(req))
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	result := &ChatResponse{
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				result.Content += *block.Text
			}
		case "tool_use":
			if block.MessageContentToolUse == nil {
				continue
			}
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{}
				}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	} else if resp.StopReason == "max_tokens" {
		result.FinishReason = "length"
	}
	return result, nil
}

// ChatStream streams a plain-text completion, invoking fn per chunk.
// Tool definitions in the request are ignored for streaming.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req *ChatRequest, fn StreamFunc) (*ChatResponse, error) {
	plain := *req
	plain.Tools = nil

	var content string
	streamReq := anthropic.MessagesStreamRequest{
		MessagesRequest: p.buildRequest(&plain),
		OnContentBlockDelta: func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				content += *delta.Delta.Text
				if fn != nil {
					fn(*delta.Delta.Text)
				}
			}
		},
	}

	resp, err := p.client.CreateMessagesStream(ctx, streamReq)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	return &ChatResponse{
		Content:      content,
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (p *AnthropicProvider) buildRequest(req *ChatRequest) anthropic.MessagesRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var systemParts []anthropic.MessageSystemPart
	var msgs []anthropic.Message

	// Anthropic rejects tool_result blocks that do not follow a tool_use
	// turn, so track whether the previous assistant message carried calls.
	prevAssistantHadToolCalls := false
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
			prevAssistantHadToolCalls = false
		case "user":
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
			prevAssistantHadToolCalls = false
		case "assistant":
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON)))
			}
			msgs = append(msgs, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case "tool":
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewToolResultMessageContent(msg.ToolCallID, content, false)},
			})
		}
	}

	temperature := float32(req.Temperature)
	out := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(systemParts) > 0 {
		out.MultiSystem = systemParts
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropic.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return out
}

// mapAnthropicError folds SDK errors into APIError so retry classification
// works uniformly across providers.
func mapAnthropicError(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.StatusCode, Message: err.Error()}
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusInternalServerError
		switch {
		case apiErr.IsRateLimitErr():
			status = http.StatusTooManyRequests
		case apiErr.IsOverloadedErr():
			status = 529
		case apiErr.IsAuthenticationErr():
			status = http.StatusUnauthorized
		case apiErr.IsPermissionErr():
			status = http.StatusForbidden
		case apiErr.IsNotFoundErr():
			status = http.StatusNotFound
		case apiErr.IsInvalidRequestErr():
			status = http.StatusBadRequest
		}
		return &APIError{StatusCode: status, Message: apiErr.Message}
	}
	return err
}
