// ABOUTME: OpenAI Chat Completions client with base URL support for compatible providers.
// ABOUTME: Implements mux/llm.Client so Cerebras, OpenRouter, and local gateways slot in as providers.
package llm

import (
	"context"

	muxllm "github.com/2389-research/mux/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompatClient implements muxllm.Client using the OpenAI Chat Completions
// API. Unlike mux's built-in OpenAIClient, this supports custom base URLs for
// OpenAI-compatible providers.
type OpenAICompatClient struct {
	client openai.Client
	model  string
}

// NewOpenAICompatClient creates a Chat Completions client with a custom base
// URL. This uses /v1/chat/completions, the endpoint every OpenAI-compatible
// provider supports.
func NewOpenAICompatClient(apiKey, model, baseURL string) *OpenAICompatClient {
	if model == "" {
		model = defaultModels[ProviderOpenAI]
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICompatClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// CreateMessage sends a message and returns the complete response.
func (c *OpenAICompatClient) CreateMessage(ctx context.Context, req *muxllm.Request) (*muxllm.Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}

	resp, err := c.client.Chat.Completions.New(ctx, convertCompatRequest(req))
	if err != nil {
		return nil, err
	}
	return convertCompatResponse(resp), nil
}

// CreateMessageStream sends a message and returns a channel of streaming events.
func (c *OpenAICompatClient) CreateMessageStream(ctx context.Context, req *muxllm.Request) (<-chan muxllm.StreamEvent, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, convertCompatRequest(req))
	eventChan := make(chan muxllm.StreamEvent, 100)

	go func() {
		defer close(eventChan)

		var acc openai.ChatCompletionAccumulator

		eventChan <- muxllm.StreamEvent{Type: muxllm.EventMessageStart}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				eventChan <- muxllm.StreamEvent{
					Type: muxllm.EventContentDelta,
					Text: chunk.Choices[0].Delta.Content,
				}
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- muxllm.StreamEvent{
				Type:  muxllm.EventError,
				Error: err,
			}
			return
		}

		eventChan <- muxllm.StreamEvent{
			Type:     muxllm.EventMessageStop,
			Response: convertCompatResponse(&acc.ChatCompletion),
		}
	}()

	return eventChan, nil
}

// convertCompatRequest converts a mux Request to OpenAI ChatCompletionNewParams.
func convertCompatRequest(req *muxllm.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case muxllm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(muxMessageText(msg)))
		default:
			messages = append(messages, openai.UserMessage(muxMessageText(msg)))
		}
	}
	params.Messages = messages

	return params
}

// muxMessageText extracts the text of a mux Message, whichever of the plain
// Content field or the Blocks list carries it.
func muxMessageText(msg muxllm.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	for _, block := range msg.Blocks {
		if block.Type == muxllm.ContentTypeText {
			return block.Text
		}
	}
	return ""
}

// convertCompatResponse converts an OpenAI ChatCompletion to a mux Response.
func convertCompatResponse(resp *openai.ChatCompletion) *muxllm.Response {
	result := &muxllm.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: muxllm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}

	if len(resp.Choices) == 0 {
		return result
	}

	choice := resp.Choices[0]
	switch choice.FinishReason {
	case "tool_calls":
		result.StopReason = muxllm.StopReasonToolUse
	case "length":
		result.StopReason = muxllm.StopReasonMaxTokens
	default:
		result.StopReason = muxllm.StopReasonEndTurn
	}

	if choice.Message.Content != "" {
		result.Content = append(result.Content, muxllm.ContentBlock{
			Type: muxllm.ContentTypeText,
			Text: choice.Message.Content,
		})
	}

	return result
}

// Compile-time interface assertion.
var _ muxllm.Client = (*OpenAICompatClient)(nil)
