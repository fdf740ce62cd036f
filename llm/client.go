// ABOUTME: Completion client over mux/llm provider clients with env-based provider detection.
// ABOUTME: Routes prompt/system requests to Anthropic, OpenAI, Gemini, or any OpenAI-compatible endpoint.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	muxllm "github.com/2389-research/mux/llm"
)

// Provider names accepted by Config.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// defaultModels maps each provider to the model used when Config.Model is empty.
var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5",
	ProviderOpenAI:    "gpt-5.2",
	ProviderGemini:    "gemini-3-flash-preview",
}

// Config selects and configures a provider.
type Config struct {
	// Provider is one of anthropic, openai, gemini.
	Provider string

	// APIKey authenticates against the provider.
	APIKey string

	// Model overrides the provider's default model.
	Model string

	// BaseURL routes OpenAI requests to an OpenAI-compatible endpoint
	// (Cerebras, OpenRouter, a local gateway). Ignored by other providers.
	BaseURL string
}

// CompletionRequest is a single prompt/system completion call.
type CompletionRequest struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Completion is the provider's answer plus usage accounting.
type Completion struct {
	Text         string
	Model        string
	Provider     string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Completer is the completion surface consumed by step implementations.
// *Client satisfies it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Client issues completion requests through a mux/llm provider client,
// retrying rate-limited calls with exponential backoff.
type Client struct {
	mux      muxllm.Client
	provider string
	model    string
	retry    RetryPolicy
}

// New creates a Client for the configured provider.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: provider %q requires an API key", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}

	var mc muxllm.Client
	switch cfg.Provider {
	case ProviderAnthropic:
		mc = muxllm.NewAnthropicClient(cfg.APIKey, model)
	case ProviderOpenAI:
		if cfg.BaseURL != "" {
			mc = NewOpenAICompatClient(cfg.APIKey, model, cfg.BaseURL)
		} else {
			mc = muxllm.NewOpenAIClient(cfg.APIKey, model)
		}
	case ProviderGemini:
		client, err := muxllm.NewGeminiClient(context.Background(), cfg.APIKey, model)
		if err != nil {
			return nil, fmt.Errorf("llm: creating gemini client: %w", err)
		}
		mc = client
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (supported: %s, %s, %s)",
			cfg.Provider, ProviderAnthropic, ProviderOpenAI, ProviderGemini)
	}

	return &Client{
		mux:      mc,
		provider: cfg.Provider,
		model:    model,
		retry:    rateLimitRetryPolicy(),
	}, nil
}

// newWithMux builds a Client over an existing mux client. Used by tests.
func newWithMux(provider, model string, mc muxllm.Client) *Client {
	return &Client{mux: mc, provider: provider, model: model, retry: rateLimitRetryPolicy()}
}

// DetectConfig inspects the environment for provider API keys and returns the
// Config for the first one found. Checks OPENAI_API_KEY, ANTHROPIC_API_KEY,
// and GEMINI_API_KEY in order. OPENAI_BASE_URL, when set, routes OpenAI
// traffic to a compatible endpoint.
func DetectConfig() (Config, bool) {
	checks := []struct {
		envVar   string
		provider string
	}{
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"GEMINI_API_KEY", ProviderGemini},
	}

	for _, c := range checks {
		key := os.Getenv(c.envVar)
		if key == "" {
			continue
		}
		cfg := Config{Provider: c.provider, APIKey: key}
		if c.provider == ProviderOpenAI {
			cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
		}
		return cfg, true
	}
	return Config{}, false
}

// FromEnv creates a Client from environment-detected credentials.
func FromEnv() (*Client, error) {
	cfg, ok := DetectConfig()
	if !ok {
		return nil, fmt.Errorf("llm: no API keys found in environment (checked OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY)")
	}
	return New(cfg)
}

// Provider returns the configured provider name.
func (c *Client) Provider() string {
	return c.provider
}

// Model returns the default model for this client.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the request to the provider and returns the completion.
// Rate-limited calls (429) are retried with exponential backoff; other
// failures return immediately.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("llm: completion request has an empty prompt")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	muxReq := &muxllm.Request{
		Model:       model,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages: []muxllm.Message{
			{Role: muxllm.RoleUser, Content: req.Prompt},
		},
	}

	var muxResp *muxllm.Response
	err := retryOnRateLimit(ctx, c.retry, func() error {
		var callErr error
		muxResp, callErr = c.mux.CreateMessage(ctx, muxReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("llm: complete via %s: %w", c.provider, err)
	}

	return &Completion{
		Text:         textContent(muxResp),
		Model:        muxResp.Model,
		Provider:     c.provider,
		StopReason:   string(muxResp.StopReason),
		InputTokens:  muxResp.Usage.InputTokens,
		OutputTokens: muxResp.Usage.OutputTokens,
	}, nil
}

// textContent concatenates the text blocks of a response. Non-text blocks
// (tool use) have no place in a plain completion and are dropped.
func textContent(resp *muxllm.Response) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == muxllm.ContentTypeText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
