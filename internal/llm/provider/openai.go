package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = "gpt-4o-mini"

func init() {
	RegisterFactory("openai", func(config map[string]any) (Provider, error) {
		apiKey := ""
		if key, ok := config["api_key"].(string); ok {
			apiKey = key
		}
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}

		baseURL := ""
		if url, ok := config["base_url"].(string); ok {
			baseURL = url
		}

		return NewOpenAIProvider(apiKey, baseURL), nil
	})
}

// OpenAIProvider implements Provider for the OpenAI API
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL uses the
// public API endpoint.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate produces a completion via the chat completions endpoint
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = openaiDefaultModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorCodeUnknown, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	return &GenerateResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
	}, nil
}

// wrapError converts OpenAI client errors to ProviderError
func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ErrorCodeUnknown
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			code = ErrorCodeAuthentication
		case http.StatusTooManyRequests:
			code = ErrorCodeRateLimit
		case http.StatusBadRequest:
			code = ErrorCodeInvalidRequest
		case http.StatusNotFound:
			code = ErrorCodeModelNotFound
		default:
			if apiErr.HTTPStatusCode >= 500 {
				code = ErrorCodeServerError
			}
		}
		return &ProviderError{
			Provider:      "openai",
			Code:          code,
			Message:       apiErr.Message,
			StatusCode:    apiErr.HTTPStatusCode,
			IsRetryable:   isRetryableError(code),
			OriginalError: err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError("openai", ErrorCodeTimeout, err.Error(), err)
	}

	return NewProviderError("openai", ErrorCodeUnknown, err.Error(), err)
}
