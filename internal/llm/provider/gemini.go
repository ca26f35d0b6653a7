package provider

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	geminiDefaultModel  = "gemini-2.0-flash"
	geminiClientTimeout = 30 * time.Second
)

func init() {
	RegisterFactory("gemini", func(config map[string]any) (Provider, error) {
		apiKey := ""
		if key, ok := config["api_key"].(string); ok {
			apiKey = key
		}
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY not set")
		}

		return NewGeminiProvider(apiKey)
	})
}

// GeminiProvider implements Provider for the Gemini API using the Gen AI SDK
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), geminiClientTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate produces a completion using the Gen AI SDK
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = geminiDefaultModel
	}

	config := &genai.GenerateContentConfig{}
	config.Temperature = genai.Ptr(float32(req.Temperature))
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents, systemInstruction := p.buildContents(req.Messages)
	if systemInstruction != nil {
		config.SystemInstruction = systemInstruction
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, p.wrapError(err)
	}

	return p.parseResponse(resp)
}

// buildContents converts messages to Gen AI content format
func (p *GeminiProvider) buildContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		if m.Role == "system" {
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
			continue
		}

		role := m.Role
		if role == "assistant" {
			role = "model"
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	return contents, systemInstruction
}

// parseResponse parses the Gen AI response into GenerateResponse
func (p *GeminiProvider) parseResponse(resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewProviderError("gemini", ErrorCodeUnknown, "no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	var content string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	finishReason := string(candidate.FinishReason)
	if finishReason == "STOP" || finishReason == "" {
		finishReason = "stop"
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(resp.UsageMetadata.TotalTokenCount)
	}

	return &GenerateResponse{
		Content:      content,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// wrapError converts Gen AI errors to ProviderError
func (p *GeminiProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}

	code := ErrorCodeUnknown
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "quota"):
		code = ErrorCodeQuotaExceeded
	case strings.Contains(errMsg, "rate limit"), strings.Contains(errMsg, "429"):
		code = ErrorCodeRateLimit
	case strings.Contains(errMsg, "unauthorized"), strings.Contains(errMsg, "401"),
		strings.Contains(errMsg, "permission"):
		code = ErrorCodeAuthentication
	case strings.Contains(errMsg, "not found"), strings.Contains(errMsg, "404"):
		code = ErrorCodeModelNotFound
	case strings.Contains(errMsg, "deadline"), strings.Contains(errMsg, "timeout"):
		code = ErrorCodeTimeout
	case strings.Contains(errMsg, "500"), strings.Contains(errMsg, "503"),
		strings.Contains(errMsg, "internal"), strings.Contains(errMsg, "unavailable"):
		code = ErrorCodeServerError
	case strings.Contains(errMsg, "safety"), strings.Contains(errMsg, "blocked"):
		code = ErrorCodeContentFiltered
	}

	return NewProviderError("gemini", code, err.Error(), err)
}
