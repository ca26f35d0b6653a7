package provider

import (
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiBuildContents(t *testing.T) {
	p := &GeminiProvider{}

	contents, system := p.buildContents([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "again"},
	})

	if system == nil || system.Parts[0].Text != "be brief" {
		t.Errorf("system instruction not extracted: %+v", system)
	}
	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d, want 3", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" || contents[2].Role != "user" {
		t.Errorf("unexpected roles: %s/%s/%s", contents[0].Role, contents[1].Role, contents[2].Role)
	}
}

func TestGeminiParseResponse(t *testing.T) {
	p := &GeminiProvider{}

	resp, err := p.parseResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: "part one "}, {Text: "part two"}},
				},
				FinishReason: genai.FinishReasonStop,
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 4,
			TotalTokenCount:      14,
		},
	})
	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}

	if resp.Content != "part one part two" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 4 || resp.Usage.TotalTokens != 14 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestGeminiParseResponse_NoCandidates(t *testing.T) {
	p := &GeminiProvider{}

	if _, err := p.parseResponse(&genai.GenerateContentResponse{}); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestGeminiWrapError(t *testing.T) {
	p := &GeminiProvider{}

	tests := []struct {
		msg       string
		code      string
		retryable bool
	}{
		{"googleapi: Error 429: rate limit exceeded", ErrorCodeRateLimit, true},
		{"googleapi: Error 500: internal error", ErrorCodeServerError, true},
		{"context deadline exceeded (timeout)", ErrorCodeTimeout, true},
		{"googleapi: Error 401: unauthorized", ErrorCodeAuthentication, false},
		{"model not found", ErrorCodeModelNotFound, false},
	}

	for _, tt := range tests {
		err := p.wrapError(errors.New(tt.msg))

		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("wrapError(%q) did not return a ProviderError", tt.msg)
		}
		if provErr.Code != tt.code {
			t.Errorf("wrapError(%q) code = %s, want %s", tt.msg, provErr.Code, tt.code)
		}
		if provErr.IsRetryable != tt.retryable {
			t.Errorf("wrapError(%q) retryable = %v, want %v", tt.msg, provErr.IsRetryable, tt.retryable)
		}
	}
}
