package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiOptions configures a GeminiClient
type GeminiOptions struct {
	APIKey      string
	BaseURL     string // optional override, used by tests
	Temperature float32
	Timeouts    Timeouts
	Models      ModelMap
}

// GeminiClient sends attempts through the Gemini API
type GeminiClient struct {
	genaiClient *genai.Client
	temperature float32
	timeouts    Timeouts
	models      ModelMap
}

// NewGeminiClient creates a GenAI client with the Gemini API backend
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		genaiClient: client,
		temperature: opts.Temperature,
		timeouts:    opts.Timeouts,
		models:      opts.Models,
	}, nil
}

// Attempt generates text for payload (non-streaming)
func (c *GeminiClient) Attempt(ctx context.Context, target, payload string) Outcome {
	start := time.Now()
	out := c.attempt(ctx, target, payload)
	out.Target = target
	out.Elapsed = time.Since(start)
	return out
}

func (c *GeminiClient) attempt(ctx context.Context, target, payload string) Outcome {
	timeout := c.timeouts.For(target)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content := genai.NewContentFromText(payload, genai.RoleUser)
	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.models.Resolve(target),
		[]*genai.Content{content},
		&genai.GenerateContentConfig{Temperature: genai.Ptr(c.temperature)})
	if err != nil {
		return classifyGeminiError(err, timeout)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Outcome{Kind: PermanentFailure, Status: http.StatusOK, Detail: "empty response"}
	}
	return Outcome{Kind: Success, Status: http.StatusOK, Text: text}
}

func classifyGeminiError(err error, timeout time.Duration) Outcome {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.Status
		}
		return Outcome{
			Kind:   classifyStatus(apiErr.Code),
			Status: apiErr.Code,
			Detail: truncateDiagnostic(detail),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: TransientFailure, Detail: fmt.Sprintf("timed out after %s", timeout)}
	}
	return Outcome{Kind: TransientFailure, Detail: fmt.Sprintf("request failed: %v", err)}
}
