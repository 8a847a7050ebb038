package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 32 * 1024 * 1024

// OllamaOptions configures an OllamaClient
type OllamaOptions struct {
	Endpoint    string // e.g. http://localhost:11434/api/generate
	Temperature float32
	Timeouts    Timeouts
	Models      ModelMap
	HTTPClient  *http.Client // optional; deadlines come from Timeouts
}

// OllamaClient talks to an Ollama-compatible /api/generate endpoint
type OllamaClient struct {
	endpoint    string
	temperature float32
	timeouts    Timeouts
	models      ModelMap
	httpClient  *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// NewOllamaClient creates a client for the generate endpoint
func NewOllamaClient(opts OllamaOptions) *OllamaClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{
		endpoint:    opts.Endpoint,
		temperature: opts.Temperature,
		timeouts:    opts.Timeouts,
		models:      opts.Models,
		httpClient:  httpClient,
	}
}

// Attempt sends payload to the model behind target
func (c *OllamaClient) Attempt(ctx context.Context, target, payload string) Outcome {
	start := time.Now()
	out := c.attempt(ctx, target, payload)
	out.Target = target
	out.Elapsed = time.Since(start)
	return out
}

func (c *OllamaClient) attempt(ctx context.Context, target, payload string) Outcome {
	timeout := c.timeouts.For(target)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   c.models.Resolve(target),
		Prompt:  payload,
		Stream:  false,
		Options: generateOptions{Temperature: c.temperature},
	})
	if err != nil {
		return Outcome{Kind: PermanentFailure, Detail: fmt.Sprintf("failed to encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: PermanentFailure, Detail: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Outcome{Kind: TransientFailure, Detail: fmt.Sprintf("timed out after %s", timeout)}
		}
		return Outcome{Kind: TransientFailure, Detail: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Outcome{
			Kind:   TransientFailure,
			Status: resp.StatusCode,
			Detail: fmt.Sprintf("failed to read response: %v", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{
			Kind:   classifyStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Detail: fmt.Sprintf("%s: %s", resp.Status, errorDetail(raw)),
		}
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Outcome{
			Kind:   PermanentFailure,
			Status: resp.StatusCode,
			Detail: fmt.Sprintf("invalid response body: %s", truncateDiagnostic(string(raw))),
		}
	}

	text := strings.TrimSpace(decoded.Response)
	if text == "" {
		detail := "empty response"
		if decoded.Error != "" {
			detail = decoded.Error
		}
		return Outcome{Kind: PermanentFailure, Status: resp.StatusCode, Detail: detail}
	}

	return Outcome{Kind: Success, Status: resp.StatusCode, Text: text}
}

// classifyStatus maps a non-2xx status to a failure kind
func classifyStatus(code int) Kind {
	switch {
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return TransientFailure
	default:
		return PermanentFailure
	}
}

// errorDetail prefers the structured "error" field and falls back to the raw body
func errorDetail(raw []byte) string {
	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	return truncateDiagnostic(string(raw))
}
