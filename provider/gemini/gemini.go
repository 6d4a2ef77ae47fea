package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/supportbot/provider"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultModel   = "gemini-1.5-flash"
)

// client implements provider.Generator using the Gemini REST API.
type client struct {
	apiKey      string
	modelID     string
	baseURL     string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// New creates a new Gemini client.
func New(opts provider.Options) provider.Generator {
	c := &client{
		apiKey:      opts.APIKey,
		modelID:     opts.Model,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
	if c.modelID == "" {
		c.modelID = DefaultModel
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c
}

// Generate calls generateContent once; there is no retry.
func (c *client) Generate(ctx context.Context, prompt string) (*provider.Result, error) {
	if prompt == "" {
		return nil, provider.ErrEmptyPrompt
	}

	body, err := json.Marshal(c.buildRequest(prompt))
	if err != nil {
		return nil, fmt.Errorf("provider: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", provider.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", provider.ErrProviderFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, raw)
	}

	return parseResponse(raw)
}

func (c *client) buildRequest(prompt string) map[string]any {
	genCfg := map[string]any{}
	if c.maxTokens > 0 {
		genCfg["maxOutputTokens"] = c.maxTokens
	}
	if c.temperature > 0 {
		genCfg["temperature"] = c.temperature
	}

	req := map[string]any{
		"contents": []map[string]any{{
			"role":  "user",
			"parts": []map[string]any{{"text": prompt}},
		}},
	}
	if len(genCfg) > 0 {
		req["generationConfig"] = genCfg
	}
	return req
}

func parseResponse(body []byte) (*provider.Result, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", provider.ErrProviderFailed, err)
	}

	res := &provider.Result{TokensUsed: resp.UsageMetadata.TotalTokenCount}
	if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
		res.Text = resp.Candidates[0].Content.Parts[0].Text
	}
	return res, nil
}

// classify maps a non-200 response to the provider taxonomy. Gemini reports a bad
// key as 400 INVALID_ARGUMENT with reason API_KEY_INVALID rather than 401.
func classify(status int, body []byte) error {
	var env geminiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		for _, d := range env.Error.Details {
			if d.Reason == "API_KEY_INVALID" {
				return fmt.Errorf("%w: status %d: %s", provider.ErrUnauthorized, status, env.Error.Message)
			}
		}
		if env.Error.Message != "" {
			return provider.StatusError(status, env.Error.Message)
		}
	}
	return provider.StatusError(status, string(body))
}

// Gemini API response types.
type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// Ensure client implements provider.Generator at compile time.
var _ provider.Generator = (*client)(nil)
