package openai_provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/supportbot/provider"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultModel = "gpt-4o-mini"

// client implements provider.Generator for OpenAI and any OpenAI-compatible API,
// including Gemini's compatibility endpoint.
type client struct {
	sdk         openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// New creates a new OpenAI-compatible client.
func New(opts provider.Options) provider.Generator {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		option.WithMiddleware(invalidKeyMiddleware),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &client{
		sdk:         openai.NewClient(reqOpts...),
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

func (c *client) Generate(ctx context.Context, prompt string) (*provider.Result, error) {
	if prompt == "" {
		return nil, provider.ErrEmptyPrompt
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		if errors.Is(err, provider.ErrUnauthorized) {
			return nil, err
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, provider.StatusError(apiErr.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderFailed, err)
	}

	res := &provider.Result{TokensUsed: int(resp.Usage.TotalTokens)}
	if len(resp.Choices) > 0 {
		res.Text = resp.Choices[0].Message.Content
	}
	return res, nil
}

// invalidKeyMiddleware maps Gemini's compatibility endpoint rejecting a key
// (400 with reason API_KEY_INVALID, often as a JSON array) to ErrUnauthorized.
// Other responses pass through with their body intact.
func invalidKeyMiddleware(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	res, err := next(req)
	if err != nil || res.StatusCode != http.StatusBadRequest {
		return res, err
	}
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read error body: %v", provider.ErrProviderFailed, err)
	}
	if bytes.Contains(body, []byte("API_KEY_INVALID")) {
		return nil, fmt.Errorf("%w: status %d: API_KEY_INVALID", provider.ErrUnauthorized, res.StatusCode)
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return res, nil
}

// Ensure client implements provider.Generator at compile time.
var _ provider.Generator = (*client)(nil)
