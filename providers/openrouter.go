package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenRouterURL is the OpenAI-compatible OpenRouter API root.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterOptions configures NewOpenRouter.
type OpenRouterOptions struct {
	APIKey  string
	BaseURL string
	// SiteURL and SiteTitle are sent as HTTP-Referer and X-Title so the
	// requests are attributed to the site on openrouter.ai.
	SiteURL    string
	SiteTitle  string
	Models     []ModelInfo
	HTTPClient *http.Client
}

// OpenRouterProvider talks to OpenRouter. Complete goes through the openai-go
// SDK; Stream reads the raw SSE body so transport failures surface as errors
// the relay can classify and retry.
type OpenRouterProvider struct {
	Base
	client     openai.Client
	httpClient *http.Client
	siteURL    string
	siteTitle  string
}

// NewOpenRouter creates an OpenRouter provider.
func NewOpenRouter(opts OpenRouterOptions) (*OpenRouterProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	base := newBase("openrouter", opts.APIKey, baseURL, opts.Models)
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(base.baseURL + "/"),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if opts.SiteURL != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.SiteURL))
	}
	if opts.SiteTitle != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.SiteTitle))
	}

	return &OpenRouterProvider{
		Base:       base,
		client:     openai.NewClient(reqOpts...),
		httpClient: httpClient,
		siteURL:    opts.SiteURL,
		siteTitle:  opts.SiteTitle,
	}, nil
}

// Complete sends a non-streaming chat completion.
func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages: buildOpenAIMessages(req.Messages),
		Model:    req.Model,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: p.name, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("openrouter request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: response has no choices")
	}

	choice := completion.Choices[0]
	model := completion.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		ID:           completion.ID,
		Provider:     p.name,
		Model:        model,
		Content:      strings.TrimSpace(choice.Message.Content),
		FinishReason: string(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

type openRouterStreamRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

type openRouterStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Stream opens a streaming chat completion.
func (p *OpenRouterProvider) Stream(ctx context.Context, req Request) (ChatStream, error) {
	body, err := json.Marshal(openRouterStreamRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", p.siteURL)
	}
	if p.siteTitle != "" {
		httpReq.Header.Set("X-Title", p.siteTitle)
	}

	respBody, err := openSSE(ctx, p.httpClient, httpReq, p.name, openRouterErrorMessage)
	if err != nil {
		return nil, err
	}
	return newSSEStream(respBody, decodeOpenRouterChunk, false), nil
}

func decodeOpenRouterChunk(data []byte) (Delta, bool, error) {
	var chunk openRouterStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return Delta{}, false, err
	}
	var d Delta
	if len(chunk.Choices) > 0 {
		d.Content = chunk.Choices[0].Delta.Content
		if fr := chunk.Choices[0].FinishReason; fr != nil {
			d.FinishReason = *fr
		}
	}
	d.Usage = chunk.Usage
	return d, d.Content != "" || d.Usage != nil || d.FinishReason != "", nil
}

func openRouterErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		return payload.Error.Message
	}
	return ""
}

// buildOpenAIMessages converts Messages to the openai-go SDK union type.
func buildOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
