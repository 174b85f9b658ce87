package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiURL is the Gemini API root.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// GeminiOptions configures NewGemini.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	Models     []ModelInfo
	HTTPClient *http.Client
}

// GeminiProvider talks to Google Gemini. Complete goes through the genai SDK;
// Stream reads the raw streamGenerateContent SSE body.
type GeminiProvider struct {
	Base
	client     *genai.Client
	httpClient *http.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	base := newBase("gemini", opts.APIKey, baseURL, opts.Models)
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base.baseURL + "/"}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{Base: base, client: client, httpClient: httpClient}, nil
}

// splitSystem separates system messages (joined into one instruction) from
// the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

func geminiRole(role string) string {
	if role == RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// Complete sends a non-streaming generateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	system, turns := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		contents = append(contents, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	genConfig := &genai.GenerateContentConfig{}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		genConfig.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.MaxTokens != nil {
		genConfig.MaxOutputTokens = int32(*req.MaxTokens)
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: p.name, StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: response has no candidates")
	}

	resp := &Response{
		Provider:     p.name,
		Model:        req.Model,
		Content:      strings.TrimSpace(result.Text()),
		FinishReason: mapGeminiFinishReason(string(result.Candidates[0].FinishReason)),
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = &Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiStreamRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Stream opens a streamGenerateContent request with alt=sse. Gemini sends no
// [DONE] sentinel; EOF after a finish reason ends the stream cleanly.
func (p *GeminiProvider) Stream(ctx context.Context, req Request) (ChatStream, error) {
	system, turns := splitSystem(req.Messages)

	payload := geminiStreamRequest{}
	for _, m := range turns {
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if req.Temperature != nil || req.MaxTokens != nil || req.TopP != nil {
		payload.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	respBody, err := openSSE(ctx, p.httpClient, httpReq, p.name, geminiErrorMessage)
	if err != nil {
		return nil, err
	}
	return newSSEStream(respBody, decodeGeminiChunk, true), nil
}

func decodeGeminiChunk(data []byte) (Delta, bool, error) {
	var chunk geminiStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return Delta{}, false, err
	}
	var d Delta
	if len(chunk.Candidates) > 0 {
		candidate := chunk.Candidates[0]
		for _, part := range candidate.Content.Parts {
			d.Content += part.Text
		}
		if candidate.FinishReason != "" {
			d.FinishReason = mapGeminiFinishReason(candidate.FinishReason)
		}
	}
	if u := chunk.UsageMetadata; u != nil && u.TotalTokenCount > 0 {
		d.Usage = &Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return d, d.Content != "" || d.Usage != nil || d.FinishReason != "", nil
}

func geminiErrorMessage(body []byte) string {
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

// mapGeminiFinishReason maps Gemini finish reasons to OpenAI-style reasons.
func mapGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}
