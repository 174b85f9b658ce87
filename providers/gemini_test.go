package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewGemini(context.Background(), GeminiOptions{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Models:  []ModelInfo{{ID: "gemini-2.0-flash", Streaming: true}},
	})
	if err != nil {
		t.Fatalf("NewGemini() error: %v", err)
	}
	return p
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiOptions{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestGemini_ModelsDefaultName(t *testing.T) {
	p := newTestGemini(t, func(http.ResponseWriter, *http.Request) {})
	m := p.Models()[0]
	if m.Name != "gemini-2.0-flash" || m.Provider != "gemini" {
		t.Fatalf("ModelInfo = %+v", m)
	}
}

func TestGemini_Complete(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hi from Gemini"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 3, "totalTokenCount": 7}
		}`)
	})

	resp, err := p.Complete(context.Background(), Request{
		Model:    "gemini-2.0-flash",
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "Hi from Gemini" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestGemini_Stream(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q", r.URL.Query().Get("alt"))
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var body geminiStreamRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "sys" {
			t.Errorf("system instruction = %+v", body.SystemInstruction)
		}
		if len(body.Contents) != 2 || body.Contents[1].Role != "model" {
			t.Errorf("contents = %+v", body.Contents)
		}
		_, _ = io.WriteString(w, sseLines(
			`data: {"candidates":[{"content":{"parts":[{"text":"Good "}]}}]}`,
			`data: {"candidates":[{"content":{"parts":[{"text":"morning"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":2,"totalTokenCount":4}}`,
		))
	})

	s, err := p.Stream(context.Background(), Request{
		Model: "gemini-2.0-flash",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	text, err := collect(t, s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean io.EOF after finish reason, got %v", err)
	}
	if text != "Good morning" {
		t.Errorf("text = %q", text)
	}
}

func TestGemini_StreamCutBeforeFinish(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, sseLines(`data: {"candidates":[{"content":{"parts":[{"text":"Good "}]}}]}`))
	})
	s, err := p.Stream(context.Background(), Request{Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if _, err := collect(t, s); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestGemini_StreamStatusError(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})
	_, err := p.Stream(context.Background(), Request{Model: "gemini-2.0-flash"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Message != "API key not valid" {
		t.Errorf("Message = %q", se.Message)
	}
	if !strings.HasPrefix(se.Error(), "gemini API error (400)") {
		t.Errorf("Error() = %q", se.Error())
	}
}

func TestMapGeminiFinishReason(t *testing.T) {
	cases := map[string]string{"STOP": "stop", "MAX_TOKENS": "length", "SAFETY": "content_filter", "RECITATION": "recitation"}
	for in, want := range cases {
		if got := mapGeminiFinishReason(in); got != want {
			t.Errorf("mapGeminiFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}
