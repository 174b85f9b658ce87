package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ferro-labs/assistme"
	"github.com/ferro-labs/assistme/internal/contact"
	"github.com/ferro-labs/assistme/internal/localai"
	"github.com/ferro-labs/assistme/internal/stream"
)

type memoryContactStore struct {
	mu      sync.Mutex
	records []contact.Record
}

func (m *memoryContactStore) Save(_ context.Context, rec contact.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return "msg-1", nil
}

func testConfig(t *testing.T) assistme.Config {
	t.Helper()
	cfg := assistme.DefaultConfig()
	cfg.GitHub.Username = ""
	cfg.Server.StaticDir = ""
	cfg.Server.ResumePath = filepath.Join(t.TempDir(), "missing.pdf")
	cfg.Stream.LocalSliceDelayMS = 0
	return cfg
}

func testRouter(t *testing.T, cfg assistme.Config, opts ...assistme.Option) http.Handler {
	t.Helper()
	a, err := assistme.New(cfg, opts...)
	if err != nil {
		t.Fatalf("assistme.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return newRouter(a)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	e, ok := decode(t, w)["error"].(map[string]interface{})
	if !ok {
		t.Fatal("response has no error envelope")
	}
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	r := testRouter(t, testConfig(t))
	for _, path := range []string{"/health", "/api/health"} {
		w := do(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, w.Code)
		}
		body := decode(t, w)
		if body["status"] != "healthy" || body["service"] != assistme.ServiceName {
			t.Errorf("%s: body = %v", path, body)
		}
		if _, ok := body["config"].(map[string]interface{}); !ok {
			t.Errorf("%s: missing config block", path)
		}
	}
}

func TestIndex(t *testing.T) {
	r := testRouter(t, testConfig(t))
	w := do(t, r, http.MethodGet, "/api", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := decode(t, w)["endpoints"]; !ok {
		t.Error("missing endpoints")
	}
}

func TestChat_NonStreaming(t *testing.T) {
	r := testRouter(t, testConfig(t))
	w := do(t, r, http.MethodPost, "/api/chat", `{"message":"skills","stream":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Session-ID") == "" {
		t.Error("missing X-Session-ID header")
	}
	body := decode(t, w)
	if body["source"] != localai.Source {
		t.Errorf("source = %v", body["source"])
	}
}

func TestChat_Streaming(t *testing.T) {
	r := testRouter(t, testConfig(t))
	w := do(t, r, http.MethodPost, "/api/chat", `{"message":"skills"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != stream.ContentType {
		t.Errorf("content type = %q", ct)
	}
	if w.Header().Get("X-Session-ID") == "" {
		t.Error("missing X-Session-ID header")
	}

	var frames []stream.Frame
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var f stream.Frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			t.Fatalf("bad frame %q: %v", sc.Text(), err)
		}
		frames = append(frames, f)
	}
	if len(frames) < 3 {
		t.Fatalf("got %d frames", len(frames))
	}
	if frames[0].Type != stream.TypeTyping || frames[len(frames)-1].Type != stream.TypeDone {
		t.Errorf("first/last = %s/%s", frames[0].Type, frames[len(frames)-1].Type)
	}
}

func TestChat_BadRequests(t *testing.T) {
	r := testRouter(t, testConfig(t))
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"empty message streaming", `{"message":""}`},
		{"empty message", `{"message":"  ","stream":false}`},
		{"long message", `{"message":"` + strings.Repeat("x", 2001) + `","stream":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/chat", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if code := errorCode(t, w); code != "invalid_request" {
				t.Errorf("code = %q", code)
			}
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Requests = 1
	r := testRouter(t, cfg)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi","stream":false}`))
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	if w := send(); w.Code != http.StatusOK {
		t.Fatalf("first status = %d", w.Code)
	}
	w := send()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	e := decode(t, w)["error"].(map[string]interface{})
	if e["code"] != "rate_limited" || e["retryAfter"] == nil {
		t.Errorf("error = %v", e)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	r := testRouter(t, testConfig(t))
	w := do(t, r, http.MethodPost, "/api/chat", `{"message":"skills","stream":false}`)
	id := w.Header().Get("X-Session-ID")

	w = do(t, r, http.MethodGet, "/api/conversation/"+id, "")
	body := decode(t, w)
	if body["count"] != float64(2) || body["session_id"] != id {
		t.Errorf("conversation = %v", body)
	}

	w = do(t, r, http.MethodDelete, "/api/conversation/"+id, "")
	if decode(t, w)["status"] != "cleared" {
		t.Error("expected cleared status")
	}
	w = do(t, r, http.MethodGet, "/api/conversation/"+id, "")
	if decode(t, w)["count"] != float64(0) {
		t.Error("conversation not cleared")
	}
}

func TestModels(t *testing.T) {
	r := testRouter(t, testConfig(t))
	w := do(t, r, http.MethodGet, "/api/models", "")
	body := decode(t, w)
	models, _ := body["models"].([]interface{})
	if len(models) == 0 || body["default"] != "x-ai/grok-4.1-fast" {
		t.Errorf("models = %v", body)
	}
}

func TestTyping(t *testing.T) {
	r := testRouter(t, testConfig(t))
	w := do(t, r, http.MethodPost, "/api/typing", `{"session_id":"abc"}`)
	body := decode(t, w)
	if body["status"] != "received" || body["session_id"] != "abc" {
		t.Errorf("body = %v", body)
	}
}

func TestResume(t *testing.T) {
	cfg := testConfig(t)
	r := testRouter(t, cfg)
	if w := do(t, r, http.MethodGet, "/api/resume", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing resume status = %d, want 404", w.Code)
	}

	path := filepath.Join(t.TempDir(), "resume.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Server.ResumePath = path
	r = testRouter(t, cfg)
	w := do(t, r, http.MethodGet, "/api/resume", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "resume.pdf") {
		t.Errorf("content disposition = %q", w.Header().Get("Content-Disposition"))
	}
}

func TestContact(t *testing.T) {
	valid := `{"name":"Ada","email":"ada@example.com","subject":"Hello","message":"Let's talk."}`

	t.Run("not configured", func(t *testing.T) {
		r := testRouter(t, testConfig(t))
		w := do(t, r, http.MethodPost, "/api/contact", valid)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		r := testRouter(t, testConfig(t), assistme.WithContactStore(&memoryContactStore{}))
		w := do(t, r, http.MethodPost, "/api/contact", `{"name":"Ada","email":"nope","subject":"Hi","message":"x"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("stored", func(t *testing.T) {
		store := &memoryContactStore{}
		r := testRouter(t, testConfig(t), assistme.WithContactStore(store))
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(valid))
		req.Header.Set("User-Agent", "test-agent")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		body := decode(t, w)
		if body["success"] != true || body["id"] != "msg-1" {
			t.Errorf("body = %v", body)
		}
		if len(store.records) != 1 || store.records[0].UserAgent != "test-agent" || store.records[0].SubmittedFrom != "Direct" {
			t.Errorf("records = %+v", store.records)
		}
	})
}

func TestGitHub(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r := testRouter(t, testConfig(t))
		w := do(t, r, http.MethodGet, "/api/github/profile", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})

	t.Run("profile", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/users/octo" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"login":"octo","name":"Octo Cat","public_repos":8}`))
		}))
		defer upstream.Close()

		cfg := testConfig(t)
		cfg.GitHub.Username = "octo"
		cfg.GitHub.BaseURL = upstream.URL
		r := testRouter(t, cfg)
		w := do(t, r, http.MethodGet, "/api/github/profile", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		body := decode(t, w)
		if body["username"] != "octo" || body["public_repos"] != float64(8) {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.GitHub.Username = "octo"
		r := testRouter(t, cfg)
		w := do(t, r, http.MethodGet, "/api/github/repos?limit=500", "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.CORSOrigins = []string{"https://mangeshraut.pro"}
	r := testRouter(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://mangeshraut.pro")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://mangeshraut.pro" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>portfolio</h1>"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.Server.StaticDir = dir
	r := testRouter(t, cfg)

	w := do(t, r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "portfolio") {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter(t, testConfig(t))
	_ = do(t, r, http.MethodPost, "/api/chat", `{"message":"skills","stream":false}`)
	w := do(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "assistme_chat_requests_total") {
		t.Errorf("status = %d", w.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4321"
	if got := clientKey(req); got != "192.0.2.1" {
		t.Errorf("remote key = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 198.51.100.2 , 10.0.0.1")
	if got := clientKey(req); got != "198.51.100.2" {
		t.Errorf("forwarded key = %q", got)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	env := map[string]string{"PORT": "3000", "OPENROUTER_MODEL": "x-ai/grok-2-1212"}
	cfg, err := loadConfig("", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.DefaultModel != "x-ai/grok-2-1212" {
		t.Errorf("cfg = %+v", cfg.Server)
	}

	env["OPENROUTER_MODEL"] = "unknown/model"
	if _, err := loadConfig("", func(k string) string { return env[k] }); err == nil {
		t.Fatal("expected validation error for unknown model")
	}
}
