package chatlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	store "github.com/ferro-labs/assistme/internal/chatlog"
	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/plugin"
	"github.com/ferro-labs/assistme/providers"
)

type recordingWriter struct {
	entries []store.Entry
}

func (r *recordingWriter) Write(_ context.Context, e store.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestPlugin_WritesEveryStage(t *testing.T) {
	w := &recordingWriter{}
	p := &Plugin{}
	if err := p.Init(map[string]interface{}{"writer": store.Writer(w)}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx := logging.WithTraceID(context.Background(), "trace-42")
	pctx := plugin.NewContext(&providers.Request{Model: "gemini-2.0-flash"})
	pctx.SessionID = "sess"
	pctx.Message = "what are your skills?"

	if err := p.Execute(ctx, pctx); err != nil {
		t.Fatalf("before: %v", err)
	}
	pctx.Source = "Gemini"
	pctx.Response = &providers.Response{Provider: "gemini", Content: "Go, Python"}
	if err := p.Execute(ctx, pctx); err != nil {
		t.Fatalf("after: %v", err)
	}
	pctx.Error = errors.New("boom")
	if err := p.Execute(ctx, pctx); err != nil {
		t.Fatalf("on error: %v", err)
	}

	if len(w.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(w.entries))
	}
	stages := []string{"before_request", "after_request", "on_error"}
	for i, e := range w.entries {
		if e.Stage != stages[i] {
			t.Errorf("entry %d stage = %s, want %s", i, e.Stage, stages[i])
		}
		if e.TraceID != "trace-42" || e.SessionID != "sess" {
			t.Errorf("entry %d ids = %q/%q", i, e.TraceID, e.SessionID)
		}
		if e.PromptChars != 21 {
			t.Errorf("entry %d prompt chars = %d", i, e.PromptChars)
		}
	}
	if w.entries[1].AnswerChars != 10 || w.entries[1].Provider != "gemini" || w.entries[1].Source != "Gemini" {
		t.Fatalf("unexpected after entry %+v", w.entries[1])
	}
	if w.entries[2].ErrorMessage != "boom" {
		t.Fatalf("unexpected error entry %+v", w.entries[2])
	}
}

func TestPlugin_FallbackTraceID(t *testing.T) {
	w := &recordingWriter{}
	p := &Plugin{}
	_ = p.Init(map[string]interface{}{"writer": store.Writer(w)})
	_ = p.Execute(context.Background(), plugin.NewContext(&providers.Request{}))
	if len(w.entries) != 1 || len(w.entries[0].TraceID) != 36 {
		t.Fatalf("expected generated uuid trace id, got %+v", w.entries)
	}
}

func TestPlugin_OpensOwnStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "chats.db")
	p := &Plugin{}
	if err := p.Init(map[string]interface{}{"dsn": dsn}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	pctx := plugin.NewContext(&providers.Request{Model: "m"})
	pctx.SessionID = "s1"
	if err := p.Execute(context.Background(), pctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res, err := p.owned.List(context.Background(), store.Query{SessionID: "s1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("total = %d", res.Total)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPlugin_DefaultsToNoop(t *testing.T) {
	p := &Plugin{}
	if err := p.Init(map[string]interface{}{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Execute(context.Background(), plugin.NewContext(nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
