package providers

import (
	"context"
	"testing"
)

type stubProvider struct {
	Base
}

func newStub(name string, ids ...string) *stubProvider {
	models := make([]ModelInfo, len(ids))
	for i, id := range ids {
		models[i] = ModelInfo{ID: id}
	}
	return &stubProvider{Base: newBase(name, "", "", models)}
}

func (s *stubProvider) Complete(context.Context, Request) (*Response, error) { return nil, nil }
func (s *stubProvider) Stream(context.Context, Request) (ChatStream, error)  { return nil, nil }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("a", "m1"))

	if _, ok := r.Get("a"); !ok {
		t.Fatal("expected provider a")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unexpected provider")
	}
}

func TestRegistry_PreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("second", "m2"))
	r.Register(newStub("first", "m1"))
	r.Register(newStub("second", "m3")) // replaced in place

	names := r.Names()
	if len(names) != 2 || names[0] != "second" || names[1] != "first" {
		t.Fatalf("Names() = %v", names)
	}
	models := r.AllModels()
	if len(models) != 2 || models[0].ID != "m3" || models[1].ID != "m1" {
		t.Fatalf("AllModels() = %+v", models)
	}
}

func TestRegistry_ForModel(t *testing.T) {
	r := NewRegistry()
	r.Register(newStub("openrouter", "x-ai/grok-4.1-fast", "shared"))
	r.Register(newStub("gemini", "gemini-2.0-flash", "shared"))

	p, ok := r.ForModel("gemini-2.0-flash")
	if !ok || p.Name() != "gemini" {
		t.Fatalf("ForModel(gemini) = %v, %v", p, ok)
	}
	p, ok = r.ForModel("shared")
	if !ok || p.Name() != "openrouter" {
		t.Fatalf("ForModel(shared) should prefer the first registered provider, got %v", p)
	}
	if _, ok := r.ForModel("unknown"); ok {
		t.Fatal("expected no provider for unknown model")
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d", r.Len())
	}
}
