package github

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const profileJSON = `{
	"login": "octo", "name": "Octo Cat", "bio": "builds things", "location": "Philadelphia",
	"public_repos": 3, "followers": 10, "following": 2, "html_url": "https://github.com/octo",
	"node_id": "dropped", "site_admin": false
}`

const reposJSON = `[
	{"name": "a", "full_name": "octo/a", "language": "Go", "stargazers_count": 5, "forks_count": 1, "topics": ["cli"], "fork": false},
	{"name": "b", "full_name": "octo/b", "language": "Python", "stargazers_count": 12, "forks_count": 3},
	{"name": "c", "full_name": "octo/c", "language": "Go", "stargazers_count": 0, "forks_count": 0}
]`

func newTestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
			t.Errorf("Accept = %q", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		switch r.URL.Path {
		case "/users/octo":
			_, _ = io.WriteString(w, profileJSON)
		case "/users/octo/repos":
			_, _ = io.WriteString(w, reposJSON)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Not Found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresUsername(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without username")
	}
}

func TestProfile_LeanAndCached(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c, err := New(Options{Username: "octo", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if p.Username != "octo" || p.Name != "Octo Cat" || p.PublicRepos != 3 {
		t.Fatalf("profile = %+v", p)
	}
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("upstream hits = %d, want 1 (second call cached)", hits)
	}
}

func TestRepos_Lean(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c, _ := New(Options{Username: "octo", BaseURL: srv.URL})

	repos, err := c.Repos(context.Background(), "bogus", 500)
	if err != nil {
		t.Fatalf("Repos() error: %v", err)
	}
	if len(repos) != 3 || repos[1].Stars != 12 || repos[0].Topics[0] != "cli" {
		t.Fatalf("repos = %+v", repos)
	}
	if repos[1].Topics == nil {
		t.Fatal("topics must be an empty list, not null")
	}
}

func TestSummary(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c, _ := New(Options{Username: "octo", BaseURL: srv.URL})

	s, err := c.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if s.TotalRepos != 3 || s.TotalStars != 17 || s.TotalForks != 4 {
		t.Fatalf("summary totals = %+v", s)
	}
	if s.Languages[0].Language != "Go" || s.Languages[0].Repos != 2 {
		t.Fatalf("languages = %+v", s.Languages)
	}
	if s.TopRepos[0].Name != "b" {
		t.Fatalf("top repo = %+v", s.TopRepos[0])
	}
	if s.Profile.Username != "octo" {
		t.Fatalf("profile = %+v", s.Profile)
	}
}

func TestStatusError(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits)
	c, _ := New(Options{Username: "ghost", BaseURL: srv.URL})

	_, err := c.Profile(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || se.Message != "Not Found" {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestToken_SentAsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.EqualFold(got, "Bearer secret") {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = io.WriteString(w, profileJSON)
	}))
	defer srv.Close()

	c, _ := New(Options{Username: "octo", Token: "secret", BaseURL: srv.URL})
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatal(err)
	}
}
