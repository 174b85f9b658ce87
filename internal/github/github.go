// Package github is a read-through cached client for the public GitHub REST
// API. Responses are reduced to the lean subsets the site renders.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/ferro-labs/assistme/internal/cache"
	"github.com/ferro-labs/assistme/internal/metrics"
)

// DefaultBaseURL is the GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

// Cache defaults.
const (
	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 64
)

// Options configures New.
type Options struct {
	Username string
	// Token is optional; unauthenticated requests get a lower rate limit.
	Token      string
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	CacheSize  int
}

// Profile is the lean user profile.
type Profile struct {
	Username    string `json:"username"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Company     string `json:"company"`
	Blog        string `json:"blog"`
	Email       string `json:"email"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	AvatarURL   string `json:"avatar_url"`
	HTMLURL     string `json:"html_url"`
}

// Repo is the lean repository.
type Repo struct {
	Name          string   `json:"name"`
	FullName      string   `json:"full_name"`
	Description   string   `json:"description"`
	HTMLURL       string   `json:"html_url"`
	Homepage      string   `json:"homepage"`
	Language      string   `json:"language"`
	Stars         int      `json:"stars"`
	Forks         int      `json:"forks"`
	Watchers      int      `json:"watchers"`
	OpenIssues    int      `json:"open_issues"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
	PushedAt      string   `json:"pushed_at"`
	Size          int      `json:"size"`
	Topics        []string `json:"topics"`
	Visibility    string   `json:"visibility"`
	DefaultBranch string   `json:"default_branch"`
}

// LanguageCount is one entry of the summary language breakdown.
type LanguageCount struct {
	Language string `json:"language"`
	Repos    int    `json:"repos"`
}

// Summary aggregates the profile and its repositories.
type Summary struct {
	Profile    Profile         `json:"profile"`
	TotalRepos int             `json:"total_repos"`
	TotalStars int             `json:"total_stars"`
	TotalForks int             `json:"total_forks"`
	Languages  []LanguageCount `json:"languages"`
	TopRepos   []Repo          `json:"top_repos"`
}

// StatusError is returned when GitHub answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github API error (%d): %s", e.StatusCode, e.Message)
}

// Client fetches and caches GitHub data for one user.
type Client struct {
	username  string
	baseURL   string
	userAgent string
	http      *http.Client
	cache     *cache.Cache[any]
}

// New creates a Client. With a token, requests are authorized through an
// OAuth2 static token source layered over opts.HTTPClient.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Username) == "" {
		return nil, fmt.Errorf("github: username is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "AssistMe-Portfolio"
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
		authed.Timeout = httpClient.Timeout
		httpClient = authed
	}

	return &Client{
		username:  opts.Username,
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      httpClient,
		cache:     cache.New[any](size, ttl),
	}, nil
}

// Username returns the user this client reads.
func (c *Client) Username() string { return c.username }

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var payload struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			msg = payload.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode github response: %w", err)
	}
	return nil
}

func lookup[T any](c *Client, key string) (T, bool) {
	v, ok := c.cache.Get(key)
	if ok {
		if typed, ok := v.(T); ok {
			metrics.CacheLookups.WithLabelValues("github", "hit").Inc()
			return typed, true
		}
	}
	metrics.CacheLookups.WithLabelValues("github", "miss").Inc()
	var zero T
	return zero, false
}

type rawProfile struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
	Company     string `json:"company"`
	Blog        string `json:"blog"`
	Email       string `json:"email"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	AvatarURL   string `json:"avatar_url"`
	HTMLURL     string `json:"html_url"`
}

// Profile returns the user's lean profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	key := "profile:" + c.username
	if p, ok := lookup[*Profile](c, key); ok {
		return p, nil
	}

	var raw rawProfile
	if err := c.get(ctx, "/users/"+url.PathEscape(c.username), &raw); err != nil {
		return nil, err
	}
	p := &Profile{
		Username:    raw.Login,
		Name:        raw.Name,
		Bio:         raw.Bio,
		Location:    raw.Location,
		Company:     raw.Company,
		Blog:        raw.Blog,
		Email:       raw.Email,
		PublicRepos: raw.PublicRepos,
		Followers:   raw.Followers,
		Following:   raw.Following,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
		AvatarURL:   raw.AvatarURL,
		HTMLURL:     raw.HTMLURL,
	}
	c.cache.Set(key, p)
	return p, nil
}

type rawRepo struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	Homepage        string   `json:"homepage"`
	Language        string   `json:"language"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	WatchersCount   int      `json:"watchers_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	PushedAt        string   `json:"pushed_at"`
	Size            int      `json:"size"`
	Topics          []string `json:"topics"`
	Visibility      string   `json:"visibility"`
	DefaultBranch   string   `json:"default_branch"`
	Fork            bool     `json:"fork"`
}

var repoSorts = map[string]bool{"created": true, "updated": true, "pushed": true, "full_name": true}

// Repos returns up to limit repositories ordered by sort ("updated" by
// default). limit is clamped to 1..100.
func (c *Client) Repos(ctx context.Context, sortBy string, limit int) ([]Repo, error) {
	if !repoSorts[sortBy] {
		sortBy = "updated"
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	key := fmt.Sprintf("repos:%s:%s:%d", c.username, sortBy, limit)
	if repos, ok := lookup[[]Repo](c, key); ok {
		return repos, nil
	}

	q := url.Values{}
	q.Set("sort", sortBy)
	q.Set("per_page", strconv.Itoa(limit))
	var raw []rawRepo
	if err := c.get(ctx, "/users/"+url.PathEscape(c.username)+"/repos?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	repos := make([]Repo, 0, len(raw))
	for _, r := range raw {
		topics := r.Topics
		if topics == nil {
			topics = []string{}
		}
		repos = append(repos, Repo{
			Name:          r.Name,
			FullName:      r.FullName,
			Description:   r.Description,
			HTMLURL:       r.HTMLURL,
			Homepage:      r.Homepage,
			Language:      r.Language,
			Stars:         r.StargazersCount,
			Forks:         r.ForksCount,
			Watchers:      r.WatchersCount,
			OpenIssues:    r.OpenIssuesCount,
			CreatedAt:     r.CreatedAt,
			UpdatedAt:     r.UpdatedAt,
			PushedAt:      r.PushedAt,
			Size:          r.Size,
			Topics:        topics,
			Visibility:    r.Visibility,
			DefaultBranch: r.DefaultBranch,
		})
	}
	c.cache.Set(key, repos)
	return repos, nil
}

// Summary fetches the profile and up to 100 repositories concurrently and
// aggregates stars, forks and languages.
func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	var (
		profile *Profile
		repos   []Repo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = c.Profile(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		repos, err = c.Repos(gctx, "updated", 100)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarize(profile, repos), nil
}

func summarize(profile *Profile, repos []Repo) *Summary {
	s := &Summary{Profile: *profile, TotalRepos: len(repos)}
	langs := map[string]int{}
	for _, r := range repos {
		s.TotalStars += r.Stars
		s.TotalForks += r.Forks
		if r.Language != "" {
			langs[r.Language]++
		}
	}
	for lang, n := range langs {
		s.Languages = append(s.Languages, LanguageCount{Language: lang, Repos: n})
	}
	sort.Slice(s.Languages, func(i, j int) bool {
		if s.Languages[i].Repos != s.Languages[j].Repos {
			return s.Languages[i].Repos > s.Languages[j].Repos
		}
		return s.Languages[i].Language < s.Languages[j].Language
	})

	top := make([]Repo, len(repos))
	copy(top, repos)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Stars > top[j].Stars })
	if len(top) > 5 {
		top = top[:5]
	}
	s.TopRepos = top
	return s
}
