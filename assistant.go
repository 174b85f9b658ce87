// Package assistme is the chat backend of a personal portfolio site.
//
// The Assistant type is the main entry point: create one with New from a
// [Config] (usually loaded with [LoadConfig] and overlaid with [ApplyEnv]),
// then answer turns with Chat or ChatStream. It owns every piece of shared
// state (response cache, rate-limit windows, session memory, circuit
// breakers) so a process runs exactly one instance and injects it into the
// HTTP layer.
//
// When no provider credentials are configured the assistant answers from
// the local keyword responder instead of failing.
package assistme

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ferro-labs/assistme/internal/cache"
	"github.com/ferro-labs/assistme/internal/chatlog"
	"github.com/ferro-labs/assistme/internal/circuitbreaker"
	"github.com/ferro-labs/assistme/internal/contact"
	"github.com/ferro-labs/assistme/internal/github"
	"github.com/ferro-labs/assistme/internal/localai"
	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/portfolio"
	"github.com/ferro-labs/assistme/internal/ratelimit"
	"github.com/ferro-labs/assistme/internal/session"
	"github.com/ferro-labs/assistme/plugin"
	"github.com/ferro-labs/assistme/providers"

	_ "github.com/ferro-labs/assistme/internal/plugins/chatlog"
)

// EventHookFunc is called asynchronously after a chat turn completes or
// fails.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking hooks.
const (
	SubjectChatCompleted = "assistme.chat.completed"
	SubjectChatFailed    = "assistme.chat.failed"
)

// Assistant answers chat turns. Create it with New; the zero value is not
// usable.
type Assistant struct {
	cfg          Config
	registry     *providers.Registry
	sessions     session.Store
	limiter      *ratelimit.Limiter
	responses    *cache.Cache[ChatResponse]
	breakers     *circuitbreaker.Set
	plugins      *plugin.Manager
	profile      *portfolio.Profile
	local        *localai.Responder
	systemPrompt string
	github       *github.Client
	contact      *contact.Service

	mu      sync.RWMutex
	hooks   []EventHookFunc
	closers []func() error

	now func() time.Time
}

type options struct {
	providers    []providers.Provider
	sessions     session.Store
	chatLog      chatlog.Writer
	contactStore contact.Store
	httpClient   *http.Client
	profile      *portfolio.Profile
	now          func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithProvider registers p instead of building providers from the config
// credentials. May be repeated.
func WithProvider(p providers.Provider) Option {
	return func(o *options) { o.providers = append(o.providers, p) }
}

// WithSessionStore replaces the configured session backend.
func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.sessions = s }
}

// WithChatLog sends chat log entries to w. The caller keeps ownership of w.
func WithChatLog(w chatlog.Writer) Option {
	return func(o *options) { o.chatLog = w }
}

// WithContactStore replaces the configured contact backend.
func WithContactStore(s contact.Store) Option {
	return func(o *options) { o.contactStore = s }
}

// WithHTTPClient sets the client used for provider and GitHub calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithProfile replaces the embedded portfolio profile.
func WithProfile(p *portfolio.Profile) Option {
	return func(o *options) { o.profile = p }
}

// WithClock replaces time.Now for session ids, runtimes and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New validates cfg and builds an Assistant with all of its collaborators.
// Call Close to release them.
func New(cfg Config, opts ...Option) (*Assistant, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.profile == nil {
		o.profile = portfolio.Default()
	}

	a := &Assistant{
		cfg:      cfg,
		registry: providers.NewRegistry(),
		limiter:  ratelimit.New(cfg.RateLimit.Requests, seconds(cfg.RateLimit.WindowSeconds)),
		responses: cache.New[ChatResponse](cfg.Chat.CacheSize, seconds(cfg.Chat.CacheTTLSeconds),
			cache.WithValidator(func(r ChatResponse) bool {
				return len([]rune(r.Answer)) >= cfg.Chat.MinCacheableLength
			})),
		breakers: circuitbreaker.NewSet(cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold, seconds(cfg.CircuitBreaker.TimeoutSeconds)),
		plugins:      plugin.NewManager(),
		profile:      o.profile,
		local:        localai.New(o.profile),
		systemPrompt: o.profile.SystemPrompt(),
		now:          o.now,
	}

	if err := a.init(o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Assistant) init(o options) error {
	ctx := context.Background()
	log := logging.Logger

	if len(o.providers) > 0 {
		for _, p := range o.providers {
			a.registry.Register(p)
		}
	} else if err := a.registerConfiguredProviders(ctx, o.httpClient); err != nil {
		return err
	}
	if a.registry.Len() == 0 {
		log.Warn("no provider configured, answering locally",
			"error", &ConfigError{Component: "providers", Message: "set OPENROUTER_API_KEY or GEMINI_API_KEY"})
	}

	switch {
	case o.sessions != nil:
		a.sessions = o.sessions
	case a.cfg.Session.Backend == SessionBackendValkey:
		client, err := session.DialValkey(ctx, session.ValkeyOptions{
			Addr:     a.cfg.Session.ValkeyAddr,
			Password: a.cfg.Session.ValkeyPassword,
			DB:       a.cfg.Session.ValkeyDB,
		})
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		a.addCloser(func() error { client.Close(); return nil })
		a.sessions = session.NewValkey(client, a.cfg.Session.ValkeyPrefix,
			a.cfg.Session.MaxHistory, seconds(a.cfg.Session.ExpirySeconds))
	default:
		a.sessions = session.NewMemory(a.cfg.Session.MaxHistory, seconds(a.cfg.Session.ExpirySeconds))
	}

	if a.cfg.GitHub.Username != "" {
		gh, err := github.New(github.Options{
			Username:   a.cfg.GitHub.Username,
			Token:      a.cfg.GitHub.Token,
			BaseURL:    a.cfg.GitHub.BaseURL,
			HTTPClient: o.httpClient,
			CacheTTL:   seconds(a.cfg.GitHub.CacheTTLSeconds),
		})
		if err != nil {
			return fmt.Errorf("github client: %w", err)
		}
		a.github = gh
	}

	store, err := a.contactStore(ctx, o)
	if err != nil {
		return err
	}
	a.contact = contact.NewService(store)

	return a.loadPlugins(o.chatLog)
}

func (a *Assistant) registerConfiguredProviders(ctx context.Context, httpClient *http.Client) error {
	if key := a.cfg.OpenRouter.APIKey; key != "" {
		p, err := providers.NewOpenRouter(providers.OpenRouterOptions{
			APIKey:     key,
			BaseURL:    a.cfg.OpenRouter.BaseURL,
			SiteURL:    a.cfg.OpenRouter.SiteURL,
			SiteTitle:  a.cfg.OpenRouter.SiteTitle,
			Models:     a.cfg.OpenRouter.Models,
			HTTPClient: httpClient,
		})
		if err != nil {
			return fmt.Errorf("openrouter provider: %w", err)
		}
		a.registry.Register(p)
		logging.Logger.Info("provider registered", "provider", p.Name(), "models", len(p.Models()))
	}
	if key := a.cfg.Gemini.APIKey; key != "" {
		p, err := providers.NewGemini(ctx, providers.GeminiOptions{
			APIKey:     key,
			BaseURL:    a.cfg.Gemini.BaseURL,
			Models:     a.cfg.Gemini.Models,
			HTTPClient: httpClient,
		})
		if err != nil {
			return fmt.Errorf("gemini provider: %w", err)
		}
		a.registry.Register(p)
		logging.Logger.Info("provider registered", "provider", p.Name(), "models", len(p.Models()))
	}
	return nil
}

func (a *Assistant) contactStore(ctx context.Context, o options) (contact.Store, error) {
	if o.contactStore != nil {
		return o.contactStore, nil
	}
	cc := a.cfg.Contact
	switch cc.Backend {
	case ContactBackendFirestore:
		fo := contact.FirestoreOptions{
			ProjectID:  cc.FirestoreProject,
			Collection: cc.FirestoreCollection,
			APIKey:     cc.FirestoreAPIKey,
			BaseURL:    cc.FirestoreBaseURL,
			HTTPClient: o.httpClient,
		}
		if cc.CredentialsFile != "" {
			data, err := os.ReadFile(cc.CredentialsFile) //nolint:gosec
			if err != nil {
				return nil, fmt.Errorf("contact credentials: %w", err)
			}
			fo.CredentialsJSON = data
		}
		fs, err := contact.NewFirestoreStore(ctx, fo)
		if err != nil {
			return nil, fmt.Errorf("contact store: %w", err)
		}
		return fs, nil
	case ContactBackendSQL:
		s, err := contact.OpenSQLStore(cc.DSN)
		if err != nil {
			return nil, fmt.Errorf("contact store: %w", err)
		}
		a.addCloser(s.Close)
		return s, nil
	default:
		return nil, nil
	}
}

// loadPlugins registers the configured plugins. When a chat log is available
// and the config does not place the chat-log plugin itself, it is attached
// after each answer and on each error.
func (a *Assistant) loadPlugins(w chatlog.Writer) error {
	if w == nil && a.cfg.ChatLog.DSN != "" {
		sw, err := chatlog.Open(a.cfg.ChatLog.DSN)
		if err != nil {
			return fmt.Errorf("chat log: %w", err)
		}
		a.addCloser(sw.Close)
		w = sw
	}

	cfgs := append([]plugin.Config(nil), a.cfg.Plugins...)
	extra := map[string]interface{}{}
	if w != nil {
		extra["writer"] = w
		placed := false
		for _, pc := range cfgs {
			if pc.Name == "chat-log" && pc.Enabled {
				placed = true
			}
		}
		if !placed {
			cfgs = append(cfgs,
				plugin.Config{Name: "chat-log", Stage: string(plugin.StageAfterRequest), Enabled: true},
				plugin.Config{Name: "chat-log", Stage: string(plugin.StageOnError), Enabled: true},
			)
		}
	}
	if err := a.plugins.Load(cfgs, extra); err != nil {
		return err
	}
	a.addCloser(a.plugins.Close)
	return nil
}

func (a *Assistant) addCloser(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases every resource the assistant opened, in reverse order.
func (a *Assistant) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddHook registers an EventHookFunc invoked on every completed or failed
// turn.
func (a *Assistant) AddHook(fn EventHookFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, fn)
}

func (a *Assistant) publish(ctx context.Context, subject string, data map[string]interface{}) {
	a.mu.RLock()
	hooks := append([]EventHookFunc(nil), a.hooks...)
	a.mu.RUnlock()
	for _, h := range hooks {
		go h(context.WithoutCancel(ctx), subject, data)
	}
}

// StartSweepers runs the periodic limiter and session sweeps until ctx is
// done.
func (a *Assistant) StartSweepers(ctx context.Context) {
	interval := seconds(a.cfg.Server.SweepIntervalSeconds)
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	a.limiter.StartSweeper(ctx, interval)
	if m, ok := a.sessions.(*session.Memory); ok {
		m.StartSweeper(ctx, interval)
	}
}

// Allow records one request for clientKey and reports whether it is within
// the rate limit.
func (a *Assistant) Allow(clientKey string) bool {
	return a.limiter.Allow(clientKey)
}

// RetryAfter reports how long clientKey must wait for a free slot.
func (a *Assistant) RetryAfter(clientKey string) time.Duration {
	return a.limiter.RetryAfter(clientKey)
}

// Config returns the configuration the assistant was built with.
func (a *Assistant) Config() Config { return a.cfg }

// Profile returns the portfolio profile.
func (a *Assistant) Profile() *portfolio.Profile { return a.profile }

// GitHub returns the GitHub proxy, or nil when no username is configured.
func (a *Assistant) GitHub() *github.Client { return a.github }

// Contact returns the contact form service.
func (a *Assistant) Contact() *contact.Service { return a.contact }

// Plugins lists the loaded plugin names.
func (a *Assistant) Plugins() []string { return a.plugins.Names() }
