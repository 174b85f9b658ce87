package assistme

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ferro-labs/assistme/internal/circuitbreaker"
	"github.com/ferro-labs/assistme/internal/guard"
	"github.com/ferro-labs/assistme/internal/localai"
	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/metrics"
	"github.com/ferro-labs/assistme/internal/portfolio"
	"github.com/ferro-labs/assistme/internal/session"
	"github.com/ferro-labs/assistme/internal/stream"
	"github.com/ferro-labs/assistme/plugin"
	"github.com/ferro-labs/assistme/providers"
)

// Answer labels for turns that never reach a provider.
const (
	SourceGuard = "Guard"
	ModelSystem = "System"
)

// cacheKeyPrefixRunes bounds how much of the message feeds the cache key.
const cacheKeyPrefixRunes = 100

// Limits on the client-supplied conversation and page context.
const (
	maxClientMessages   = 50
	maxContextLabelRune = 200
	maxVisibleProjects  = 20
)

// ChatRequest is one visitor turn.
type ChatRequest struct {
	Message  string                 `json:"message"`
	Messages []providers.Message    `json:"messages,omitempty"`
	Context  *portfolio.PageContext `json:"context,omitempty"`
	// Stream defaults to true when omitted.
	Stream    *bool  `json:"stream,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Streaming reports whether the client asked for a frame stream.
func (r ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// Validate trims the message and checks the request shape. The first failing
// field is reported as a *ValidationError.
func (r *ChatRequest) Validate(maxLength int) error {
	r.Message = strings.TrimSpace(r.Message)
	err := validation.ValidateStruct(r,
		validation.Field(&r.Message,
			validation.Required.Error("Message is required"),
			validation.RuneLength(1, maxLength).Error(fmt.Sprintf("Message too long (max %d characters)", maxLength))),
	)
	if err != nil {
		return firstValidationError(err, "")
	}
	if len(r.Messages) > maxClientMessages {
		return &ValidationError{Field: "messages", Message: fmt.Sprintf("Too many messages (max %d)", maxClientMessages)}
	}
	for i := range r.Messages {
		m := &r.Messages[i]
		err := validation.ValidateStruct(m,
			validation.Field(&m.Role, validation.Required,
				validation.In(providers.RoleUser, providers.RoleAssistant).Error("must be user or assistant")),
			validation.Field(&m.Content, validation.Required,
				validation.RuneLength(1, maxLength).Error(fmt.Sprintf("too long (max %d characters)", maxLength))),
		)
		if err != nil {
			return firstValidationError(err, "messages["+strconv.Itoa(i)+"].")
		}
	}
	if c := r.Context; c != nil {
		if len(c.VisibleProjects) > maxVisibleProjects {
			return &ValidationError{Field: "context.visibleProjects", Message: fmt.Sprintf("Too many projects (max %d)", maxVisibleProjects)}
		}
		err := validation.ValidateStruct(c,
			validation.Field(&c.CurrentSection, validation.RuneLength(0, maxContextLabelRune)),
		)
		if err != nil {
			return firstValidationError(err, "context.")
		}
		for i := range c.VisibleProjects {
			p := &c.VisibleProjects[i]
			if err := validation.ValidateStruct(p, validation.Field(&p.Title, validation.RuneLength(0, maxContextLabelRune))); err != nil {
				return firstValidationError(err, "context.visibleProjects["+strconv.Itoa(i)+"].")
			}
		}
	}
	return nil
}

// inboundTexts lists every client-controlled string that can reach a
// provider prompt.
func (r *ChatRequest) inboundTexts() []string {
	out := make([]string, 0, 2+len(r.Messages))
	out = append(out, r.Message)
	for _, m := range r.Messages {
		out = append(out, m.Content)
	}
	if c := r.Context; c != nil {
		out = append(out, c.CurrentSection)
		for _, p := range c.VisibleProjects {
			out = append(out, p.Title)
		}
	}
	return out
}

// screen returns the first injection pattern found in any inbound text.
func (r *ChatRequest) screen() (string, bool) {
	for _, text := range r.inboundTexts() {
		if pattern, ok := guard.Match(text); ok {
			return pattern, true
		}
	}
	return "", false
}

func firstValidationError(err error, prefix string) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &ValidationError{Field: prefix + keys[0], Message: verrs[keys[0]].Error()}
}

// ChatResponse is the non-streaming answer.
type ChatResponse struct {
	Answer     string           `json:"answer"`
	Source     string           `json:"source"`
	Model      string           `json:"model"`
	SessionID  string           `json:"session_id,omitempty"`
	Category   string           `json:"category"`
	Confidence float64          `json:"confidence"`
	Runtime    string           `json:"runtime"`
	Usage      *providers.Usage `json:"usage,omitempty"`
	Timestamp  int64            `json:"timestamp"`
	Cached     bool             `json:"cached,omitempty"`
	Type       string           `json:"type,omitempty"`
	Action     *localai.Action  `json:"action,omitempty"`
}

// NewSessionID derives a fresh session id from the client key and the
// current time.
func (a *Assistant) NewSessionID(clientKey string) string {
	sum := md5.Sum([]byte(clientKey + strconv.FormatInt(a.now().UnixNano(), 10))) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

// turn is the state shared by Chat and ChatStream once the pre-steps ran.
type turn struct {
	req       ChatRequest
	sessionID string
	history   []session.Message
	model     string
	cacheKey  string
	start     time.Time
}

type candidate struct {
	provider providers.Provider
	model    string
}

// prepare runs the steps common to both modes. A non-nil response means the
// turn was answered without a provider and must not be stored.
func (a *Assistant) prepare(ctx context.Context, req ChatRequest, clientKey string) (*turn, *ChatResponse, error) {
	start := a.now()
	if err := req.Validate(a.cfg.Chat.MaxMessageLength); err != nil {
		return nil, nil, err
	}
	log := logging.FromContext(ctx)

	if d, ok := a.local.DirectCommand(req.Message); ok {
		metrics.ChatRequestsTotal.WithLabelValues(d.Source, d.Model, "success").Inc()
		return nil, &ChatResponse{
			Answer:     d.Answer,
			Source:     d.Source,
			Model:      d.Model,
			SessionID:  req.SessionID,
			Category:   d.Category,
			Confidence: 1.0,
			Runtime:    "0ms",
			Timestamp:  a.now().UnixMilli(),
			Type:       d.Type,
			Action:     d.Action,
		}, nil
	}

	if pattern, blocked := req.screen(); blocked {
		metrics.InjectionBlocks.Inc()
		metrics.ChatRequestsTotal.WithLabelValues(SourceGuard, ModelSystem, "blocked").Inc()
		log.Warn("message refused", "error", &InjectionDetected{Pattern: pattern}, "client", clientKey)
		return nil, &ChatResponse{
			Answer:     guard.Refusal,
			Source:     SourceGuard,
			Model:      ModelSystem,
			SessionID:  req.SessionID,
			Category:   "Security",
			Confidence: 1.0,
			Runtime:    "0ms",
			Timestamp:  a.now().UnixMilli(),
		}, nil
	}

	t := &turn{req: req, sessionID: req.SessionID, start: start}
	if t.sessionID == "" {
		t.sessionID = a.NewSessionID(clientKey)
	} else {
		history, err := a.sessions.Read(ctx, t.sessionID)
		if err != nil {
			log.Warn("session read failed", "session_id", t.sessionID, "error", err)
		}
		t.history = history
	}
	t.model = a.resolveModel(req.Model)

	if len(req.Messages) == 0 && len(t.history) == 0 && (req.Context == nil || req.Context.IsZero()) {
		t.cacheKey = cacheKey(req.Message, t.model)
		if cached, ok := a.responses.Get(t.cacheKey); ok {
			metrics.CacheLookups.WithLabelValues("chat", "hit").Inc()
			metrics.ChatRequestsTotal.WithLabelValues(cached.Source, cached.Model, "cached").Inc()
			cached.SessionID = t.sessionID
			cached.Cached = true
			cached.Runtime = runtime(a.now().Sub(start))
			cached.Timestamp = a.now().UnixMilli()
			return nil, &cached, nil
		}
		metrics.CacheLookups.WithLabelValues("chat", "miss").Inc()
	}
	return t, nil, nil
}

func cacheKey(message, model string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(message)))
	if len(runes) > cacheKeyPrefixRunes {
		runes = runes[:cacheKeyPrefixRunes]
	}
	return "chat:" + string(runes) + "|" + model
}

func runtime(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

func (a *Assistant) resolveModel(requested string) string {
	if requested != "" {
		if _, ok := a.registry.ForModel(requested); ok {
			return requested
		}
	}
	return a.cfg.DefaultModel
}

// candidates orders the providers that may serve model: its owner first,
// then every other provider with its first model.
func (a *Assistant) candidates(model string) []candidate {
	var out []candidate
	owner, ok := a.registry.ForModel(model)
	if ok {
		out = append(out, candidate{provider: owner, model: model})
	}
	for _, name := range a.registry.Names() {
		p, _ := a.registry.Get(name)
		if ok && name == owner.Name() {
			continue
		}
		if models := p.Models(); len(models) > 0 {
			out = append(out, candidate{provider: p, model: models[0].ID})
		}
	}
	return out
}

// conversation builds the upstream message list.
func (a *Assistant) conversation(t *turn) []providers.Message {
	msgs := make([]providers.Message, 0, len(t.history)+len(t.req.Messages)+2)
	msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: a.systemPrompt})
	for _, m := range t.history {
		msgs = append(msgs, providers.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, t.req.Messages...)
	user := t.req.Message
	if t.req.Context != nil && !t.req.Context.IsZero() {
		user = portfolio.ContextPrompt(t.req.Message, t.req.Context)
	}
	return append(msgs, providers.Message{Role: providers.RoleUser, Content: user})
}

func sourceName(provider string) string {
	switch provider {
	case "openrouter":
		return "OpenRouter"
	case "gemini":
		return "Gemini"
	default:
		return provider
	}
}

// classify maps a provider failure onto the typed errors callers match.
func classify(provider string, attempts int, err error) error {
	var se *providers.StatusError
	if errors.As(err, &se) {
		return &UpstreamHTTPError{Err: se}
	}
	if stream.IsTransient(err) {
		return &TransientStreamError{Provider: provider, Attempts: attempts, Err: err}
	}
	return fmt.Errorf("%s completion: %w", provider, err)
}

// remember stores a finished exchange in session memory and, when the turn is
// cacheable, in the response cache.
func (a *Assistant) remember(ctx context.Context, t *turn, resp ChatResponse) {
	if err := a.sessions.Append(ctx, t.sessionID, t.req.Message, resp.Answer); err != nil {
		logging.FromContext(ctx).Warn("session append failed", "session_id", t.sessionID, "error", err)
	}
	if t.cacheKey != "" {
		a.responses.Set(t.cacheKey, resp)
	}
}

func (a *Assistant) localResponse(t *turn) ChatResponse {
	ans := a.local.Respond(t.req.Message)
	return ChatResponse{
		Answer:     ans.Text,
		Source:     localai.Source,
		Model:      localai.Model,
		SessionID:  t.sessionID,
		Category:   ans.Kind.Category(),
		Confidence: ans.Confidence,
		Runtime:    runtime(a.now().Sub(t.start)),
		Timestamp:  a.now().UnixMilli(),
	}
}

func (a *Assistant) completedEvent(ctx context.Context, t *turn, resp ChatResponse, streaming bool) {
	a.publish(ctx, SubjectChatCompleted, map[string]interface{}{
		"session_id": t.sessionID,
		"source":     resp.Source,
		"model":      resp.Model,
		"cached":     resp.Cached,
		"stream":     streaming,
		"latency_ms": a.now().Sub(t.start).Milliseconds(),
	})
}

func (a *Assistant) failedEvent(ctx context.Context, t *turn, provider string, err error, streaming bool) {
	a.publish(ctx, SubjectChatFailed, map[string]interface{}{
		"session_id": t.sessionID,
		"provider":   provider,
		"error":      err.Error(),
		"stream":     streaming,
		"latency_ms": a.now().Sub(t.start).Milliseconds(),
	})
}

// Chat answers one turn without streaming.
func (a *Assistant) Chat(ctx context.Context, req ChatRequest, clientKey string) (*ChatResponse, error) {
	t, short, err := a.prepare(ctx, req, clientKey)
	if err != nil || short != nil {
		return short, err
	}
	log := logging.FromContext(ctx).With("session_id", t.sessionID, "model", t.model)

	cands := a.candidates(t.model)
	if len(cands) == 0 {
		log.Debug("answering locally", "error", &ConfigError{Component: "providers", Message: "no provider registered"})
		return a.answerLocally(ctx, t, false), nil
	}

	preq := providers.Request{
		Model:       t.model,
		Messages:    a.conversation(t),
		Temperature: providers.Float(a.cfg.Chat.Temperature),
		TopP:        providers.Float(a.cfg.Chat.TopP),
		MaxTokens:   providers.Int(a.cfg.Chat.MaxTokens),
	}
	pctx := plugin.NewContext(&preq)
	pctx.SessionID = t.sessionID
	pctx.Message = t.req.Message
	if err := a.plugins.RunBefore(ctx, pctx); err != nil {
		return nil, rejection(err)
	}

	var (
		resp    *providers.Response
		lastErr error
		failed  string
		served  candidate
	)
	for _, c := range cands {
		creq := preq
		creq.Model = c.model
		cb := a.breakers.For(c.provider.Name())
		err := cb.Execute(func() error {
			r, err := c.provider.Complete(ctx, creq)
			resp = r
			return err
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			metrics.ProviderErrors.WithLabelValues(c.provider.Name(), "circuit_open").Inc()
			continue
		}
		if err != nil {
			failed = c.provider.Name()
			lastErr = classify(failed, 1, err)
			metrics.ProviderErrors.WithLabelValues(c.provider.Name(), errorLabel(lastErr)).Inc()
			log.Warn("provider failed", "provider", c.provider.Name(), "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		served = c
		lastErr = nil
		break
	}

	if resp == nil || lastErr != nil {
		if lastErr == nil {
			log.Warn("every provider circuit is open, answering locally")
			return a.answerLocally(ctx, t, false), nil
		}
		pctx.Error = lastErr
		a.plugins.RunOnError(ctx, pctx)
		metrics.ChatRequestsTotal.WithLabelValues(sourceName(failed), t.model, "error").Inc()
		a.failedEvent(ctx, t, failed, lastErr, false)
		return nil, lastErr
	}

	source := sourceName(served.provider.Name())
	model := resp.Model
	if model == "" {
		model = served.model
	}
	if resp.Provider == "" {
		resp.Provider = served.provider.Name()
	}
	pctx.Response = resp
	pctx.Source = source
	a.plugins.RunAfter(ctx, pctx)

	out := ChatResponse{
		Answer:     resp.Content,
		Source:     source,
		Model:      model,
		SessionID:  t.sessionID,
		Category:   "General",
		Confidence: 0.95,
		Runtime:    runtime(a.now().Sub(t.start)),
		Usage:      resp.Usage,
		Timestamp:  a.now().UnixMilli(),
	}
	a.remember(ctx, t, out)
	metrics.ChatRequestsTotal.WithLabelValues(source, model, "success").Inc()
	metrics.ChatDuration.WithLabelValues(source, "false").Observe(a.now().Sub(t.start).Seconds())
	a.completedEvent(ctx, t, out, false)
	return &out, nil
}

func errorLabel(err error) string {
	var (
		he *UpstreamHTTPError
		te *TransientStreamError
	)
	switch {
	case errors.As(err, &he):
		return "status"
	case errors.As(err, &te):
		return "transient"
	default:
		return "other"
	}
}

// rejection turns a plugin rejection into a client error. Other plugin
// failures pass through.
func rejection(err error) error {
	if errors.Is(err, plugin.ErrRejected) {
		return &ValidationError{Field: "message", Message: err.Error()}
	}
	return err
}

func (a *Assistant) answerLocally(ctx context.Context, t *turn, streaming bool) *ChatResponse {
	resp := a.localResponse(t)
	if err := a.sessions.Append(ctx, t.sessionID, t.req.Message, resp.Answer); err != nil {
		logging.FromContext(ctx).Warn("session append failed", "session_id", t.sessionID, "error", err)
	}
	metrics.ChatRequestsTotal.WithLabelValues(resp.Source, resp.Model, "success").Inc()
	metrics.ChatDuration.WithLabelValues(resp.Source, strconv.FormatBool(streaming)).Observe(a.now().Sub(t.start).Seconds())
	a.completedEvent(ctx, t, resp, streaming)
	return &resp
}

func (a *Assistant) synthesizer(source, model string) *stream.Synthesizer {
	s := stream.NewSynthesizer(source, model)
	if a.cfg.Stream.LocalSliceSize > 0 {
		s.SliceSize = a.cfg.Stream.LocalSliceSize
	}
	s.Delay = milliseconds(a.cfg.Stream.LocalSliceDelayMS)
	return s
}

// ChatStream answers one turn as a frame stream written through emit and
// returns the session id. Errors returned before the first frame (validation,
// plugin rejection) are for the caller to report; upstream failures are
// delivered as an error frame and yield a nil error.
func (a *Assistant) ChatStream(ctx context.Context, req ChatRequest, clientKey string, emit stream.Emitter) (string, error) {
	t, short, err := a.prepare(ctx, req, clientKey)
	if err != nil {
		return req.SessionID, err
	}
	if short != nil {
		_, err := a.synthesizer(short.Source, short.Model).Run(ctx, short.Answer, emit)
		return short.SessionID, err
	}
	log := logging.FromContext(ctx).With("session_id", t.sessionID, "model", t.model)

	var served *candidate
	for _, c := range a.candidates(t.model) {
		if a.breakers.For(c.provider.Name()).Allow() {
			served = &c
			break
		}
		metrics.ProviderErrors.WithLabelValues(c.provider.Name(), "circuit_open").Inc()
	}
	if served == nil {
		log.Debug("answering locally", "error", &ConfigError{Component: "providers", Message: "no provider available"})
		resp := a.localResponse(t)
		res, err := a.synthesizer(resp.Source, resp.Model).Run(ctx, resp.Answer, emit)
		if err != nil {
			return t.sessionID, err
		}
		if res.State == stream.StateDone {
			a.answerLocally(ctx, t, true)
		}
		return t.sessionID, nil
	}

	name := served.provider.Name()
	preq := providers.Request{
		Model:       served.model,
		Messages:    a.conversation(t),
		Temperature: providers.Float(a.cfg.Chat.Temperature),
		TopP:        providers.Float(a.cfg.Chat.TopP),
		MaxTokens:   providers.Int(a.cfg.Chat.StreamMaxTokens),
	}
	pctx := plugin.NewContext(&preq)
	pctx.SessionID = t.sessionID
	pctx.Message = t.req.Message
	pctx.Stream = true
	if err := a.plugins.RunBefore(ctx, pctx); err != nil {
		return t.sessionID, rejection(err)
	}

	source := sourceName(name)
	relay := stream.NewRelay(name, source, served.model)
	relay.MaxRetries = a.cfg.Stream.MaxRetries
	relay.BackoffBase = milliseconds(a.cfg.Stream.BackoffBaseMS)
	relay.OnTransition = func(from, to stream.State) {
		log.Debug("stream transition", "from", from.String(), "to", to.String())
	}
	res, err := relay.Run(ctx, func(ctx context.Context) (providers.ChatStream, error) {
		return served.provider.Stream(ctx, preq)
	}, emit)

	cb := a.breakers.For(name)
	switch {
	case res != nil && res.State == stream.StateDone:
		cb.RecordSuccess()
		out := ChatResponse{
			Answer:     res.FullContent,
			Source:     source,
			Model:      served.model,
			SessionID:  t.sessionID,
			Category:   "General",
			Confidence: 0.95,
			Runtime:    runtime(a.now().Sub(t.start)),
			Timestamp:  a.now().UnixMilli(),
		}
		a.remember(ctx, t, out)
		pctx.Response = &providers.Response{Provider: name, Model: served.model, Content: res.FullContent}
		pctx.Source = source
		a.plugins.RunAfter(ctx, pctx)
		metrics.ChatRequestsTotal.WithLabelValues(source, served.model, "success").Inc()
		metrics.ChatDuration.WithLabelValues(source, "true").Observe(a.now().Sub(t.start).Seconds())
		a.completedEvent(ctx, t, out, true)
	case res != nil && res.Err != nil && ctx.Err() == nil:
		cb.RecordFailure()
		failure := classify(name, res.Attempts, res.Err)
		pctx.Error = failure
		a.plugins.RunOnError(ctx, pctx)
		metrics.ChatRequestsTotal.WithLabelValues(source, served.model, "error").Inc()
		a.failedEvent(ctx, t, name, failure, true)
	}
	return t.sessionID, err
}

// Conversation returns the stored history of a session.
func (a *Assistant) Conversation(ctx context.Context, sessionID string) ([]session.Message, error) {
	msgs, err := a.sessions.Read(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	return msgs, nil
}

// ClearConversation deletes a session. Unknown ids are not an error.
func (a *Assistant) ClearConversation(ctx context.Context, sessionID string) error {
	if err := a.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
