package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/metrics"
	"github.com/ferro-labs/assistme/providers"
)

// State is a relay state. A turn starts Idle and ends in Done, Failed or
// ImmediateError.
type State int

const (
	StateIdle State = iota
	StateTypingStarted
	StateStreamingChunks
	StateRetrying
	StateDone
	StateFailed
	StateImmediateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTypingStarted:
		return "typing_started"
	case StateStreamingChunks:
		return "streaming_chunks"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateImmediateError:
		return "immediate_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateImmediateError
}

// Defaults for Relay.
const (
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 250 * time.Millisecond
)

// Opener starts one upstream generation. It is called once per attempt.
type Opener func(ctx context.Context) (providers.ChatStream, error)

// Emitter delivers a frame downstream. An error means the client is gone and
// ends the turn without further frames.
type Emitter func(Frame) error

// Relay holds the retry policy and labels for relayed turns. The zero value
// is not usable; call NewRelay.
type Relay struct {
	MaxRetries  int
	BackoffBase time.Duration
	// Provider labels metrics; Source and Model are reported in the done frame.
	Provider string
	Source   string
	Model    string
	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRelay returns a Relay with the default retry budget and backoff.
func NewRelay(provider, source, model string) *Relay {
	return &Relay{
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: DefaultBackoffBase,
		Provider:    provider,
		Source:      source,
		Model:       model,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Backoff returns the pause before retry number n (1-based):
// BackoffBase * 2^(n-1).
func (r *Relay) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return r.BackoffBase << (n - 1)
}

// Result describes a finished turn.
type Result struct {
	State       State
	FullContent string
	Attempts    int
	Metadata    *DoneMetadata
	// Err is the upstream error that ended a Failed or ImmediateError turn.
	Err error
}

// run is the per-turn state of the machine.
type run struct {
	*Relay
	ctx           context.Context
	emit          Emitter
	state         State
	typingStopped bool
	attempts      int
	retries       int
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	if r.OnTransition != nil {
		r.OnTransition(from, to)
	}
}

// Run drives one chat turn. Upstream failures are reported to the client as
// an error frame and in the Result; the returned error is non-nil only when
// ctx was cancelled or emit failed, in which case nothing more was sent.
func (r *Relay) Run(ctx context.Context, open Opener, emit Emitter) (*Result, error) {
	t := &run{Relay: r, ctx: ctx, emit: emit, state: StateIdle}

	t.transition(StateTypingStarted)
	if err := emit(Typing(TypingStart)); err != nil {
		return t.result("", nil, nil), err
	}

	for {
		t.attempts++
		full, meta, err := t.attempt(open)
		if err == nil {
			t.transition(StateDone)
			meta.Attempts = t.attempts
			meta.Source = r.Source
			meta.Model = r.Model
			if err := emit(Done(full, meta)); err != nil {
				return t.result(full, meta, nil), err
			}
			return t.result(full, meta, nil), nil
		}

		var stop stopError
		if errors.As(err, &stop) {
			return t.result("", nil, nil), stop.err
		}
		if ctx.Err() != nil {
			t.transition(StateFailed)
			return t.result("", nil, err), ctx.Err()
		}

		log := logging.FromContext(ctx).With("provider", r.Provider, "model", r.Model, "attempt", t.attempts)
		if !IsTransient(err) {
			metrics.ProviderErrors.WithLabelValues(r.Provider, errorType(err)).Inc()
			log.Warn("stream failed", "error", err)
			t.transition(StateImmediateError)
			return t.fail(CodeUpstream, upstreamMessage(err), err)
		}

		metrics.ProviderErrors.WithLabelValues(r.Provider, "transient").Inc()
		if t.retries >= r.MaxRetries {
			log.Warn("stream retries exhausted", "error", err, "retries", t.retries)
			t.transition(StateFailed)
			return t.fail(CodeStreamFailed, "Stream interrupted - please try again", err)
		}

		t.retries++
		t.transition(StateRetrying)
		metrics.StreamRetries.WithLabelValues(r.Provider).Inc()
		delay := r.Backoff(t.retries)
		log.Info("retrying stream", "error", err, "backoff", delay)
		if err := r.sleep(ctx, delay); err != nil {
			t.transition(StateFailed)
			return t.result("", nil, nil), err
		}
	}
}

// stopError carries an emit failure out of attempt; it ends the turn without
// an error frame.
type stopError struct{ err error }

func (e stopError) Error() string { return e.err.Error() }

// attempt performs one full generation. The partial text of a failed attempt
// is discarded by the caller; each attempt restarts from an empty buffer.
func (t *run) attempt(open Opener) (string, *DoneMetadata, error) {
	upstream, err := open(t.ctx)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = upstream.Close() }()

	if !t.typingStopped {
		t.typingStopped = true
		if err := t.emit(Typing(TypingStop)); err != nil {
			return "", nil, stopError{err}
		}
	}
	t.transition(StateStreamingChunks)

	start := t.now()
	var (
		full   []byte
		chunks int
	)
	for {
		d, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			text := string(full)
			return text, NewDoneMetadata(text, chunks, t.now().Sub(start)), nil
		}
		if err != nil {
			return "", nil, err
		}
		if d.Content != "" {
			chunks++
			full = append(full, d.Content...)
			if err := t.emit(Chunk(d.Content, chunks)); err != nil {
				return "", nil, stopError{err}
			}
		}
		if d.Usage != nil {
			if err := t.emit(UsageFrame(d.Usage)); err != nil {
				return "", nil, stopError{err}
			}
		}
	}
}

func (t *run) fail(code, message string, cause error) (*Result, error) {
	res := t.result("", nil, cause)
	if err := t.emit(Error(code, message)); err != nil {
		return res, err
	}
	return res, nil
}

func (t *run) result(full string, meta *DoneMetadata, err error) *Result {
	return &Result{State: t.state, FullContent: full, Attempts: t.attempts, Metadata: meta, Err: err}
}

// IsTransient reports whether err is a connection-level failure worth
// restarting the generation for: resets, timeouts and streams that ended
// without their end-of-stream signal. Upstream status errors and context
// cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *providers.StatusError
	if errors.As(err, &se) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

func errorType(err error) string {
	if providers.IsStatusError(err) {
		return "status"
	}
	return "other"
}

func upstreamMessage(err error) string {
	var se *providers.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("API Error: %d", se.StatusCode)
	}
	return "Streaming error - please try again"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
