// Package contact validates and stores contact form submissions.
package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/metrics"
)

// MaxMessageLength bounds the message body in characters.
const MaxMessageLength = 5000

// Submission is the form payload.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// normalize trims every field.
func (s *Submission) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Subject = strings.TrimSpace(s.Subject)
	s.Message = strings.TrimSpace(s.Message)
}

// Validate checks the trimmed submission. The error is a validation.Errors
// keyed by JSON field name.
func (s Submission) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &s,
		validation.Field(&s.Name, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&s.Email, validation.Required, is.EmailFormat),
		validation.Field(&s.Subject, validation.Required, validation.RuneLength(1, 300)),
		validation.Field(&s.Message, validation.Required, validation.RuneLength(1, MaxMessageLength)),
	)
}

// Meta is request metadata stored alongside a submission.
type Meta struct {
	UserAgent     string
	SubmittedFrom string
	IP            string
}

// Record is a stored submission.
type Record struct {
	Submission
	Meta
	Timestamp time.Time
}

// Store persists records and returns the new document id.
type Store interface {
	Save(ctx context.Context, rec Record) (string, error)
}

// Result is returned to the client on success.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrNotConfigured is returned by a Service without a store.
var ErrNotConfigured = errors.New("contact form is not configured")

// Service validates submissions and hands them to a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service. A nil store makes every Submit fail with
// ErrNotConfigured.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Configured reports whether submissions have somewhere to go.
func (s *Service) Configured() bool { return s != nil && s.store != nil }

// Submit validates sub and stores it. Validation failures are returned as
// validation.Errors.
func (s *Service) Submit(ctx context.Context, sub Submission, meta Meta) (*Result, error) {
	sub.normalize()
	if err := sub.Validate(ctx); err != nil {
		metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if s.store == nil {
		return nil, ErrNotConfigured
	}
	if meta.UserAgent == "" {
		meta.UserAgent = "Unknown"
	}
	if meta.SubmittedFrom == "" {
		meta.SubmittedFrom = "Direct"
	}

	id, err := s.store.Save(ctx, Record{Submission: sub, Meta: meta, Timestamp: s.now().UTC()})
	if err != nil {
		metrics.ContactSubmissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save contact message: %w", err)
	}
	metrics.ContactSubmissions.WithLabelValues("stored").Inc()
	logging.FromContext(ctx).Info("contact message stored", "id", id, "subject", sub.Subject)
	return &Result{Success: true, Message: "Message sent successfully!", ID: id}, nil
}
