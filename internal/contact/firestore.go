package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultFirestoreURL is the Firestore REST API root.
const DefaultFirestoreURL = "https://firestore.googleapis.com/v1"

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// FirestoreOptions configures NewFirestoreStore. Authentication uses, in
// order: CredentialsJSON (a service account key), APIKey, then Google
// application default credentials.
type FirestoreOptions struct {
	ProjectID       string
	Collection      string
	APIKey          string
	CredentialsJSON []byte
	BaseURL         string
	HTTPClient      *http.Client
}

// FirestoreStore writes records as documents through the Firestore REST API.
type FirestoreStore struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewFirestoreStore creates a FirestoreStore.
func NewFirestoreStore(ctx context.Context, opts FirestoreOptions) (*FirestoreStore, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, fmt.Errorf("firestore: project id is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = "messages"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultFirestoreURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	store := &FirestoreStore{
		endpoint: fmt.Sprintf("%s/projects/%s/databases/(default)/documents/%s",
			baseURL, url.PathEscape(opts.ProjectID), url.PathEscape(collection)),
		http: httpClient,
	}

	authCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	switch {
	case len(opts.CredentialsJSON) > 0:
		creds, err := google.CredentialsFromJSON(authCtx, opts.CredentialsJSON, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("firestore: parse credentials: %w", err)
		}
		store.http = oauth2.NewClient(authCtx, creds.TokenSource)
	case opts.APIKey != "":
		store.apiKey = opts.APIKey
	default:
		ts, err := google.DefaultTokenSource(authCtx, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("firestore: default credentials: %w", err)
		}
		store.http = oauth2.NewClient(authCtx, ts)
	}
	return store, nil
}

type firestoreValue struct {
	StringValue    *string `json:"stringValue,omitempty"`
	TimestampValue *string `json:"timestampValue,omitempty"`
}

func stringValue(s string) firestoreValue { return firestoreValue{StringValue: &s} }

// Save implements Store.
func (f *FirestoreStore) Save(ctx context.Context, rec Record) (string, error) {
	ts := rec.Timestamp.UTC().Format(time.RFC3339Nano)
	doc := map[string]map[string]firestoreValue{
		"fields": {
			"name":          stringValue(rec.Name),
			"email":         stringValue(rec.Email),
			"subject":       stringValue(rec.Subject),
			"message":       stringValue(rec.Message),
			"timestamp":     {TimestampValue: &ts},
			"userAgent":     stringValue(rec.UserAgent),
			"submittedFrom": stringValue(rec.SubmittedFrom),
			"ip":            stringValue(rec.IP),
		},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	endpoint := f.endpoint
	if f.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(f.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("firestore request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		return "", fmt.Errorf("firestore API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var created struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode firestore response: %w", err)
	}
	return path.Base(created.Name), nil
}
