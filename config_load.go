package assistme

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ferro-labs/assistme/providers"
)

//go:embed config.schema.json
var configSchemaJSON string

var (
	schemaOnce   sync.Once
	configSchema *jsonschema.Schema
	schemaErr    error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		configSchema, schemaErr = jsonschema.CompileString("config.schema.json", configSchemaJSON)
	})
	return configSchema, schemaErr
}

// LoadConfig reads a config file, checks it against the embedded JSON Schema
// and decodes it over DefaultConfig, so keys the file omits keep their
// defaults. Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var (
		raw    interface{}
		decode func(*Config) error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		// Round-trip through JSON so the schema sees JSON types only.
		if doc != nil {
			js, err := json.Marshal(doc)
			if err != nil {
				return nil, fmt.Errorf("parsing YAML config: %w", err)
			}
			if err := json.Unmarshal(js, &raw); err != nil {
				return nil, fmt.Errorf("parsing YAML config: %w", err)
			}
		}
		decode = func(cfg *Config) error { return yaml.Unmarshal(data, cfg) }
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
		decode = func(cfg *Config) error { return json.Unmarshal(data, cfg) }
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config does not match schema: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// ValidateConfig checks cross-field rules the schema cannot express.
func ValidateConfig(cfg Config) error {
	var errs []error

	seen := make(map[string]string)
	for _, group := range []struct {
		name   string
		models []providers.ModelInfo
	}{
		{"openrouter", cfg.OpenRouter.Models},
		{"gemini", cfg.Gemini.Models},
	} {
		for _, m := range group.models {
			if strings.TrimSpace(m.ID) == "" {
				errs = append(errs, fmt.Errorf("%s: model id is required", group.name))
				continue
			}
			if prev, dup := seen[m.ID]; dup {
				errs = append(errs, fmt.Errorf("model %q is listed by both %s and %s", m.ID, prev, group.name))
				continue
			}
			seen[m.ID] = group.name
		}
	}
	if cfg.DefaultModel == "" {
		errs = append(errs, errors.New("default_model is required"))
	} else if _, ok := seen[cfg.DefaultModel]; !ok {
		errs = append(errs, fmt.Errorf("default_model %q is not in any provider's model list", cfg.DefaultModel))
	}

	if cfg.Chat.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("chat.max_message_length must be positive"))
	}
	if cfg.Chat.CacheSize <= 0 || cfg.Chat.CacheTTLSeconds <= 0 {
		errs = append(errs, errors.New("chat cache size and ttl must be positive"))
	}
	if cfg.RateLimit.Requests <= 0 || cfg.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, errors.New("rate_limit requests and window must be positive"))
	}
	if cfg.Session.MaxHistory <= 0 || cfg.Session.ExpirySeconds <= 0 {
		errs = append(errs, errors.New("session max_history and expiry must be positive"))
	}
	if cfg.Stream.MaxRetries < 0 {
		errs = append(errs, errors.New("stream.max_retries must not be negative"))
	}

	switch cfg.Session.Backend {
	case SessionBackendMemory, "":
	case SessionBackendValkey:
		if cfg.Session.ValkeyAddr == "" {
			errs = append(errs, errors.New("session backend valkey requires valkey_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", cfg.Session.Backend))
	}

	switch cfg.Contact.Backend {
	case ContactBackendNone, ContactBackendSQL:
	case ContactBackendFirestore:
		if cfg.Contact.FirestoreProject == "" {
			errs = append(errs, errors.New("contact backend firestore requires firestore_project"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown contact backend %q", cfg.Contact.Backend))
	}

	for _, p := range cfg.Plugins {
		switch p.Stage {
		case "before_request", "after_request", "on_error":
		default:
			errs = append(errs, fmt.Errorf("plugin %q has unknown stage %q", p.Name, p.Stage))
		}
	}

	return errors.Join(errs...)
}

// ApplyEnv overlays environment variables on cfg. getenv is usually
// os.Getenv. Unset variables leave the config untouched.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey)
	str("OPENROUTER_MODEL", &cfg.DefaultModel)
	str("OPENROUTER_SITE_URL", &cfg.OpenRouter.SiteURL)
	str("OPENROUTER_SITE_TITLE", &cfg.OpenRouter.SiteTitle)
	str("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	str("GITHUB_TOKEN", &cfg.GitHub.Token)
	str("GITHUB_USERNAME", &cfg.GitHub.Username)
	str("STATIC_DIR", &cfg.Server.StaticDir)
	str("RESUME_PATH", &cfg.Server.ResumePath)
	str("CHATLOG_DSN", &cfg.ChatLog.DSN)
	str("CONTACT_BACKEND", &cfg.Contact.Backend)
	str("CONTACT_DSN", &cfg.Contact.DSN)
	str("CONTACT_CREDENTIALS_FILE", &cfg.Contact.CredentialsFile)
	str("FIREBASE_PROJECT_ID", &cfg.Contact.FirestoreProject)
	str("FIREBASE_API_KEY", &cfg.Contact.FirestoreAPIKey)
	str("VALKEY_PASSWORD", &cfg.Session.ValkeyPassword)

	if v := strings.TrimSpace(getenv("VALKEY_ADDR")); v != "" {
		cfg.Session.ValkeyAddr = v
		cfg.Session.Backend = SessionBackendValkey
	}
	if cfg.Contact.Backend == ContactBackendNone && cfg.Contact.FirestoreProject != "" {
		cfg.Contact.Backend = ContactBackendFirestore
	}
	if v := getenv("CORS_ORIGINS"); strings.TrimSpace(v) != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}

	var errs []error
	for key, dst := range map[string]*int{
		"PORT":                &cfg.Server.Port,
		"RATE_LIMIT_REQUESTS": &cfg.RateLimit.Requests,
		"RATE_LIMIT_WINDOW":   &cfg.RateLimit.WindowSeconds,
	} {
		if err := num(key, dst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
