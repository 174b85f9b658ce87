package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Config describes one plugin to load.
type Config struct {
	Name    string                 `json:"name" yaml:"name"`
	Stage   string                 `json:"stage" yaml:"stage"`
	Enabled bool                   `json:"enabled" yaml:"enabled"`
	Config  map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// ErrRejected is wrapped by RunBefore when a plugin rejects a turn.
var ErrRejected = errors.New("rejected by plugin")

// Manager manages plugin lifecycle and execution.
type Manager struct {
	before []Plugin
	after  []Plugin
	onErr  []Plugin
	all    []Plugin
}

// NewManager creates a new plugin manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register registers a plugin at the given stage.
func (m *Manager) Register(stage Stage, p Plugin) error {
	switch stage {
	case StageBeforeRequest:
		m.before = append(m.before, p)
	case StageAfterRequest:
		m.after = append(m.after, p)
	case StageOnError:
		m.onErr = append(m.onErr, p)
	default:
		return fmt.Errorf("unknown plugin stage: %s", stage)
	}
	m.all = append(m.all, p)
	slog.Info("plugin registered", "name", p.Name(), "type", p.Type(), "stage", stage)
	return nil
}

// Load initializes every enabled entry of cfgs from the factory registry and
// registers it at its stage. extra is merged into each plugin's config and
// lets the caller hand over live collaborators that cannot be expressed in a
// config file.
func (m *Manager) Load(cfgs []Config, extra map[string]interface{}) error {
	for _, pc := range cfgs {
		if !pc.Enabled {
			continue
		}
		factory, ok := GetFactory(pc.Name)
		if !ok {
			return fmt.Errorf("unknown plugin: %s", pc.Name)
		}
		opts := make(map[string]interface{}, len(pc.Config)+len(extra))
		for k, v := range pc.Config {
			opts[k] = v
		}
		for k, v := range extra {
			if _, set := opts[k]; !set {
				opts[k] = v
			}
		}
		p := factory()
		if err := p.Init(opts); err != nil {
			return fmt.Errorf("plugin %s init failed: %w", pc.Name, err)
		}
		if err := m.Register(Stage(pc.Stage), p); err != nil {
			return fmt.Errorf("plugin %s register failed: %w", pc.Name, err)
		}
	}
	return nil
}

// RunBefore executes all before-request plugins. Returns an error wrapping
// ErrRejected if a plugin rejects the turn.
func (m *Manager) RunBefore(ctx context.Context, pctx *Context) error {
	for _, p := range m.before {
		if err := p.Execute(ctx, pctx); err != nil {
			return fmt.Errorf("plugin %s failed: %w", p.Name(), err)
		}
		if pctx.Reject {
			return fmt.Errorf("%w %s: %s", ErrRejected, p.Name(), pctx.Reason)
		}
	}
	return nil
}

// RunAfter executes all after-request plugins. Failures are logged only.
func (m *Manager) RunAfter(ctx context.Context, pctx *Context) {
	for _, p := range m.after {
		if err := p.Execute(ctx, pctx); err != nil {
			slog.Warn("after-request plugin error", "plugin", p.Name(), "error", err)
		}
	}
}

// RunOnError executes all on-error plugins.
func (m *Manager) RunOnError(ctx context.Context, pctx *Context) {
	for _, p := range m.onErr {
		if err := p.Execute(ctx, pctx); err != nil {
			slog.Warn("on-error plugin error", "plugin", p.Name(), "error", err)
		}
	}
}

// HasPlugins returns true if any plugins are registered.
func (m *Manager) HasPlugins() bool {
	return len(m.all) > 0
}

// Names lists registered plugin names in registration order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.all))
	for _, p := range m.all {
		names = append(names, p.Name())
	}
	return names
}

// Close closes every registered plugin that holds resources.
func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.all {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close plugin %s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
