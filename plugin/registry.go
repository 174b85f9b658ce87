package plugin

import (
	"sort"
	"sync"
)

// PluginFactory creates a new instance of a plugin.
//nolint:revive // keep for backwards compatibility
type PluginFactory func() Plugin

var (
	registryMu     sync.RWMutex
	pluginRegistry = map[string]PluginFactory{}
)

// RegisterFactory registers a plugin factory by name.
func RegisterFactory(name string, factory PluginFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	pluginRegistry[name] = factory
}

// GetFactory returns a plugin factory by name.
func GetFactory(name string) (PluginFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := pluginRegistry[name]
	return f, ok
}

// RegisteredPlugins returns the sorted names of all registered plugin factories.
func RegisteredPlugins() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(pluginRegistry))
	for name := range pluginRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unregisterFactory(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(pluginRegistry, name)
}
