package site

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Processor bound to an App.
type Factory func(app *App) (Processor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a processor factory available under name. Call it before
// NewApp, typically from main or an init function. It panics on duplicates.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("site: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("site: Register called twice for processor %q", name))
	}
	registry[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Registered returns the sorted names of all registered processors.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("copy", func(app *App) (Processor, error) {
		return NewCopyProcessor(app), nil
	})
}
