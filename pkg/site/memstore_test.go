package site

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory SourceStore and ContextStore for tests.
type memStore struct {
	mu          sync.Mutex
	sources     map[string]Source
	targets     map[string][]string
	deps        map[string][]string
	contexts    map[string]map[string]string
	ctxRequests map[string]map[ContextRequest]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		sources:     map[string]Source{},
		targets:     map[string][]string{},
		deps:        map[string][]string{},
		contexts:    map[string]map[string]string{},
		ctxRequests: map[string]map[ContextRequest]struct{}{},
	}
}

func (m *memStore) GetSource(_ context.Context, path string) (*Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[path]
	if !ok {
		return nil, nil
	}
	return &src, nil
}

func (m *memStore) SetSource(_ context.Context, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.Path] = src
	return nil
}

func (m *memStore) RemoveSource(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, path)
	delete(m.targets, path)
	delete(m.deps, path)
	return nil
}

func (m *memStore) ListSources(context.Context) ([]Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Source
	for _, src := range m.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memStore) GetTargets(_ context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.targets[path]...), nil
}

func (m *memStore) SetTargets(_ context.Context, path string, targets []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[path] = append([]string(nil), targets...)
	return nil
}

func (m *memStore) GetDependencies(_ context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deps[path]...), nil
}

func (m *memStore) SetDependencies(_ context.Context, path string, deps []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[path] = append([]string(nil), deps...)
	return nil
}

func (m *memStore) GetDependents(_ context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for src, deps := range m.deps {
		for _, d := range deps {
			if d == path {
				out = append(out, src)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ClearDependencies(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ctxRequests, source)
	return nil
}

func (m *memStore) AddDependency(_ context.Context, source, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctxRequests[source] == nil {
		m.ctxRequests[source] = map[ContextRequest]struct{}{}
	}
	m.ctxRequests[source][ContextRequest{Name: name, Value: value}] = struct{}{}
	return nil
}

func (m *memStore) GetContextDependencies(_ context.Context, source string) ([]ContextRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRequests(m.ctxRequests[source]), nil
}

func (m *memStore) GetContextDependents(_ context.Context, name, value string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for src, reqs := range m.ctxRequests {
		if _, ok := reqs[ContextRequest{Name: name, Value: value}]; ok {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) RemoveContext(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, source)
	return nil
}

func (m *memStore) SetContext(_ context.Context, source, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contexts[source] == nil {
		m.contexts[source] = map[string]string{}
	}
	m.contexts[source][name] = value
	return nil
}

func (m *memStore) GetContexts(_ context.Context, name, value string) ([]Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Context
	for src, vars := range m.contexts {
		if v, ok := vars[name]; ok && v == value {
			out = append(out, Context{Source: src, Name: name, Value: value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (m *memStore) GetSourceContexts(_ context.Context, source string) ([]Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Context
	for name, value := range m.contexts[source] {
		out = append(out, Context{Source: source, Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
