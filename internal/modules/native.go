package modules

import (
	"context"
	"fmt"

	"github.com/latticehq/lattice/internal/broker"
)

// HandlerFunc is a native entry point. The bundle it receives is scoped
// to the app that owns the module, never to the caller.
type HandlerFunc func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error)

// NativeModule is a closed table of Go entry points.
type NativeModule struct {
	entries map[string]HandlerFunc
}

// NewNativeModule creates an empty native module.
func NewNativeModule() *NativeModule {
	return &NativeModule{entries: make(map[string]HandlerFunc)}
}

// Register adds an entry point. Registration happens at startup, before
// the module is reachable; the table is read-only afterwards.
func (m *NativeModule) Register(name string, fn HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("entry point name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("entry point %s: handler cannot be nil", name)
	}
	if _, exists := m.entries[name]; exists {
		return fmt.Errorf("entry point %s already registered", name)
	}
	m.entries[name] = fn
	return nil
}

// Has implements broker.Module.
func (m *NativeModule) Has(name string) bool {
	_, ok := m.entries[name]
	return ok
}

// Call implements broker.Module.
func (m *NativeModule) Call(ctx context.Context, name string, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
	fn, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry point %s not registered", name)
	}
	return fn(ctx, bundle, params)
}
