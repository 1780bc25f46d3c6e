package modules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/latticehq/lattice/internal/broker"
	"go.uber.org/zap"
)

// JSModule wraps a goja VM whose exports table was snapshotted at load
// time. Calls are serialized; the VM is single-threaded.
type JSModule struct {
	appID   string
	vm      *goja.Runtime
	entries map[string]goja.Callable
	timeout time.Duration
	mu      sync.Mutex
}

// compileJS evaluates a module script and snapshots its exports table.
// Only callables assigned to exports at evaluation time are reachable.
func compileJS(appID, path string, src []byte, timeout time.Duration) (*JSModule, error) {
	prog, err := goja.Compile(path, string(src), true)
	if err != nil {
		return nil, fmt.Errorf("compile module for app %s: %w", appID, err)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(1024)
	hardenGlobals(vm)

	exports := vm.NewObject()
	if err := vm.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("setup exports for app %s: %w", appID, err)
	}

	if _, err := vm.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("evaluate module for app %s: %w", appID, err)
	}

	entries := make(map[string]goja.Callable)
	for _, key := range exports.Keys() {
		if fn, ok := goja.AssertFunction(exports.Get(key)); ok {
			entries[key] = fn
		}
	}

	return &JSModule{
		appID:   appID,
		vm:      vm,
		entries: entries,
		timeout: timeout,
	}, nil
}

// hardenGlobals removes host escape hatches before module evaluation.
func hardenGlobals(vm *goja.Runtime) {
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("globalThis_fetch", goja.Undefined())
	// Timers are no-ops: entry points are synchronous.
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	vm.Set("setTimeout", noop)
	vm.Set("setInterval", noop)
}

// Has implements broker.Module.
func (m *JSModule) Has(name string) bool {
	_, ok := m.entries[name]
	return ok
}

// Call implements broker.Module. The bundle is projected into JS as a
// host object; cancellation and the call timeout interrupt the VM.
func (m *JSModule) Call(ctx context.Context, name string, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
	fn, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("entry point %s not exported by app %s", name, m.appID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-timer.C:
			m.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			m.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()
	defer m.vm.ClearInterrupt()

	args := []goja.Value{m.hostContext(ctx, bundle)}
	if params != nil {
		args = append(args, m.vm.ToValue(params))
	}

	val, err := fn(goja.Undefined(), args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("app %s entry %s: %w", m.appID, name, err)
	}
	return val.Export(), nil
}

// hostContext projects a capability bundle into the VM for one call.
// Rebuilt per call so every host function closes over the live
// context.Context.
func (m *JSModule) hostContext(ctx context.Context, bundle *broker.Context) goja.Value {
	vm := m.vm
	obj := vm.NewObject()
	obj.Set("user_id", bundle.UserID())
	obj.Set("app_id", bundle.AppID())

	if info, err := bundle.User(); err == nil {
		obj.Set("user", map[string]interface{}{
			"id":          info.ID,
			"email":       info.Email,
			"name":        info.Name,
			"timezone":    info.Timezone,
			"preferences": info.Preferences,
		})
	}

	obj.Set("new_id", func() string { return bundle.NewID() })
	obj.Set("now", func() int64 { return bundle.Now().UnixMilli() })
	obj.Set("log", func(msg string) {
		bundle.Log(msg, zap.String("source", "module"))
	})

	storage := vm.NewObject()
	storage.Set("get", func(key string) (interface{}, error) {
		return bundle.Storage().Get(ctx, key)
	})
	storage.Set("set", func(key string, value interface{}) error {
		return bundle.Storage().Set(ctx, key, value)
	})
	storage.Set("remove", func(key string) error {
		return bundle.Storage().Delete(ctx, key)
	})
	storage.Set("list", func() ([]string, error) {
		return bundle.Storage().List(ctx)
	})
	obj.Set("storage", storage)

	apps := vm.NewObject()
	apps.Set("is_installed", func(appID string) (bool, error) {
		return bundle.Apps().IsInstalled(ctx, appID)
	})
	apps.Set("get", func(appID string) goja.Value {
		proxy := bundle.Apps().Get(appID)
		proxyObj := vm.NewObject()
		proxyObj.Set("app_id", proxy.TargetAppID)
		proxyObj.Set("get_output", func(outputID string) (interface{}, error) {
			return proxy.GetOutput(ctx, outputID)
		})
		proxyObj.Set("query", func(method string, params map[string]interface{}) (interface{}, error) {
			return proxy.Query(ctx, method, params)
		})
		return proxyObj
	})
	obj.Set("apps", apps)

	notifications := vm.NewObject()
	notifications.Set("send", func(title, body string) error {
		return bundle.Notifications().Send(ctx, title, body)
	})
	obj.Set("notifications", notifications)

	ai := vm.NewObject()
	ai.Set("complete", func(prompt string) (string, error) {
		return bundle.AI().Complete(ctx, prompt)
	})
	obj.Set("ai", ai)

	return obj
}
