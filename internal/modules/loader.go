package modules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/infrastructure/monitoring"
	"github.com/latticehq/lattice/internal/shared/types"
)

// Loader resolves app modules: native registrations first, then
// JavaScript modules beneath the module directory.
type Loader struct {
	dir     string
	timeout time.Duration
	native  sync.Map // appID -> broker.Module
	cache   sync.Map // appID -> *JSModule
	metrics *monitoring.Metrics
}

// NewLoader creates a module loader rooted at dir.
func NewLoader(dir string, callTimeout time.Duration) *Loader {
	return &Loader{
		dir:     dir,
		timeout: callTimeout,
	}
}

// WithMetrics adds metrics tracking to the loader.
func (l *Loader) WithMetrics(metrics *monitoring.Metrics) *Loader {
	l.metrics = metrics
	return l
}

// RegisterNative installs an in-process module for an app id. Native
// modules shadow any JS module with the same id.
func (l *Loader) RegisterNative(appID string, module broker.Module) {
	l.native.Store(appID, module)
}

// Load implements broker.Loader.
func (l *Loader) Load(ctx context.Context, app *types.App) (broker.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if val, ok := l.native.Load(app.ID); ok {
		l.count("native", "ok")
		return val.(broker.Module), nil
	}

	if app.ModuleRef == "" {
		l.count("js", "no_module")
		return nil, fmt.Errorf("app %s has no code module", app.ID)
	}

	if cached, ok := l.cache.Load(app.ID); ok {
		l.count("js", "cached")
		return cached.(*JSModule), nil
	}

	path, err := l.modulePath(app.ModuleRef)
	if err != nil {
		l.count("js", "bad_ref")
		return nil, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		l.count("js", "read_error")
		return nil, fmt.Errorf("read module for app %s: %w", app.ID, err)
	}

	module, err := compileJS(app.ID, path, src, l.timeout)
	if err != nil {
		l.count("js", "compile_error")
		return nil, err
	}

	l.cache.Store(app.ID, module)
	l.count("js", "ok")
	return module, nil
}

// Invalidate drops a cached JS module so the next load re-reads it.
func (l *Loader) Invalidate(appID string) {
	l.cache.Delete(appID)
}

// modulePath resolves a manifest module ref beneath the loader root,
// rejecting traversal outside it.
func (l *Loader) modulePath(ref string) (string, error) {
	path := filepath.Join(l.dir, filepath.Clean("/"+ref))
	root := filepath.Clean(l.dir)
	if !strings.HasPrefix(path, root+string(filepath.Separator)) && path != root {
		return "", fmt.Errorf("module ref %q escapes module directory", ref)
	}
	return path, nil
}

func (l *Loader) count(runtime, outcome string) {
	if l.metrics != nil {
		l.metrics.ModuleLoads.WithLabelValues(runtime, outcome).Inc()
	}
}
