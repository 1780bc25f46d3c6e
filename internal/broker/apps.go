package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
	"go.uber.org/zap"
)

// OutputEntryPrefix is the fixed naming convention for output entry
// points: output "daily_streaks" resolves to "get_output_daily_streaks".
const OutputEntryPrefix = "get_output_"

// PermOutputRead is the permission type protected outputs are checked
// against; the scope is "{target_app_id}.{output_id}".
const PermOutputRead = "output_read"

// Apps lets the current app address other apps on behalf of the same
// user. Reachable only through a bundle.
type Apps struct {
	bundle  *Context
	factory *Factory
}

// IsInstalled reports whether appID is installed for the current
// bundle's user.
func (a *Apps) IsInstalled(ctx context.Context, appID string) (bool, error) {
	return a.factory.IsInstalled(ctx, a.bundle.session, a.bundle.userID, appID)
}

// Get returns a proxy addressing appID. Obtaining a proxy is free and
// side-effect-free; authorization happens on every invocation, so a
// held proxy cannot outlive a revoked installation or permission.
func (a *Apps) Get(appID string) *Proxy {
	return &Proxy{
		TargetAppID:     appID,
		UserID:          a.bundle.userID,
		RequestingAppID: a.bundle.appID,
		apps:            a,
	}
}

// Dependencies returns the manifest dependencies of appID ("" means the
// current app): required entries first in manifest order, then optional
// entries in manifest order.
func (a *Apps) Dependencies(ctx context.Context, appID string) ([]types.Dependency, error) {
	if appID == "" {
		appID = a.bundle.appID
	}
	app, err := a.bundle.session.Store.GetApp(ctx, appID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: app %s", ErrModuleUnavailable, appID)
		}
		return nil, fmt.Errorf("load app %s: %w", appID, err)
	}
	return app.Manifest.Dependencies.Flatten(), nil
}

// CheckDependencies returns dep_app_id -> installed for every
// dependency of appID, checked against the current bundle's user. One
// sequential existence check per dependency.
func (a *Apps) CheckDependencies(ctx context.Context, appID string) (map[string]bool, error) {
	deps, err := a.Dependencies(ctx, appID)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(deps))
	for _, dep := range deps {
		installed, err := a.IsInstalled(ctx, dep.ID)
		if err != nil {
			return nil, err
		}
		result[dep.ID] = installed
	}
	return result, nil
}

// Proxy addresses one target app for one user on behalf of a requesting
// app. Pure data; holds no authorization state.
type Proxy struct {
	TargetAppID     string
	UserID          string
	RequestingAppID string

	apps *Apps
}

// GetOutput invokes the target app's registered output and returns its
// result unchanged. The callee runs with a fresh bundle scoped to
// (user, target app); the caller's bundle never crosses over.
func (p *Proxy) GetOutput(ctx context.Context, outputID string) (interface{}, error) {
	bundle := p.apps.bundle
	sess := bundle.session

	output, err := sess.Store.GetOutput(ctx, p.TargetAppID, outputID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.countFailure("get_output", ErrOutputNotFound)
			return nil, fmt.Errorf("%w: %s/%s", ErrOutputNotFound, p.TargetAppID, outputID)
		}
		return nil, fmt.Errorf("load output %s/%s: %w", p.TargetAppID, outputID, err)
	}

	// Protected outputs short-circuit before any module is loaded.
	if output.AccessLevel == types.AccessRequiresPermission {
		scope := fmt.Sprintf("%s.%s", p.TargetAppID, outputID)
		granted, err := p.apps.factory.ValidatePermission(ctx, bundle, PermOutputRead, scope)
		if err != nil {
			return nil, err
		}
		if !granted {
			p.countFailure("get_output", ErrPermissionDenied)
			return nil, fmt.Errorf("%w: app %s lacks %s:%s", ErrPermissionDenied, p.RequestingAppID, PermOutputRead, scope)
		}
	}

	entry := OutputEntryPrefix + outputID
	return p.invoke(ctx, "get_output", entry, nil, ErrOutputNotImplemented)
}

// Query invokes a method the target app's manifest declares callable.
// Resolution happens strictly against the module's registered entry
// table, never against arbitrary attributes.
func (p *Proxy) Query(ctx context.Context, method string, params map[string]interface{}) (interface{}, error) {
	return p.invoke(ctx, "query", method, params, ErrMethodNotFound)
}

// QueryAgent is reserved for agent-to-agent dialogue. It fails until a
// conversation-bridging design exists.
func (p *Proxy) QueryAgent(ctx context.Context, prompt string) (interface{}, error) {
	return nil, fmt.Errorf("%w: query_agent", ErrNotImplemented)
}

// invoke runs the shared load/resolve/mint/call sequence. missingErr is
// the failure kind when the entry point is absent from the module's
// table (output vs method shapes are reported distinctly).
func (p *Proxy) invoke(ctx context.Context, kind, entry string, params map[string]interface{}, missingErr error) (interface{}, error) {
	bundle := p.apps.bundle
	sess := bundle.session
	factory := p.apps.factory

	app, err := sess.Store.GetApp(ctx, p.TargetAppID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.countFailure(kind, ErrModuleUnavailable)
			return nil, fmt.Errorf("%w: app %s", ErrModuleUnavailable, p.TargetAppID)
		}
		return nil, fmt.Errorf("load app %s: %w", p.TargetAppID, err)
	}

	// Query dispatch is restricted to the manifest's declared method
	// allow-list; output entry points are allow-listed by registration.
	if kind == "query" && !app.Manifest.DeclaresMethod(entry) {
		p.countFailure(kind, missingErr)
		return nil, fmt.Errorf("%w: %s.%s", missingErr, p.TargetAppID, entry)
	}

	module, err := factory.loader.Load(ctx, app)
	if err != nil {
		p.countFailure(kind, ErrModuleUnavailable)
		bundle.logger.Warn("module load failed",
			zap.String("target_app_id", p.TargetAppID), zap.Error(err))
		return nil, fmt.Errorf("%w: app %s: %v", ErrModuleUnavailable, p.TargetAppID, err)
	}

	if !module.Has(entry) {
		p.countFailure(kind, missingErr)
		return nil, fmt.Errorf("%w: %s.%s", missingErr, p.TargetAppID, entry)
	}

	// Fresh bundle for the callee, same session, full install check.
	calleeBundle, err := factory.Create(ctx, sess, p.UserID, p.TargetAppID)
	if err != nil {
		p.countFailure(kind, err)
		return nil, err
	}

	result, err := callEntry(ctx, module, entry, calleeBundle, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		p.countFailure(kind, err)
		return nil, &CalleeError{AppID: p.TargetAppID, Cause: err}
	}

	p.countSuccess(kind)
	return result, nil
}

// callEntry invokes a module entry point, converting a callee panic
// into an error so it propagates as a CalleeError instead of tearing
// down the caller's action.
func callEntry(ctx context.Context, module Module, entry string, bundle *Context, params map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry point panic: %v", r)
		}
	}()
	return module.Call(ctx, entry, bundle, params)
}

func (p *Proxy) countSuccess(kind string) {
	if m := p.apps.factory.metrics; m != nil {
		m.ProxyCalls.WithLabelValues(kind, "ok").Inc()
	}
}

func (p *Proxy) countFailure(kind string, err error) {
	if m := p.apps.factory.metrics; m != nil {
		m.ProxyCalls.WithLabelValues(kind, ErrorKind(err)).Inc()
	}
}

// ErrorKind maps a broker failure to its taxonomy label, for metrics
// and HTTP status mapping.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrAppNotInstalled):
		return "app_not_installed"
	case errors.Is(err, ErrOutputNotFound):
		return "output_not_found"
	case errors.Is(err, ErrOutputNotImplemented):
		return "output_not_implemented"
	case errors.Is(err, ErrMethodNotFound):
		return "method_not_found"
	case errors.Is(err, ErrModuleUnavailable):
		return "module_unavailable"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNotImplemented):
		return "not_implemented"
	default:
		if _, ok := AsCallee(err); ok {
			return "callee_failure"
		}
		return "internal"
	}
}
