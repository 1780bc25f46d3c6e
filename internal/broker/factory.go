package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/infrastructure/monitoring"
	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
)

// Module is a loaded app module: a closed table of named entry points.
// Entry points are registered at load time; nothing outside the table
// is callable.
type Module interface {
	Has(name string) bool
	Call(ctx context.Context, name string, bundle *Context, params map[string]interface{}) (interface{}, error)
}

// Loader resolves an app's executable module.
type Loader interface {
	Load(ctx context.Context, app *types.App) (Module, error)
}

// Factory is the sole constructor of capability bundles. Stateless;
// safe for concurrent use across independent call chains.
type Factory struct {
	loader   Loader
	builders Builders
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewFactory creates a context factory.
func NewFactory(loader Loader, builders Builders, logger *logging.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Factory{
		loader:   loader,
		builders: builders,
		logger:   logger,
	}
}

// WithMetrics adds metrics tracking to the factory.
func (f *Factory) WithMetrics(metrics *monitoring.Metrics) *Factory {
	f.metrics = metrics
	return f
}

// Create builds a bundle for (userID, appID), authorized against the
// installation ledger: the app must be installed for the user.
func (f *Factory) Create(ctx context.Context, sess *store.Session, userID, appID string) (*Context, error) {
	return f.create(ctx, sess, userID, appID, false)
}

// CreateSystem builds a bundle without the installation check. Reserved
// for platform-internal callers (bootstrapping, seeding); never routed
// from app-triggered code paths.
func (f *Factory) CreateSystem(ctx context.Context, sess *store.Session, userID, appID string) (*Context, error) {
	return f.create(ctx, sess, userID, appID, true)
}

func (f *Factory) create(ctx context.Context, sess *store.Session, userID, appID string, skipInstallCheck bool) (*Context, error) {
	user, err := sess.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	if !skipInstallCheck {
		installed, err := f.installedFor(ctx, sess, userID, appID)
		if err != nil {
			return nil, err
		}
		if !installed {
			return nil, fmt.Errorf("%w: app %s for user %s", ErrAppNotInstalled, appID, userID)
		}
	}

	info := user.Info()
	bundle := &Context{
		userID:   userID,
		appID:    appID,
		session:  sess,
		userInfo: &info,
		factory:  f,
		logger:   f.logger.WithScope(userID, appID),
		caps:     make(map[string]interface{}),
	}

	if f.metrics != nil {
		f.metrics.ContextsCreated.Inc()
	}
	return bundle, nil
}

// ValidatePermission reports whether the bundle's installation grants
// the exact "{type}:{scope}" key. Pure predicate: no side effects, no
// wildcard or prefix matching. A missing installation yields false.
func (f *Factory) ValidatePermission(ctx context.Context, bundle *Context, permType, scope string) (bool, error) {
	inst, err := bundle.session.Store.GetInstallation(ctx, bundle.userID, bundle.appID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load installation: %w", err)
	}
	return inst.HasPermission(permType, scope), nil
}

// IsInstalled reports whether an installation with status "installed"
// exists for (userID, appID).
func (f *Factory) IsInstalled(ctx context.Context, sess *store.Session, userID, appID string) (bool, error) {
	return f.installedFor(ctx, sess, userID, appID)
}

func (f *Factory) installedFor(ctx context.Context, sess *store.Session, userID, appID string) (bool, error) {
	inst, err := sess.Store.GetInstallation(ctx, userID, appID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load installation for %s/%s: %w", userID, appID, err)
	}
	return inst.Status == types.StatusInstalled, nil
}

// ListInstalled returns installation and descriptor pairs for a user,
// filtered by status ("" means installed). Sorted by app id for stable
// output; callers may re-sort.
func (f *Factory) ListInstalled(ctx context.Context, sess *store.Session, userID string, status types.InstallStatus) ([]types.InstalledApp, error) {
	if status == "" {
		status = types.StatusInstalled
	}
	installations, err := sess.Store.ListInstallations(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list installations for %s: %w", userID, err)
	}

	out := make([]types.InstalledApp, 0, len(installations))
	for _, inst := range installations {
		entry := types.InstalledApp{
			InstallationID:   inst.ID,
			AppID:            inst.AppID,
			InstalledVersion: inst.InstalledVersion,
			Status:           inst.Status,
			InstalledAt:      inst.InstalledAt,
			LastUsedAt:       inst.LastUsedAt,
		}
		if app, err := sess.Store.GetApp(ctx, inst.AppID); err == nil {
			entry.AppName = app.Name
			entry.AppVersion = app.Version
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}
