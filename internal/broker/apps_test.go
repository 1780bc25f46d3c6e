package broker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/caps"
	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/modules"
	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
)

// callerBundle mints the dashboard's bundle, the usual requesting side
// in these tests.
func callerBundle(t *testing.T, factory *broker.Factory, st store.Store) *broker.Context {
	t.Helper()
	bundle, err := factory.Create(context.Background(), store.NewSession(st), testUser, dashboard)
	require.NoError(t, err)
	return bundle
}

func TestProxyGetOutputPublic(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	result, err := bundle.Apps().Get(habitTracker).GetOutput(context.Background(), "daily_streaks")
	require.NoError(t, err)

	out, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 7, out["streak"])
	// The entry point ran under the callee's own identity, not the
	// caller's.
	assert.Equal(t, habitTracker, out["app_id"])
}

func TestProxyGetOutputNotFound(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	_, err := bundle.Apps().Get(habitTracker).GetOutput(context.Background(), "no_such_output")
	assert.ErrorIs(t, err, broker.ErrOutputNotFound)
}

func TestProxyGetOutputNotImplemented(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	// "unbuilt" is registered in the manifest but the module exposes no
	// get_output_unbuilt entry: a distinct failure from a missing
	// registration.
	_, err := bundle.Apps().Get(habitTracker).GetOutput(context.Background(), "unbuilt")
	assert.ErrorIs(t, err, broker.ErrOutputNotImplemented)
	assert.NotErrorIs(t, err, broker.ErrOutputNotFound)
}

func TestProxyGetOutputPermission(t *testing.T) {
	t.Run("denied without grant", func(t *testing.T) {
		st := seedStore()
		factory := newFactory(t, st)
		bundle := callerBundle(t, factory, st)

		_, err := bundle.Apps().Get(habitTracker).GetOutput(context.Background(), "private_stats")
		assert.ErrorIs(t, err, broker.ErrPermissionDenied)
	})

	t.Run("granted with exact scope", func(t *testing.T) {
		st := seedStore()
		grantPermission(t, st, testUser, dashboard, "output_read", "habit-tracker.private_stats")
		factory := newFactory(t, st)
		bundle := callerBundle(t, factory, st)

		result, err := bundle.Apps().Get(habitTracker).GetOutput(context.Background(), "private_stats")
		require.NoError(t, err)
		assert.Equal(t, "completion rate 92%", result)
	})

	t.Run("grant on another output does not carry over", func(t *testing.T) {
		st := seedStore()
		grantPermission(t, st, testUser, dashboard, "output_read", "habit-tracker.daily_streaks")
		factory := newFactory(t, st)
		bundle := callerBundle(t, factory, st)

		_, err := bundle.Apps().Get(habitTracker).GetOutput(context.Background(), "private_stats")
		assert.ErrorIs(t, err, broker.ErrPermissionDenied)
	})
}

func TestProxyQuery(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)
	proxy := bundle.Apps().Get(habitTracker)

	t.Run("declared and registered", func(t *testing.T) {
		result, err := proxy.Query(context.Background(), "list_habits", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"water", "run"}, result)
	})

	t.Run("undeclared method is unreachable even if registered", func(t *testing.T) {
		// get_output_daily_streaks exists in the module's table but is
		// not in the manifest's method list.
		_, err := proxy.Query(context.Background(), "get_output_daily_streaks", nil)
		assert.ErrorIs(t, err, broker.ErrMethodNotFound)
	})

	t.Run("declared but not registered", func(t *testing.T) {
		_, err := proxy.Query(context.Background(), "phantom_method", nil)
		assert.ErrorIs(t, err, broker.ErrMethodNotFound)
	})
}

func TestProxyTargetNotInstalled(t *testing.T) {
	st := seedStore()

	// Give notes a real output and module so everything resolves except
	// the ledger row: the callee bundle cannot be minted.
	app, err := st.GetApp(context.Background(), notesApp)
	require.NoError(t, err)
	app.Manifest.Outputs = []types.Output{{OutputID: "recent", AccessLevel: types.AccessPublic}}
	require.NoError(t, st.SaveApp(context.Background(), app))

	loader := newLoader(t)
	notes := modules.NewNativeModule()
	mustRegister(t, notes, "get_output_recent", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		return "latest note", nil
	})
	loader.RegisterNative(notesApp, notes)
	factory := broker.NewFactory(loader, broker.Builders{Storage: caps.NewStorage}, logging.NewNop())

	bundle := callerBundle(t, factory, st)
	_, err = bundle.Apps().Get(notesApp).GetOutput(context.Background(), "recent")
	assert.ErrorIs(t, err, broker.ErrAppNotInstalled)
}

func TestProxyRevokedBetweenGetAndCall(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	proxy := bundle.Apps().Get(habitTracker)

	// Works while installed.
	_, err := proxy.GetOutput(context.Background(), "daily_streaks")
	require.NoError(t, err)

	// Uninstall, then reuse the held proxy: authorization happens per
	// invocation, so the stale handle buys nothing.
	st.SetInstallationStatus(testUser, habitTracker, types.StatusUninstalled)
	_, err = proxy.GetOutput(context.Background(), "daily_streaks")
	assert.ErrorIs(t, err, broker.ErrAppNotInstalled)
}

func TestProxyModuleUnavailable(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	t.Run("unknown app", func(t *testing.T) {
		_, err := bundle.Apps().Get("ghost-app").Query(context.Background(), "anything", nil)
		assert.ErrorIs(t, err, broker.ErrModuleUnavailable)
	})

	t.Run("app without code module", func(t *testing.T) {
		st.PutInstallation(&types.Installation{
			ID:     "ins_broken",
			UserID: testUser,
			AppID:  brokenApp,
			Status: types.StatusInstalled,
		})
		app, err := st.GetApp(context.Background(), brokenApp)
		require.NoError(t, err)
		app.Manifest.Methods = []string{"anything"}
		require.NoError(t, st.SaveApp(context.Background(), app))

		_, err = bundle.Apps().Get(brokenApp).Query(context.Background(), "anything", nil)
		assert.ErrorIs(t, err, broker.ErrModuleUnavailable)
	})
}

func TestProxyCalleeErrorWrapping(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)
	proxy := bundle.Apps().Get(habitTracker)

	t.Run("callee error", func(t *testing.T) {
		_, err := proxy.Query(context.Background(), "fail_loudly", nil)
		require.Error(t, err)
		ce, ok := broker.AsCallee(err)
		require.True(t, ok)
		assert.Equal(t, habitTracker, ce.AppID)
		assert.Contains(t, ce.Cause.Error(), "habit db corrupted")
	})

	t.Run("callee panic", func(t *testing.T) {
		_, err := proxy.Query(context.Background(), "panic_hard", nil)
		require.Error(t, err)
		ce, ok := broker.AsCallee(err)
		require.True(t, ok)
		assert.Equal(t, habitTracker, ce.AppID)
		assert.Contains(t, ce.Cause.Error(), "panic")
	})
}

func TestProxyContextCancellation(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancellation propagates as-is, not as a callee failure.
	_, err := bundle.Apps().Get(habitTracker).Query(ctx, "list_habits", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := broker.AsCallee(err)
	assert.False(t, ok)
}

func TestQueryAgentReserved(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	_, err := bundle.Apps().Get(habitTracker).QueryAgent(context.Background(), "how am I doing?")
	assert.ErrorIs(t, err, broker.ErrNotImplemented)
}

func TestAppsIsInstalled(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)
	ctx := context.Background()

	installed, err := bundle.Apps().IsInstalled(ctx, habitTracker)
	require.NoError(t, err)
	assert.True(t, installed)

	installed, err = bundle.Apps().IsInstalled(ctx, notesApp)
	require.NoError(t, err)
	assert.False(t, installed)

	// Unknown app ids are simply "not installed".
	installed, err = bundle.Apps().IsInstalled(ctx, "ghost-app")
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestAppsDependencies(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)
	ctx := context.Background()

	t.Run("current app by default", func(t *testing.T) {
		deps, err := bundle.Apps().Dependencies(ctx, "")
		require.NoError(t, err)
		require.Len(t, deps, 2)
		assert.Equal(t, habitTracker, deps[0].ID)
		assert.True(t, deps[0].Required)
		assert.Equal(t, notesApp, deps[1].ID)
		assert.False(t, deps[1].Required)
	})

	t.Run("no dependencies", func(t *testing.T) {
		deps, err := bundle.Apps().Dependencies(ctx, habitTracker)
		require.NoError(t, err)
		assert.Empty(t, deps)
	})

	t.Run("unknown app", func(t *testing.T) {
		_, err := bundle.Apps().Dependencies(ctx, "ghost-app")
		assert.ErrorIs(t, err, broker.ErrModuleUnavailable)
	})
}

func TestAppsCheckDependencies(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	status, err := bundle.Apps().CheckDependencies(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		habitTracker: true,
		notesApp:     false,
	}, status)
}

func TestCalleeStorageScope(t *testing.T) {
	st := seedStore()
	factory := newFactory(t, st)
	bundle := callerBundle(t, factory, st)

	// A callee entry point writing through its own storage capability
	// lands records in the callee's namespace, not the caller's.
	_, err := bundle.Apps().Get(habitTracker).Query(context.Background(), "record_checkin", nil)
	require.NoError(t, err)

	val, err := st.GetRecord(context.Background(), testUser, habitTracker, "last_checkin")
	require.NoError(t, err)
	assert.Equal(t, "today", val)

	_, err = st.GetRecord(context.Background(), testUser, dashboard, "last_checkin")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The caller's own writes stay in its namespace.
	require.NoError(t, bundle.Storage().Set(context.Background(), "layout", "grid"))
	val, err = st.GetRecord(context.Background(), testUser, dashboard, "layout")
	require.NoError(t, err)
	assert.Equal(t, "grid", val)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{broker.ErrUserNotFound, "user_not_found"},
		{broker.ErrAppNotInstalled, "app_not_installed"},
		{broker.ErrOutputNotFound, "output_not_found"},
		{broker.ErrOutputNotImplemented, "output_not_implemented"},
		{broker.ErrMethodNotFound, "method_not_found"},
		{broker.ErrModuleUnavailable, "module_unavailable"},
		{broker.ErrPermissionDenied, "permission_denied"},
		{broker.ErrNotImplemented, "not_implemented"},
		{&broker.CalleeError{AppID: "x", Cause: assert.AnError}, "callee_failure"},
		{assert.AnError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, broker.ErrorKind(tt.err))
		})
	}
}
