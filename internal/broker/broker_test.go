package broker_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/caps"
	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/modules"
	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
)

const (
	testUser     = "usr_1"
	habitTracker = "habit-tracker"
	dashboard    = "dashboard"
	notesApp     = "notes" // exists but not installed for testUser
	brokenApp    = "broken-app"
)

// seedStore builds a populated in-memory store: one user, a habit
// tracker exposing outputs and methods, a dashboard that consumes them,
// and a notes app that is not installed.
func seedStore() *store.Memory {
	st := store.NewMemory()

	st.PutUser(&types.User{
		ID:       testUser,
		Email:    "ada@example.com",
		Name:     "Ada",
		Timezone: "Europe/London",
	})

	st.SaveApp(context.Background(), &types.App{
		ID:      habitTracker,
		Name:    "Habit Tracker",
		Version: "1.2.0",
		Manifest: types.Manifest{
			Outputs: []types.Output{
				{OutputID: "daily_streaks", Name: "Daily Streaks", AccessLevel: types.AccessPublic},
				{OutputID: "private_stats", Name: "Private Stats", AccessLevel: types.AccessRequiresPermission},
				{OutputID: "unbuilt", Name: "Unbuilt", AccessLevel: types.AccessPublic},
			},
			Methods: []string{"list_habits", "record_checkin", "fail_loudly", "panic_hard", "phantom_method"},
		},
	})

	st.SaveApp(context.Background(), &types.App{
		ID:      dashboard,
		Name:    "Dashboard",
		Version: "0.9.1",
		Manifest: types.Manifest{
			Dependencies: types.Dependencies{
				RequiredApps: []types.AppRef{{ID: habitTracker, Version: "1.x"}},
				OptionalApps: []types.AppRef{{ID: notesApp, Version: "2.x"}},
			},
		},
	})

	st.SaveApp(context.Background(), &types.App{
		ID:      notesApp,
		Name:    "Notes",
		Version: "2.0.0",
	})

	st.SaveApp(context.Background(), &types.App{
		ID:      brokenApp,
		Name:    "Broken",
		Version: "0.0.1",
		// No native registration and no module ref: loading always fails.
	})

	now := time.Now()
	st.PutInstallation(&types.Installation{
		ID:               "ins_habit",
		UserID:           testUser,
		AppID:            habitTracker,
		Status:           types.StatusInstalled,
		InstalledVersion: "1.2.0",
		InstalledAt:      now,
	})
	st.PutInstallation(&types.Installation{
		ID:               "ins_dash",
		UserID:           testUser,
		AppID:            dashboard,
		Status:           types.StatusInstalled,
		InstalledVersion: "0.9.1",
		InstalledAt:      now,
	})

	return st
}

// newLoader registers the habit tracker's native module.
func newLoader(t *testing.T) *modules.Loader {
	t.Helper()
	loader := modules.NewLoader(t.TempDir(), time.Second)

	habit := modules.NewNativeModule()
	mustRegister(t, habit, "get_output_daily_streaks", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"app_id": bundle.AppID(),
			"streak": 7,
		}, nil
	})
	mustRegister(t, habit, "get_output_private_stats", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		return "completion rate 92%", nil
	})
	mustRegister(t, habit, "list_habits", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		return []string{"water", "run"}, nil
	})
	mustRegister(t, habit, "record_checkin", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		if err := bundle.Storage().Set(ctx, "last_checkin", "today"); err != nil {
			return nil, err
		}
		return "ok", nil
	})
	mustRegister(t, habit, "fail_loudly", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("habit db corrupted")
	})
	mustRegister(t, habit, "panic_hard", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		panic("nil deref in habit code")
	})
	loader.RegisterNative(habitTracker, habit)

	loader.RegisterNative(dashboard, modules.NewNativeModule())
	return loader
}

func mustRegister(t *testing.T, m *modules.NativeModule, name string, fn modules.HandlerFunc) {
	t.Helper()
	if err := m.Register(name, fn); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}

func newFactory(t *testing.T, st store.Store) *broker.Factory {
	t.Helper()
	return broker.NewFactory(newLoader(t), broker.Builders{
		Storage: caps.NewStorage,
	}, logging.NewNop())
}

// grantPermission appends a "{type}:{scope}" key to an installation's
// grant set.
func grantPermission(t *testing.T, st *store.Memory, userID, appID, permType, scope string) {
	t.Helper()
	inst, err := st.GetInstallation(context.Background(), userID, appID)
	if err != nil {
		t.Fatalf("installation %s/%s: %v", userID, appID, err)
	}
	inst.GrantedPerms = append(inst.GrantedPerms, types.PermissionKey(permType, scope))
	st.PutInstallation(inst)
}
