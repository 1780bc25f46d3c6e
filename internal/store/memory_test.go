package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/shared/types"
)

func TestMemoryUsers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetUser(ctx, "usr_1")
	assert.ErrorIs(t, err, ErrNotFound)

	m.PutUser(&types.User{ID: "usr_1", Name: "Ada"})
	u, err := m.GetUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)

	// Reads are copies.
	u.Name = "mutated"
	again, err := m.GetUser(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
}

func TestMemoryInstallations(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.PutInstallation(&types.Installation{
		ID:           "ins_1",
		UserID:       "usr_1",
		AppID:        "tracker",
		Status:       types.StatusInstalled,
		GrantedPerms: []string{"output_read:tracker.stats"},
		InstalledAt:  time.Now(),
	})
	m.PutInstallation(&types.Installation{
		ID:     "ins_2",
		UserID: "usr_1",
		AppID:  "notes",
		Status: types.StatusPending,
	})
	m.PutInstallation(&types.Installation{
		ID:     "ins_3",
		UserID: "usr_2",
		AppID:  "tracker",
		Status: types.StatusInstalled,
	})

	inst, err := m.GetInstallation(ctx, "usr_1", "tracker")
	require.NoError(t, err)
	assert.Equal(t, "ins_1", inst.ID)

	// Grant slices are copied both ways.
	inst.GrantedPerms[0] = "mutated"
	again, err := m.GetInstallation(ctx, "usr_1", "tracker")
	require.NoError(t, err)
	assert.Equal(t, "output_read:tracker.stats", again.GrantedPerms[0])

	_, err = m.GetInstallation(ctx, "usr_1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	installed, err := m.ListInstallations(ctx, "usr_1", types.StatusInstalled)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "tracker", installed[0].AppID)

	all, err := m.ListInstallations(ctx, "usr_1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.True(t, m.SetInstallationStatus("usr_1", "notes", types.StatusInstalled))
	assert.False(t, m.SetInstallationStatus("usr_1", "ghost", types.StatusInstalled))

	installed, err = m.ListInstallations(ctx, "usr_1", types.StatusInstalled)
	require.NoError(t, err)
	assert.Len(t, installed, 2)
}

func TestMemoryApps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	app := &types.App{
		ID:   "tracker",
		Name: "Tracker",
		Manifest: types.Manifest{
			Outputs: []types.Output{
				{OutputID: "stats", AccessLevel: types.AccessPublic},
			},
		},
	}
	require.NoError(t, m.SaveApp(ctx, app))

	got, err := m.GetApp(ctx, "tracker")
	require.NoError(t, err)
	assert.Equal(t, "Tracker", got.Name)

	out, err := m.GetOutput(ctx, "tracker", "stats")
	require.NoError(t, err)
	assert.Equal(t, "stats", out.OutputID)
	assert.Equal(t, "tracker", out.AppID)

	_, err = m.GetOutput(ctx, "tracker", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.GetOutput(ctx, "ghost", "stats")
	assert.ErrorIs(t, err, ErrNotFound)

	apps, err := m.ListApps(ctx)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestMemoryRecordsScoping(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetRecord(ctx, "usr_1", "tracker", "streak", 7))
	require.NoError(t, m.SetRecord(ctx, "usr_1", "notes", "streak", 99))
	require.NoError(t, m.SetRecord(ctx, "usr_2", "tracker", "streak", 1))
	require.NoError(t, m.SetRecord(ctx, "usr_1", "tracker", "goal", "daily"))

	val, err := m.GetRecord(ctx, "usr_1", "tracker", "streak")
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	keys, err := m.ListRecordKeys(ctx, "usr_1", "tracker")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"streak", "goal"}, keys)

	require.NoError(t, m.DeleteRecord(ctx, "usr_1", "tracker", "streak"))
	_, err = m.GetRecord(ctx, "usr_1", "tracker", "streak")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is fine.
	require.NoError(t, m.DeleteRecord(ctx, "usr_1", "tracker", "streak"))

	// Clearing one scope leaves the others alone.
	require.NoError(t, m.ClearRecords(ctx, "usr_1", "tracker"))
	keys, err = m.ListRecordKeys(ctx, "usr_1", "tracker")
	require.NoError(t, err)
	assert.Empty(t, keys)

	val, err = m.GetRecord(ctx, "usr_1", "notes", "streak")
	require.NoError(t, err)
	assert.Equal(t, 99, val)
	val, err = m.GetRecord(ctx, "usr_2", "tracker", "streak")
	require.NoError(t, err)
	assert.Equal(t, 1, val)
}

func TestMemoryContextCancellation(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.GetUser(ctx, "usr_1")
	assert.ErrorIs(t, err, context.Canceled)
	err = m.SetRecord(ctx, "u", "a", "k", "v")
	assert.ErrorIs(t, err, context.Canceled)
}
