package caps_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/caps"
	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/ws"
)

// newBundle mints a bundle for usr_1/tracker over a fresh memory store.
func newBundle(t *testing.T, builders broker.Builders) *broker.Context {
	t.Helper()

	st := store.NewMemory()
	st.PutUser(&types.User{ID: "usr_1", Name: "Ada"})
	st.PutInstallation(&types.Installation{
		ID: "ins_1", UserID: "usr_1", AppID: "tracker", Status: types.StatusInstalled,
	})

	factory := broker.NewFactory(nil, builders, logging.NewNop())
	bundle, err := factory.Create(context.Background(), store.NewSession(st), "usr_1", "tracker")
	require.NoError(t, err)
	return bundle
}

func TestFilesSandbox(t *testing.T) {
	root := t.TempDir()
	bundle := newBundle(t, broker.Builders{Files: caps.NewFilesBuilder(root)})
	files := bundle.Files()
	ctx := context.Background()

	// Empty scope.
	names, err := files.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, files.Write(ctx, "journal.txt", []byte("day one")))
	require.NoError(t, files.Write(ctx, "data.json", []byte(`{"streak":7}`)))

	data, err := files.Read(ctx, "journal.txt")
	require.NoError(t, err)
	assert.Equal(t, "day one", string(data))

	names, err = files.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"journal.txt", "data.json"}, names)

	require.NoError(t, files.Delete(ctx, "data.json"))
	_, err = files.Read(ctx, "data.json")
	assert.Error(t, err)
}

func TestFilesRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	bundle := newBundle(t, broker.Builders{Files: caps.NewFilesBuilder(root)})
	files := bundle.Files()
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", `a\b`, ".."} {
		_, err := files.Read(ctx, name)
		assert.Error(t, err, "name %q", name)
		assert.Error(t, files.Write(ctx, name, []byte("x")), "name %q", name)
	}
}

func TestFilesContentType(t *testing.T) {
	root := t.TempDir()
	bundle := newBundle(t, broker.Builders{Files: caps.NewFilesBuilder(root)})
	files := bundle.Files()
	ctx := context.Background()

	require.NoError(t, files.Write(ctx, "notes.txt", []byte("plain words")))
	ct, err := files.ContentType(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, ct, "text/plain")
}

func TestFilesExport(t *testing.T) {
	root := t.TempDir()
	bundle := newBundle(t, broker.Builders{Files: caps.NewFilesBuilder(root)})
	files := bundle.Files()
	ctx := context.Background()

	require.NoError(t, files.Write(ctx, "a.txt", []byte("alpha")))
	require.NoError(t, files.Write(ctx, "b.txt", []byte("beta")))

	archive, err := files.Export(ctx)
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}
	assert.Equal(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"}, contents)
}

func TestNotificationsSend(t *testing.T) {
	hub := ws.NewHub(nil)
	defer hub.Close()

	bundle := newBundle(t, broker.Builders{Notifications: caps.NewNotificationsBuilder(hub)})

	ch := hub.Subscribe("usr_1")
	defer hub.Unsubscribe("usr_1", ch)

	require.NoError(t, bundle.Notifications().Send(context.Background(), "Streak!", "7 days running"))

	select {
	case note := <-ch:
		assert.Equal(t, "tracker", note.AppID, "tagged with the emitting app")
		assert.Equal(t, "Streak!", note.Title)
		assert.Equal(t, "7 days running", note.Body)
		assert.NotEmpty(t, note.ID)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestScheduleAt(t *testing.T) {
	ran := make(chan string, 1)
	sched := caps.NewScheduler(func(ctx context.Context, userID, appID, method string, params map[string]interface{}) error {
		ran <- userID + "/" + appID + "/" + method
		return nil
	}, nil)
	defer sched.Close()

	bundle := newBundle(t, broker.Builders{Schedule: caps.NewScheduleBuilder(sched)})

	jobID, err := bundle.Schedule().At(time.Now().Add(10*time.Millisecond), "remind", nil)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	select {
	case got := <-ran:
		assert.Equal(t, "usr_1/tracker/remind", got)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job never ran")
	}

	// The job finished; cancelling it now reports unknown.
	assert.Eventually(t, func() bool {
		return !bundle.Schedule().Cancel(jobID)
	}, time.Second, 10*time.Millisecond)
}

func TestScheduleEveryAndCancel(t *testing.T) {
	ran := make(chan struct{}, 16)
	sched := caps.NewScheduler(func(ctx context.Context, userID, appID, method string, params map[string]interface{}) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, nil)
	defer sched.Close()

	bundle := newBundle(t, broker.Builders{Schedule: caps.NewScheduleBuilder(sched)})

	jobID, err := bundle.Schedule().Every(10*time.Millisecond, "tick", nil)
	require.NoError(t, err)

	// At least two ticks.
	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("recurring job stalled")
		}
	}

	assert.True(t, bundle.Schedule().Cancel(jobID))
	assert.False(t, bundle.Schedule().Cancel(jobID), "cancel is idempotent-false")
}

func TestSchedulerClosedRejectsJobs(t *testing.T) {
	sched := caps.NewScheduler(func(ctx context.Context, userID, appID, method string, params map[string]interface{}) error {
		return nil
	}, nil)

	bundle := newBundle(t, broker.Builders{Schedule: caps.NewScheduleBuilder(sched)})
	sched.Close()

	_, err := bundle.Schedule().At(time.Now(), "late", nil)
	assert.Error(t, err)
	_, err = bundle.Schedule().Every(time.Second, "late", nil)
	assert.Error(t, err)
}
