package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bookshelf/internal/checkpoint"
	"github.com/roach88/bookshelf/internal/delivery"
	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

// latestSnapshot reads the newest checkpoint of the workspace database.
func latestSnapshot(t *testing.T, w *workspace) *engine.Snapshot {
	t.Helper()
	st, err := store.Open(w.db)
	require.NoError(t, err)
	defer st.Close()

	cp, found, err := st.LatestCheckpoint(context.Background())
	require.NoError(t, err)
	require.True(t, found, "expected a checkpoint")

	snap, err := checkpoint.Decode(cp.State)
	require.NoError(t, err)
	return snap
}

func TestRunOnce_AppliesCatalogAndCheckpoints(t *testing.T) {
	w := newWorkspace(t)

	out, err := execute(t, context.Background(), w.args("run", "--once", "--catalog", w.catalog)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 0 due item(s)")

	snap := latestSnapshot(t, w)
	assert.Len(t, snap.Books, 2)
	assert.Len(t, snap.Users, 2)
	assert.Equal(t, engine.UserApproved, snap.Users[1].Status)
	assert.Equal(t, engine.UserPending, snap.Users[2].Status)
}

func TestRunOnce_DeliversQueuedSend(t *testing.T) {
	w := newWorkspace(t)
	w.seed(t)
	w.send(t, "1")

	out, err := execute(t, context.Background(), w.args("run", "--once")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 1 due item(s): 1 completed")

	// Nothing is due any more.
	out, err = execute(t, context.Background(), w.args("run", "--once")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Processed 0 due item(s)")

	out, err = execute(t, context.Background(), w.args("events", "--user", "1", "--queue", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "QUEUED")
	assert.Contains(t, out, "PROCESSING")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "dry-run-")
}

func TestRunOnce_MissingBookFileFails(t *testing.T) {
	w := newWorkspace(t)
	w.seed(t)
	w.send(t, "2")

	out, err := execute(t, context.Background(), w.args("run", "--once", "--format", "json")...)
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   delivery.CycleStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, delivery.CycleStats{Due: 1, Failed: 1}, resp.Data)

	out, err = execute(t, context.Background(), w.args("history", "--user", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "last error: "+delivery.ReasonFileNotFound)
	assert.Contains(t, out, "0 attempt(s)")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	w := newWorkspace(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	var out string
	go func() {
		var err error
		out, err = execute(t, ctx, w.args("run", "--catalog", w.catalog)...)
		errChan <- err
	}()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not respect context cancellation")
	}

	assert.Contains(t, out, "Delivery worker started")

	// The catalog changes reach disk through the final checkpoint.
	_, err := os.Stat(w.db)
	require.NoError(t, err, "database should be created")
	assert.Len(t, latestSnapshot(t, w).Users, 2)
}

// heldGateway blocks every send until released or its context ends.
type heldGateway struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newHeldGateway() *heldGateway {
	return &heldGateway{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *heldGateway) Send(ctx context.Context, msg delivery.Message) (string, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return "held-1", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRun_StopFinishesInFlightDelivery(t *testing.T) {
	w := newWorkspace(t)
	w.seed(t)
	w.send(t, "1")

	gateway := newHeldGateway()
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: w.config, EnvFile: w.envFile},
		Gateway:     gateway,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	errChan := make(chan error, 1)
	go func() { errChan <- runWorker(opts, cmd) }()

	select {
	case <-gateway.started:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery never started")
	}

	cancel()
	select {
	case err := <-errChan:
		t.Fatalf("run returned before the delivery finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(gateway.release)
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	st, err := store.Open(w.db)
	require.NoError(t, err)
	defer st.Close()
	item, err := st.Item(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, item.Status)
	assert.Equal(t, 1, item.Attempts)
}

func TestRunOnce_LogsCatalogOnce(t *testing.T) {
	w := newWorkspace(t)

	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(stderr)
	cmd.SetArgs(w.args("run", "--once", "--verbose", "--catalog", w.catalog))
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Equal(t, 1, strings.Count(stderr.String(), "catalog applied"))
}

func TestRun_InvalidConfig(t *testing.T) {
	w := newWorkspace(t)
	// batch_size 0 violates the schema.
	require.NoError(t, os.WriteFile(w.config, []byte("worker:\n  batch_size: 0\n"), 0o644))

	out, err := execute(t, context.Background(), w.args("run", "--once")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Contains(t, out, "Error [E002]")
}

func TestRun_MissingCatalog(t *testing.T) {
	w := newWorkspace(t)

	_, err := execute(t, context.Background(), w.args("run", "--once", "--catalog", w.dir+"/nope.yaml")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func TestRun_DatabaseFlagOverridesConfig(t *testing.T) {
	w := newWorkspace(t)
	other := w.dir + "/other.db"

	_, err := execute(t, context.Background(), w.args("run", "--once", "--db", other, "--catalog", w.catalog)...)
	require.NoError(t, err)

	_, err = os.Stat(other)
	require.NoError(t, err)
	_, err = os.Stat(w.db)
	assert.True(t, os.IsNotExist(err), "configured database should be untouched")
}
