package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bookshelf/internal/testutil"
)

// testCatalog seeds alice (user 1, approved, devices 1 and 2) and bob
// (user 2, pending, device 3). Only book 1 has a file on disk.
const testCatalog = `books:
  - id: 1
    title: Dune
    authors: [Frank Herbert]
  - id: 2
    title: Solaris
    authors: [Stanisław Lem]

users:
  - google_id: g-alice
    email: alice@example.com
    name: Alice
    status: approved
    devices:
      - name: Paperwhite
        email: alice@kindle.com
      - name: Oasis
        email: alice.oasis@kindle.com
  - google_id: g-bob
    email: bob@example.com
    name: Bob
    devices:
      - name: Basic
        email: bob@kindle.com
`

// workspace is a throwaway bookshelf installation.
type workspace struct {
	dir     string
	db      string
	books   string
	config  string
	catalog string
	envFile string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:     dir,
		db:      filepath.Join(dir, "bookshelf.db"),
		books:   filepath.Join(dir, "books"),
		config:  filepath.Join(dir, "bookshelf.yaml"),
		catalog: filepath.Join(dir, "catalog.yaml"),
		envFile: filepath.Join(dir, "bookshelf.env"),
	}
	require.NoError(t, os.MkdirAll(w.books, 0o755))
	testutil.WriteBookFile(t, w.books, 1, "epub", "dune-epub")

	w.writeConfig(t)
	require.NoError(t, os.WriteFile(w.catalog, []byte(testCatalog), 0o644))
	return w
}

func (w *workspace) writeConfig(t *testing.T) {
	t.Helper()
	cfg := fmt.Sprintf(`database: %s
worker:
  poll_interval: 1s
checkpoint:
  interval: 1s
quota:
  daily_limit: 2
metrics:
  addr: ""
books:
  dir: %s
log:
  level: error
`, w.db, w.books)
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0o644))
}

// args appends the workspace's global flags.
func (w *workspace) args(args ...string) []string {
	return append(args, "--config", w.config, "--env-file", w.envFile)
}

// execute runs the root command and returns what it wrote to stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// seed applies the test catalog with a single run cycle.
func (w *workspace) seed(t *testing.T) {
	t.Helper()
	_, err := execute(t, context.Background(), w.args("run", "--once", "--catalog", w.catalog)...)
	require.NoError(t, err)
}

// send queues book for alice on her Paperwhite.
func (w *workspace) send(t *testing.T, book string) {
	t.Helper()
	_, err := execute(t, context.Background(), w.args("send", "--user", "1", "--device", "1", "--book", book)...)
	require.NoError(t, err)
}
