package kindle

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
	"github.com/roach88/bookshelf/internal/testutil"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestEngine holds books 1-3 and two approved users: alice (user 1,
// device 1) and bob (user 2, device 2).
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New()

	_, err := engine.Submit(e, engine.LoadBooks{Books: []engine.Book{
		{ID: 1, Title: "Dune", Authors: []string{"Frank Herbert"}},
		{ID: 2, Title: "Solaris", Authors: []string{"Stanisław Lem"}},
		{ID: 3, Title: "Roadside Picnic", Authors: []string{"Arkady Strugatsky"}},
	}})
	require.NoError(t, err)

	for _, u := range []struct{ google, name, kindle string }{
		{"g-alice", "Alice", "alice@kindle.com"},
		{"g-bob", "Bob", "bob@kindle.com"},
	} {
		res, err := engine.Submit(e, engine.UpsertUser{GoogleID: u.google, Email: u.google + "@example.com", Name: u.name})
		require.NoError(t, err)
		_, err = engine.Submit(e, engine.ChangeUserStatus{UserID: res.Value.ID, Status: engine.UserApproved})
		require.NoError(t, err)
		_, err = engine.Submit(e, engine.CreateDevice{UserID: res.Value.ID, Name: u.name + "'s Kindle", Email: u.kindle, At: testNow})
		require.NoError(t, err)
	}
	return e
}

type fixture struct {
	engine  *engine.Engine
	store   *store.Store
	clock   *testutil.FakeClock
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		engine: newTestEngine(t),
		store:  s,
		clock:  testutil.NewFakeClock(testNow),
	}
	f.service = NewService(f.engine, f.store, WithClock(f.clock.Now), WithDailyLimit(5))
	return f
}
