package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestEngine returns an engine with two approved users, one device each,
// and three books.
//
//	user 1 (alice) owns device 1
//	user 2 (bob)   owns device 2
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()

	_, err := Submit(e, LoadBooks{Books: []Book{
		{ID: 1, Title: "Dune", Authors: []string{"Frank Herbert"}, Series: "Dune", SeriesNumber: 1},
		{ID: 2, Title: "Solaris", Authors: []string{"Stanisław Lem"}},
		{ID: 3, Title: "Roadside Picnic", Authors: []string{"Arkady Strugatsky", "Boris Strugatsky"}},
	}})
	require.NoError(t, err)

	for _, u := range []struct{ google, email, name, kindle string }{
		{"g-alice", "alice@example.com", "Alice", "alice@kindle.com"},
		{"g-bob", "bob@example.com", "Bob", "bob@kindle.com"},
	} {
		res, err := Submit(e, UpsertUser{GoogleID: u.google, Email: u.email, Name: u.name})
		require.NoError(t, err)
		_, err = Submit(e, ChangeUserStatus{UserID: res.Value.ID, Status: UserApproved})
		require.NoError(t, err)
		_, err = Submit(e, CreateDevice{UserID: res.Value.ID, Name: u.name + "'s Kindle", Email: u.kindle, At: testNow})
		require.NoError(t, err)
	}

	return e
}

// panicCommand is a mutating command whose transition always panics.
type panicCommand struct{ mutation }

func (panicCommand) name() string { return "panic" }

func (panicCommand) apply(*Snapshot) (*Snapshot, struct{}, error) {
	panic("boom")
}
