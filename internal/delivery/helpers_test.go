package delivery

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/bookshelf/internal/store"
	"github.com/roach88/bookshelf/internal/testutil"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const testWorkerID = "worker-1"

// fakeDirectory knows user 1 with device 1 and books 1 and 2.
type fakeDirectory struct {
	recipients map[[2]int64]Recipient
	books      map[int64]BookInfo
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		recipients: map[[2]int64]Recipient{
			{1, 1}: {DeviceID: 1, Name: "Paperwhite", Email: "alice@kindle.com"},
		},
		books: map[int64]BookInfo{
			1: {ID: 1, Title: "Dune", Authors: []string{"Frank Herbert"}},
			2: {ID: 2, Title: "Neuromancer", Authors: []string{"William Gibson"}},
		},
	}
}

func (d *fakeDirectory) Recipient(userID, deviceID int64) (Recipient, bool) {
	r, ok := d.recipients[[2]int64{userID, deviceID}]
	return r, ok
}

func (d *fakeDirectory) Book(bookID int64) (BookInfo, bool) {
	b, ok := d.books[bookID]
	return b, ok
}

// fixture wires a worker to a real store, a fake clock and mocked ports.
type fixture struct {
	store   *store.Store
	clock   *testutil.FakeClock
	dir     *fakeDirectory
	files   *MockFileResolver
	gateway *MockGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctrl := gomock.NewController(t)
	return &fixture{
		store:   s,
		clock:   testutil.NewFakeClock(testNow),
		dir:     newFakeDirectory(),
		files:   NewMockFileResolver(ctrl),
		gateway: NewMockGateway(ctrl),
	}
}

func (f *fixture) worker(opts ...WorkerOption) *Worker {
	cfg := Config{
		BatchSize:   10,
		MaxRetries:  3,
		SendTimeout: time.Second,
		Backoff: Backoff{
			Base:   time.Minute,
			Max:    24 * time.Hour,
			Jitter: 0.2,
			Rand:   func() float64 { return 0.5 },
		},
	}
	opts = append([]WorkerOption{WithClock(f.clock.Now), WithWorkerID(testWorkerID)}, opts...)
	return NewWorker(f.store, f.dir, f.files, f.gateway, cfg, opts...)
}

// enqueue inserts a PENDING EPUB item for user 1 and device 1.
func (f *fixture) enqueue(t *testing.T, id, bookID int64) {
	t.Helper()
	err := f.store.Enqueue(context.Background(), store.NewItem{
		ID:        id,
		UserID:    1,
		DeviceID:  1,
		BookID:    bookID,
		Format:    "EPUB",
		CreatedAt: f.clock.Now(),
	}, QueuedDetails{BookID: bookID, DeviceID: 1, Format: "EPUB"})
	require.NoError(t, err)
}

func (f *fixture) item(t *testing.T, id int64) store.QueueItem {
	t.Helper()
	item, err := f.store.Item(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (f *fixture) eventTypes(t *testing.T, id int64) []store.EventType {
	t.Helper()
	events, err := f.store.Events(context.Background(), id)
	require.NoError(t, err)
	types := make([]store.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func epubFile(book int64) File {
	return File{
		Path:        "/books/" + strconv.FormatInt(book, 10) + ".epub",
		Name:        "book.epub",
		ContentType: "application/epub+zip",
	}
}
