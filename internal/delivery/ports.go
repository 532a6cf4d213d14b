package delivery

//go:generate mockgen -destination=mocks_test.go -package=delivery . Gateway,FileResolver

import (
	"context"
	"time"

	"github.com/roach88/bookshelf/internal/engine"
	"github.com/roach88/bookshelf/internal/store"
)

// Queue is the subset of the store the worker drives.
type Queue interface {
	Due(ctx context.Context, now time.Time, limit int) ([]store.QueueItem, error)
	Claim(ctx context.Context, id int64, now time.Time, details any) (bool, error)
	Complete(ctx context.Context, id int64, attempts int, now time.Time, details any) error
	Retry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, reason string, now time.Time, details any) error
	Fail(ctx context.Context, id int64, attempts int, reason string, now time.Time, details any) error
	CountByStatus(ctx context.Context) (map[store.Status]int, error)
}

// Recipient is the device a book is delivered to.
type Recipient struct {
	DeviceID int64
	Name     string
	Email    string
}

// BookInfo is what delivery needs to know about a book.
type BookInfo struct {
	ID      int64
	Title   string
	Authors []string
}

// Directory looks up devices and books for queue items.
type Directory interface {
	Recipient(userID, deviceID int64) (Recipient, bool)
	Book(bookID int64) (BookInfo, bool)
}

// File is a resolved book file ready to attach.
type File struct {
	Path        string
	Name        string
	ContentType string
}

// FileResolver locates the file for a book in a given format.
type FileResolver interface {
	Resolve(ctx context.Context, book BookInfo, format engine.Format) (File, error)
}

// Message is one delivery to a device.
type Message struct {
	To    string
	Title string
	File  File
}

// Gateway sends a message and returns the provider's message id.
type Gateway interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}
