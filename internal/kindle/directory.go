package kindle

import (
	"github.com/roach88/bookshelf/internal/delivery"
	"github.com/roach88/bookshelf/internal/engine"
)

// Directory resolves devices and books for the delivery worker from the
// engine's current snapshot. Lookups never take the write lock.
type Directory struct {
	engine *engine.Engine
}

// NewDirectory creates a Directory over e.
func NewDirectory(e *engine.Engine) *Directory {
	return &Directory{engine: e}
}

// Recipient returns the device only while it still belongs to the user.
func (d *Directory) Recipient(userID, deviceID int64) (delivery.Recipient, bool) {
	dev, ok := engine.ReadSnapshot(d.engine).UserDevice(engine.UserID(userID), engine.DeviceID(deviceID))
	if !ok {
		return delivery.Recipient{}, false
	}
	return delivery.Recipient{DeviceID: int64(dev.ID), Name: dev.Name, Email: dev.Email}, true
}

// Book returns catalog details for a book.
func (d *Directory) Book(bookID int64) (delivery.BookInfo, bool) {
	b, ok := engine.ReadSnapshot(d.engine).Books[engine.BookID(bookID)]
	if !ok {
		return delivery.BookInfo{}, false
	}
	return delivery.BookInfo{ID: int64(b.ID), Title: b.Title, Authors: b.Authors}, true
}

var _ delivery.Directory = (*Directory)(nil)
