package engine

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Query helpers are pure reads over a snapshot. They are safe to call on any
// snapshot returned by the engine, including concurrently with writers.

// UserByGoogleID finds a user by Google account id.
func (s *Snapshot) UserByGoogleID(googleID string) (User, bool) {
	for _, u := range s.Users {
		if u.GoogleID == googleID {
			return u, true
		}
	}
	return User{}, false
}

// Device returns the user's device with the given id.
func (u User) Device(id DeviceID) (Device, bool) {
	for _, d := range u.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// UserDevice returns a device only if it belongs to the user.
func (s *Snapshot) UserDevice(user UserID, device DeviceID) (Device, bool) {
	u, ok := s.Users[user]
	if !ok {
		return Device{}, false
	}
	return u.Device(device)
}

// SendsSince counts the user's send requests created at or after since.
func (s *Snapshot) SendsSince(user UserID, since time.Time) int {
	n := 0
	for _, r := range s.Sends {
		if r.UserID == user && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

// StarredBooks returns the books the user starred, most recent first.
func (s *Snapshot) StarredBooks(user UserID) []Book {
	u, ok := s.Users[user]
	if !ok {
		return []Book{}
	}
	stars := append([]Star(nil), u.Stars...)
	sort.SliceStable(stars, func(i, j int) bool { return stars[i].At.After(stars[j].At) })

	books := make([]Book, 0, len(stars))
	for _, st := range stars {
		if b, ok := s.Books[st.BookID]; ok {
			books = append(books, b)
		}
	}
	return books
}

// BookComments returns a book's comments ordered by creation time then id.
func (s *Snapshot) BookComments(book BookID) []Comment {
	comments := append([]Comment{}, s.Comments[book]...)
	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments
}

// UserNote returns the user's note on a book.
func (s *Snapshot) UserNote(user UserID, book BookID) (Note, bool) {
	for _, n := range s.Notes[book] {
		if n.UserID == user {
			return n, true
		}
	}
	return Note{}, false
}

// SearchBooks matches query case-insensitively against titles, authors and
// series. Results are ordered by id; limit <= 0 means no limit.
func (s *Snapshot) SearchBooks(query string, limit int) []Book {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))

	ids := make([]BookID, 0, len(s.Books))
	for id := range s.Books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []Book{}
	for _, id := range ids {
		b := s.Books[id]
		if q == "" || bookMatches(fold, b, q) {
			out = append(out, b)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func bookMatches(fold cases.Caser, b Book, q string) bool {
	if strings.Contains(fold.String(b.Title), q) || strings.Contains(fold.String(b.Series), q) {
		return true
	}
	for _, a := range b.Authors {
		if strings.Contains(fold.String(a), q) {
			return true
		}
	}
	return false
}
