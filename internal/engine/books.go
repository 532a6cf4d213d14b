package engine

import "time"

// StarBook adds a book to the user's starred list.
// Returns false if the book was already starred.
type StarBook struct {
	mutation
	UserID UserID
	BookID BookID
	At     time.Time
}

func (StarBook) name() string { return "StarBook" }

func (c StarBook) apply(s *Snapshot) (*Snapshot, bool, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, false, notFoundf("user %d not found", c.UserID)
	}
	if _, ok := s.Books[c.BookID]; !ok {
		return s, false, notFoundf("book %d not found", c.BookID)
	}
	for _, st := range u.Stars {
		if st.BookID == c.BookID {
			return s, false, nil
		}
	}

	u.Stars = appended(u.Stars, Star{BookID: c.BookID, At: c.At})
	next := s.derive()
	next.Users = with(s.Users, u.ID, u)
	return next, true, nil
}

// UnstarBook removes a book from the user's starred list.
// Returns false if the book was not starred.
type UnstarBook struct {
	mutation
	UserID UserID
	BookID BookID
}

func (UnstarBook) name() string { return "UnstarBook" }

func (c UnstarBook) apply(s *Snapshot) (*Snapshot, bool, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, false, notFoundf("user %d not found", c.UserID)
	}

	stars := make([]Star, 0, len(u.Stars))
	for _, st := range u.Stars {
		if st.BookID != c.BookID {
			stars = append(stars, st)
		}
	}
	if len(stars) == len(u.Stars) {
		return s, false, nil
	}

	u.Stars = stars
	next := s.derive()
	next.Users = with(s.Users, u.ID, u)
	return next, true, nil
}

// RecordDownload appends a download to the user's history.
type RecordDownload struct {
	mutation
	UserID UserID
	BookID BookID
	Format string
	At     time.Time
}

func (RecordDownload) name() string { return "RecordDownload" }

func (c RecordDownload) apply(s *Snapshot) (*Snapshot, bool, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, false, notFoundf("user %d not found", c.UserID)
	}
	if _, ok := s.Books[c.BookID]; !ok {
		return s, false, notFoundf("book %d not found", c.BookID)
	}

	u.Downloads = appended(u.Downloads, Download{BookID: c.BookID, Format: c.Format, At: c.At})
	next := s.derive()
	next.Users = with(s.Users, u.ID, u)
	return next, true, nil
}
