package engine

import "time"

// AddOrUpdateNote sets the user's private note on a book, creating it if needed.
type AddOrUpdateNote struct {
	mutation
	UserID UserID
	BookID BookID
	Text   string
	At     time.Time
}

func (AddOrUpdateNote) name() string { return "AddOrUpdateNote" }

func (c AddOrUpdateNote) apply(s *Snapshot) (*Snapshot, Note, error) {
	if _, ok := s.Users[c.UserID]; !ok {
		return s, Note{}, notFoundf("user %d not found", c.UserID)
	}
	if _, ok := s.Books[c.BookID]; !ok {
		return s, Note{}, notFoundf("book %d not found", c.BookID)
	}
	text, err := cleanText("note", c.Text)
	if err != nil {
		return s, Note{}, err
	}

	notes := append([]Note(nil), s.Notes[c.BookID]...)
	var result Note
	found := false
	for i := range notes {
		if notes[i].UserID == c.UserID {
			notes[i].Text = text
			notes[i].UpdatedAt = c.At
			result = notes[i]
			found = true
			break
		}
	}
	if !found {
		result = Note{
			UserID:    c.UserID,
			BookID:    c.BookID,
			Text:      text,
			CreatedAt: c.At,
			UpdatedAt: c.At,
		}
		notes = append(notes, result)
	}

	next := s.derive()
	next.Notes = with(s.Notes, c.BookID, notes)
	return next, result, nil
}

// DeleteNote removes the user's note on a book. Returns false if there was none.
type DeleteNote struct {
	mutation
	UserID UserID
	BookID BookID
}

func (DeleteNote) name() string { return "DeleteNote" }

func (c DeleteNote) apply(s *Snapshot) (*Snapshot, bool, error) {
	old, ok := s.Notes[c.BookID]
	if !ok {
		return s, false, nil
	}

	notes := make([]Note, 0, len(old))
	for _, n := range old {
		if n.UserID != c.UserID {
			notes = append(notes, n)
		}
	}
	if len(notes) == len(old) {
		return s, false, nil
	}

	next := s.derive()
	if len(notes) == 0 {
		next.Notes = without(s.Notes, c.BookID)
	} else {
		next.Notes = with(s.Notes, c.BookID, notes)
	}
	return next, true, nil
}
