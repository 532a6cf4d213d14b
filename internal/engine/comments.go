package engine

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// cleanText normalizes user-entered text to NFC and rejects blank input.
func cleanText(field, text string) (string, error) {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return "", invalidf("%s must not be empty", field)
	}
	return text, nil
}

// AddComment appends a public comment to a book.
type AddComment struct {
	mutation
	UserID UserID
	BookID BookID
	Text   string
	At     time.Time
}

func (AddComment) name() string { return "AddComment" }

func (c AddComment) apply(s *Snapshot) (*Snapshot, Comment, error) {
	if _, ok := s.Users[c.UserID]; !ok {
		return s, Comment{}, notFoundf("user %d not found", c.UserID)
	}
	if _, ok := s.Books[c.BookID]; !ok {
		return s, Comment{}, notFoundf("book %d not found", c.BookID)
	}
	text, err := cleanText("comment", c.Text)
	if err != nil {
		return s, Comment{}, err
	}

	next := s.derive()
	next.Sequences.Comment++
	cm := Comment{
		ID:        next.Sequences.Comment,
		UserID:    c.UserID,
		BookID:    c.BookID,
		Text:      text,
		CreatedAt: c.At,
		UpdatedAt: c.At,
	}
	next.Comments = with(s.Comments, c.BookID, appended(s.Comments[c.BookID], cm))
	return next, cm, nil
}

// UpdateComment replaces the text of a comment owned by UserID.
type UpdateComment struct {
	mutation
	UserID    UserID
	CommentID CommentID
	Text      string
	At        time.Time
}

func (UpdateComment) name() string { return "UpdateComment" }

func (c UpdateComment) apply(s *Snapshot) (*Snapshot, bool, error) {
	bookID, idx, ok := s.findComment(c.UserID, c.CommentID)
	if !ok {
		return s, false, notFoundf("comment %d not found or not owned by user %d", c.CommentID, c.UserID)
	}
	text, err := cleanText("comment", c.Text)
	if err != nil {
		return s, false, err
	}

	comments := append([]Comment(nil), s.Comments[bookID]...)
	comments[idx].Text = text
	comments[idx].UpdatedAt = c.At

	next := s.derive()
	next.Comments = with(s.Comments, bookID, comments)
	return next, true, nil
}

// DeleteComment removes a comment owned by UserID.
type DeleteComment struct {
	mutation
	UserID    UserID
	CommentID CommentID
}

func (DeleteComment) name() string { return "DeleteComment" }

func (c DeleteComment) apply(s *Snapshot) (*Snapshot, bool, error) {
	bookID, idx, ok := s.findComment(c.UserID, c.CommentID)
	if !ok {
		return s, false, notFoundf("comment %d not found or not owned by user %d", c.CommentID, c.UserID)
	}

	old := s.Comments[bookID]
	comments := make([]Comment, 0, len(old)-1)
	comments = append(comments, old[:idx]...)
	comments = append(comments, old[idx+1:]...)

	next := s.derive()
	if len(comments) == 0 {
		next.Comments = without(s.Comments, bookID)
	} else {
		next.Comments = with(s.Comments, bookID, comments)
	}
	return next, true, nil
}

func (s *Snapshot) findComment(user UserID, id CommentID) (BookID, int, bool) {
	for bookID, comments := range s.Comments {
		for i, cm := range comments {
			if cm.ID == id && cm.UserID == user {
				return bookID, i, true
			}
		}
	}
	return 0, 0, false
}
