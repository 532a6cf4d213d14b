package engine

import (
	"strings"
	"time"
)

type (
	UserID    int64
	BookID    int64
	DeviceID  int64
	CommentID int64
	SendID    int64
)

// Format is an e-book format accepted by Kindle delivery.
type Format string

const (
	FormatEPUB Format = "EPUB"
	FormatMOBI Format = "MOBI"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case FormatEPUB:
		return FormatEPUB, nil
	case FormatMOBI:
		return FormatMOBI, nil
	}
	return "", invalidf("unsupported format %q", s)
}

// ContentType returns the MIME type used when attaching a file of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatEPUB:
		return "application/epub+zip"
	case FormatMOBI:
		return "application/x-mobipocket-ebook"
	}
	return "application/octet-stream"
}

// Extension returns the lower-case file extension without a dot.
func (f Format) Extension() string {
	switch f {
	case FormatEPUB:
		return "epub"
	case FormatMOBI:
		return "mobi"
	}
	return "bin"
}

// UserStatus gates what a user may do.
type UserStatus string

const (
	UserPending     UserStatus = "PENDING"
	UserApproved    UserStatus = "APPROVED"
	UserRejected    UserStatus = "REJECTED"
	UserDeactivated UserStatus = "DEACTIVATED"
)

// ParseUserStatus accepts a status name in any case.
func ParseUserStatus(s string) (UserStatus, error) {
	switch st := UserStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case UserPending, UserApproved, UserRejected, UserDeactivated:
		return st, nil
	}
	return "", invalidf("unsupported user status %q", s)
}

// Sequences holds the last id handed out per entity kind.
// The zero value means no ids have been issued; the first id is 1.
type Sequences struct {
	User    UserID    `json:"user"`
	Device  DeviceID  `json:"device"`
	Comment CommentID `json:"comment"`
	Send    SendID    `json:"send"`
}

type Book struct {
	ID           BookID   `json:"id"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors,omitempty"`
	Series       string   `json:"series,omitempty"`
	SeriesNumber int      `json:"series_number,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	Language     string   `json:"language,omitempty"`
	FileFormat   string   `json:"file_format,omitempty"`
	FilePath     string   `json:"file_path,omitempty"`
	ArchivePath  string   `json:"archive_path,omitempty"`
	FileSize     int64    `json:"file_size,omitempty"`
}

type User struct {
	ID        UserID     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	GoogleID  string     `json:"google_id"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Status    UserStatus `json:"status"`
	IsAdmin   bool       `json:"is_admin"`
	Devices   []Device   `json:"devices,omitempty"`
	Downloads []Download `json:"downloads,omitempty"`
	Stars     []Star     `json:"stars,omitempty"`
}

// Device is a Kindle registered by a user. Email is the device's
// send-to-kindle address.
type Device struct {
	ID        DeviceID  `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Download struct {
	BookID BookID    `json:"book_id"`
	Format string    `json:"format"`
	At     time.Time `json:"at"`
}

type Star struct {
	BookID BookID    `json:"book_id"`
	At     time.Time `json:"at"`
}

type Comment struct {
	ID        CommentID `json:"id"`
	UserID    UserID    `json:"user_id"`
	BookID    BookID    `json:"book_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note is a private per-user note on a book. A user has at most one note per book.
type Note struct {
	UserID    UserID    `json:"user_id"`
	BookID    BookID    `json:"book_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SendRequest is the accepted intent to deliver a book to a device.
// Delivery progress lives in the durable send queue, keyed by the same id.
type SendRequest struct {
	ID        SendID    `json:"id"`
	UserID    UserID    `json:"user_id"`
	DeviceID  DeviceID  `json:"device_id"`
	BookID    BookID    `json:"book_id"`
	Format    Format    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is an immutable view of application state.
//
// A Snapshot is never modified after it has been published by the Engine.
// Commands derive a new Snapshot by copying the struct and replacing whole
// maps; untouched maps are shared between the old and new value.
type Snapshot struct {
	Version   int64                  `json:"version"`
	Sequences Sequences              `json:"sequences"`
	Users     map[UserID]User        `json:"users"`
	Books     map[BookID]Book        `json:"books"`
	Comments  map[BookID][]Comment   `json:"comments"`
	Notes     map[BookID][]Note      `json:"notes"`
	Sends     map[SendID]SendRequest `json:"sends"`
}

// EmptySnapshot returns the state of a freshly started engine.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Users:    map[UserID]User{},
		Books:    map[BookID]Book{},
		Comments: map[BookID][]Comment{},
		Notes:    map[BookID][]Note{},
		Sends:    map[SendID]SendRequest{},
	}
}

// IsEmpty reports whether nothing has ever been written to the snapshot.
func (s *Snapshot) IsEmpty() bool {
	return s.Sequences == (Sequences{}) &&
		len(s.Users) == 0 && len(s.Books) == 0 &&
		len(s.Comments) == 0 && len(s.Notes) == 0 && len(s.Sends) == 0
}

// derive returns a shallow copy. Callers replace the maps they change.
func (s *Snapshot) derive() *Snapshot {
	next := *s
	return &next
}

// normalize fills nil maps so a decoded checkpoint behaves like EmptySnapshot.
func (s *Snapshot) normalize() *Snapshot {
	if s.Users == nil {
		s.Users = map[UserID]User{}
	}
	if s.Books == nil {
		s.Books = map[BookID]Book{}
	}
	if s.Comments == nil {
		s.Comments = map[BookID][]Comment{}
	}
	if s.Notes == nil {
		s.Notes = map[BookID][]Note{}
	}
	if s.Sends == nil {
		s.Sends = map[SendID]SendRequest{}
	}
	return s
}

// with returns a copy of m with k set to v. m is not modified.
func with[K comparable, V any](m map[K]V, k K, v V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

// without returns a copy of m with k removed. m is not modified.
func without[K comparable, V any](m map[K]V, k K) map[K]V {
	out := make(map[K]V, len(m))
	for key, val := range m {
		if key != k {
			out[key] = val
		}
	}
	return out
}

// appended returns a new slice; the backing array of s is never shared for writes.
func appended[V any](s []V, v V) []V {
	out := make([]V, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}
