package engine

// Command is a pure state transition producing a value of type T.
//
// The set of commands is closed: the interface has unexported methods, so
// only this package can define commands. apply must not perform I/O, must not
// modify s, and must return either s itself (nothing changed) or a new
// Snapshot derived from s.
type Command[T any] interface {
	apply(s *Snapshot) (*Snapshot, T, error)
	name() string
	mutates() bool
}

// mutation is embedded by every command that may change state.
type mutation struct{}

func (mutation) mutates() bool { return true }

// Read returns the current snapshot. It never takes the write lock.
type Read struct{}

func (Read) name() string { return "Read" }
func (Read) mutates() bool { return false }
func (Read) apply(s *Snapshot) (*Snapshot, *Snapshot, error) {
	return s, s, nil
}

// ReadSnapshot submits Read and returns the snapshot it observed.
func ReadSnapshot(e *Engine) *Snapshot {
	res, _ := Submit(e, Read{}) // Read never fails
	return res.Value
}

// LoadState replaces an empty snapshot with a previously saved one.
// It fails with ErrAlreadyLoaded once anything has been written.
type LoadState struct {
	mutation
	State *Snapshot
}

func (LoadState) name() string { return "LoadState" }

func (c LoadState) apply(s *Snapshot) (*Snapshot, struct{}, error) {
	if !s.IsEmpty() {
		return s, struct{}{}, ErrAlreadyLoaded
	}
	if c.State == nil {
		return s, struct{}{}, invalidf("no state to load")
	}
	next := c.State.derive().normalize()
	return next, struct{}{}, nil
}

// LoadBooks upserts catalog entries by id and returns how many were written.
type LoadBooks struct {
	mutation
	Books []Book
}

func (LoadBooks) name() string { return "LoadBooks" }

func (c LoadBooks) apply(s *Snapshot) (*Snapshot, int, error) {
	if len(c.Books) == 0 {
		return s, 0, nil
	}
	books := make(map[BookID]Book, len(s.Books)+len(c.Books))
	for id, b := range s.Books {
		books[id] = b
	}
	for _, b := range c.Books {
		if b.ID <= 0 {
			return s, 0, invalidf("book id must be positive, got %d", b.ID)
		}
		books[b.ID] = b
	}
	next := s.derive()
	next.Books = books
	return next, len(c.Books), nil
}
