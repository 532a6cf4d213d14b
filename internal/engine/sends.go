package engine

import "time"

// EnqueueSend records the intent to deliver a book to one of the user's devices.
//
// The user must be approved, the device must belong to the user, the book
// must exist, and the user must have quota left for the UTC day of RequestedAt. The returned SendRequest id
// is used as the durable queue item id.
type EnqueueSend struct {
	mutation
	UserID      UserID
	DeviceID    DeviceID
	BookID      BookID
	Format      Format
	RequestedAt time.Time
	Quota       DailyQuota
}

func (EnqueueSend) name() string { return "EnqueueSend" }

func (c EnqueueSend) apply(s *Snapshot) (*Snapshot, SendRequest, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, SendRequest{}, notFoundf("user %d not found", c.UserID)
	}
	if u.Status != UserApproved {
		return s, SendRequest{}, forbiddenf("user %d is %s", c.UserID, u.Status)
	}
	if _, ok := u.Device(c.DeviceID); !ok {
		return s, SendRequest{}, forbiddenf("device %d not found for user %d", c.DeviceID, c.UserID)
	}
	if _, ok := s.Books[c.BookID]; !ok {
		return s, SendRequest{}, notFoundf("book %d not found", c.BookID)
	}
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return s, SendRequest{}, err
	}
	if err := c.Quota.Check(s, c.UserID, c.RequestedAt); err != nil {
		return s, SendRequest{}, err
	}

	next := s.derive()
	next.Sequences.Send++
	req := SendRequest{
		ID:        next.Sequences.Send,
		UserID:    c.UserID,
		DeviceID:  c.DeviceID,
		BookID:    c.BookID,
		Format:    c.Format,
		CreatedAt: c.RequestedAt,
	}
	next.Sends = with(s.Sends, req.ID, req)
	return next, req, nil
}

// DiscardSend removes a send request whose durable queue item could not be
// written. The sequence is not rewound, so the id is never reused.
type DiscardSend struct {
	mutation
	SendID SendID
}

func (DiscardSend) name() string { return "DiscardSend" }

func (c DiscardSend) apply(s *Snapshot) (*Snapshot, struct{}, error) {
	if _, ok := s.Sends[c.SendID]; !ok {
		return s, struct{}{}, notFoundf("send %d not found", c.SendID)
	}
	next := s.derive()
	next.Sends = without(s.Sends, c.SendID)
	return next, struct{}{}, nil
}

// RecoverSends adds send requests that reached the durable queue after the
// snapshot was saved, and moves the send sequence past the highest id.
// Requests already present are left alone. Returns how many were added.
type RecoverSends struct {
	mutation
	Sends []SendRequest
}

func (RecoverSends) name() string { return "RecoverSends" }

func (c RecoverSends) apply(s *Snapshot) (*Snapshot, int, error) {
	seq := s.Sequences.Send
	var missing []SendRequest
	for _, r := range c.Sends {
		if r.ID <= 0 {
			return s, 0, invalidf("send id must be positive, got %d", r.ID)
		}
		seq = max(seq, r.ID)
		if _, ok := s.Sends[r.ID]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 && seq == s.Sequences.Send {
		return s, 0, nil
	}

	sends := make(map[SendID]SendRequest, len(s.Sends)+len(missing))
	for id, r := range s.Sends {
		sends[id] = r
	}
	for _, r := range missing {
		sends[r.ID] = r
	}

	next := s.derive()
	next.Sequences.Send = seq
	next.Sends = sends
	return next, len(missing), nil
}
