package engine

import "strings"

// UpsertUser returns the user with the given Google id, creating a PENDING
// user when none exists. Profile fields of an existing user are kept.
type UpsertUser struct {
	mutation
	GoogleID  string
	Email     string
	Name      string
	AvatarURL string
}

func (UpsertUser) name() string { return "UpsertUser" }

func (c UpsertUser) apply(s *Snapshot) (*Snapshot, User, error) {
	if strings.TrimSpace(c.GoogleID) == "" {
		return s, User{}, invalidf("google id is required")
	}
	if u, ok := s.UserByGoogleID(c.GoogleID); ok {
		return s, u, nil
	}

	next := s.derive()
	next.Sequences.User++
	u := User{
		ID:        next.Sequences.User,
		Email:     c.Email,
		Name:      c.Name,
		GoogleID:  c.GoogleID,
		AvatarURL: c.AvatarURL,
		Status:    UserPending,
	}
	next.Users = with(s.Users, u.ID, u)
	return next, u, nil
}

// ChangeUserStatus sets a user's status and, optionally, the admin flag.
type ChangeUserStatus struct {
	mutation
	UserID UserID
	Status UserStatus
	Admin  *bool
}

func (ChangeUserStatus) name() string { return "ChangeUserStatus" }

func (c ChangeUserStatus) apply(s *Snapshot) (*Snapshot, struct{}, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, struct{}{}, notFoundf("user %d not found", c.UserID)
	}
	if _, err := ParseUserStatus(string(c.Status)); err != nil {
		return s, struct{}{}, err
	}
	u.Status = c.Status
	if c.Admin != nil {
		u.IsAdmin = *c.Admin
	}
	next := s.derive()
	next.Users = with(s.Users, u.ID, u)
	return next, struct{}{}, nil
}
