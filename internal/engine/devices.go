package engine

import (
	"net/mail"
	"strings"
	"time"
)

// KindleDomain is the only accepted domain for device addresses.
const KindleDomain = "@kindle.com"

// CreateDevice registers a Kindle for a user. The address must be a
// kindle.com address not already registered by the same user.
type CreateDevice struct {
	mutation
	UserID UserID
	Name   string
	Email  string
	At     time.Time
}

func (CreateDevice) name() string { return "CreateDevice" }

func (c CreateDevice) apply(s *Snapshot) (*Snapshot, Device, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, Device{}, notFoundf("user %d not found", c.UserID)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return s, Device{}, invalidf("device name must not be empty")
	}
	email, err := kindleAddress(c.Email)
	if err != nil {
		return s, Device{}, err
	}
	for _, d := range u.Devices {
		if strings.EqualFold(d.Email, email) {
			return s, Device{}, duplicatef("a device with email %s already exists", email)
		}
	}

	next := s.derive()
	next.Sequences.Device++
	d := Device{
		ID:        next.Sequences.Device,
		Name:      name,
		Email:     email,
		CreatedAt: c.At,
	}
	u.Devices = appended(u.Devices, d)
	next.Users = with(s.Users, u.ID, u)
	return next, d, nil
}

// kindleAddress accepts a bare addr-spec in the Kindle domain. Display names,
// groups and anything that could break a mail header are rejected.
func kindleAddress(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", invalidf("device email %q is not a valid address", email)
	}
	if !strings.HasSuffix(strings.ToLower(email), KindleDomain) {
		return "", invalidf("device email %q must end with %s", email, KindleDomain)
	}
	return email, nil
}

// UpdateDevice renames a device owned by the user.
type UpdateDevice struct {
	mutation
	UserID   UserID
	DeviceID DeviceID
	Name     string
}

func (UpdateDevice) name() string { return "UpdateDevice" }

func (c UpdateDevice) apply(s *Snapshot) (*Snapshot, bool, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, false, notFoundf("user %d not found", c.UserID)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return s, false, invalidf("device name must not be empty")
	}

	devices := append([]Device(nil), u.Devices...)
	found := false
	for i := range devices {
		if devices[i].ID == c.DeviceID {
			devices[i].Name = name
			found = true
			break
		}
	}
	if !found {
		return s, false, notFoundf("device %d not found", c.DeviceID)
	}

	u.Devices = devices
	next := s.derive()
	next.Users = with(s.Users, u.ID, u)
	return next, true, nil
}

// DeleteDevice removes a device owned by the user. Returns false if the user
// has no such device. Queued sends to the device later fail delivery.
type DeleteDevice struct {
	mutation
	UserID   UserID
	DeviceID DeviceID
}

func (DeleteDevice) name() string { return "DeleteDevice" }

func (c DeleteDevice) apply(s *Snapshot) (*Snapshot, bool, error) {
	u, ok := s.Users[c.UserID]
	if !ok {
		return s, false, notFoundf("user %d not found", c.UserID)
	}

	devices := make([]Device, 0, len(u.Devices))
	for _, d := range u.Devices {
		if d.ID != c.DeviceID {
			devices = append(devices, d)
		}
	}
	if len(devices) == len(u.Devices) {
		return s, false, nil
	}

	u.Devices = devices
	next := s.derive()
	next.Users = with(s.Users, u.ID, u)
	return next, true, nil
}
