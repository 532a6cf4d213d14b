package engine

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultDailySendLimit is the number of sends a user may enqueue per UTC day.
const DefaultDailySendLimit = 5

// DailyQuota limits how many send requests a user may create per UTC day.
// A zero Limit means DefaultDailySendLimit.
//
// The window starts at 00:00 UTC of the request time. Every request created
// in the window counts, whatever its delivery outcome.
type DailyQuota struct {
	Limit int
}

// Effective returns the limit in force.
func (q DailyQuota) Effective() int {
	if q.Limit <= 0 {
		return DefaultDailySendLimit
	}
	return q.Limit
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Check validates that a new request at now fits in the quota.
//
// Returns a QuotaExceededError marked with ErrQuotaExceeded if the user
// already used the whole allowance.
func (q DailyQuota) Check(s *Snapshot, user UserID, now time.Time) error {
	limit := q.Effective()
	used := s.SendsSince(user, StartOfDay(now))
	if used >= limit {
		return errors.Mark(&QuotaExceededError{
			UserID: user,
			Used:   used,
			Limit:  limit,
		}, ErrQuotaExceeded)
	}
	return nil
}

// QuotaExceededError is returned when a user exceeds the daily send quota.
type QuotaExceededError struct {
	UserID UserID
	Used   int
	Limit  int
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily send quota exceeded: user %d sent %d of %d today", e.UserID, e.Used, e.Limit)
}

// IsQuotaError returns true if the error is a daily quota rejection.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
