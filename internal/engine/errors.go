package engine

import (
	"github.com/cockroachdb/errors"
)

// Business error categories.
//
// A command that violates a business rule returns an error marked with one of
// these sentinels. The snapshot is left untouched. Test the category with
// errors.Is; the error text is the human-readable reason.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("already exists")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalid       = errors.New("invalid")
	ErrAlreadyLoaded = errors.New("state already loaded")
)

// ErrCommandPanicked marks an unexpected fault inside a command. It is not a
// business error: the command was abandoned and nothing was published.
var ErrCommandPanicked = errors.New("command panicked")

func notFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func duplicatef(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrDuplicate)
}

func forbiddenf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrForbidden)
}

func invalidf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalid)
}

// IsBusinessError returns true if err is an expected rejection of a command.
func IsBusinessError(err error) bool {
	return errors.IsAny(err,
		ErrNotFound, ErrDuplicate, ErrQuotaExceeded,
		ErrForbidden, ErrInvalid, ErrAlreadyLoaded,
	)
}

// ErrorCode returns a stable code for a business error category, or
// "INTERNAL" for anything else.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, ErrQuotaExceeded):
		return "QUOTA_EXCEEDED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalid):
		return "INVALID"
	case errors.Is(err, ErrAlreadyLoaded):
		return "ALREADY_LOADED"
	}
	return "INTERNAL"
}
