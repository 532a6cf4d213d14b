package delivery

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/text/cases"
)

// Outcome is the classified result of one gateway call.
// It is one of Success, RetryableFailure or PermanentFailure.
type Outcome interface {
	outcome()
}

// Success means the gateway accepted the message.
type Success struct {
	MessageID string
}

// RetryableFailure means the gateway call may succeed if repeated later.
type RetryableFailure struct {
	Reason string
}

// PermanentFailure means repeating the call will not help.
type PermanentFailure struct {
	Reason string
}

func (Success) outcome()          {}
func (RetryableFailure) outcome() {}
func (PermanentFailure) outcome() {}

// transientIndicators are matched case-insensitively against gateway error text.
var transientIndicators = []string{
	"throttl",
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"temporarily",
	"connection",
	"service unavailable",
}

// Classify maps a gateway result to an Outcome.
//
// Deadline and cancellation errors, network timeouts and errors whose text
// contains a transient indicator are retryable. Anything else is permanent.
func Classify(messageID string, err error) Outcome {
	if err == nil {
		return Success{MessageID: messageID}
	}

	reason := err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RetryableFailure{Reason: reason}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return RetryableFailure{Reason: reason}
	}
	if isTransient(reason) {
		return RetryableFailure{Reason: reason}
	}
	return PermanentFailure{Reason: reason}
}

func isTransient(msg string) bool {
	folded := cases.Fold().String(msg)
	for _, indicator := range transientIndicators {
		if strings.Contains(folded, indicator) {
			return true
		}
	}
	return false
}
