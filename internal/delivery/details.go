package delivery

import "time"

// Event detail payloads, stored as JSON in send_events.details.

type QueuedDetails struct {
	BookID   int64  `json:"book_id"`
	DeviceID int64  `json:"device_id"`
	Format   string `json:"format"`
}

type ProcessingDetails struct {
	WorkerID string `json:"worker_id"`
	Attempt  int    `json:"attempt"`
}

type RetryDetails struct {
	Attempt   int       `json:"attempt"`
	NextRunAt time.Time `json:"next_run_at"`
	Error     string    `json:"error"`
}

type CompletedDetails struct {
	MessageID string `json:"message_id"`
}

type FailedDetails struct {
	Reason  string `json:"reason"`
	Error   string `json:"error,omitempty"`
	Attempt int    `json:"attempt"`
}
