// Package delivery drains the durable send queue and delivers books to Kindle devices.
//
// The Worker runs on its own timer and touches only the send queue: it never
// submits engine commands. Each poll cycle:
//  1. Fetches up to BatchSize PENDING items that are due, earliest first
//  2. Claims each item with a conditional update; a lost claim is skipped
//  3. Looks up the device and book, resolves the book file
//  4. Calls the Gateway under a timeout
//  5. Classifies the result and applies the matching transition
//
// Every transition writes a send_events row in the same transaction, so the
// event trace of an item always follows the state machine:
//
//	PENDING --claim--> PROCESSING
//	PROCESSING --success--> COMPLETED
//	PROCESSING --retryable, attempts < max--> PENDING (attempts+1, backoff)
//	PROCESSING --retryable, attempts >= max--> FAILED
//	PROCESSING --permanent or missing device/book/file--> FAILED
//
// A failing item never aborts the rest of the batch.
package delivery
