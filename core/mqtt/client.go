// Package mqtt defines how schedules are handed to downstream consumers over
// a message broker.
package mqtt

import "time"

// Publisher delivers run outcomes to reporting consumers.
type Publisher interface {
	// PublishSchedule sends the serialized outcome of runID.
	PublishSchedule(runID string, payload []byte) error

	// WaitForAck waits until a consumer acknowledges runID or the timeout
	// expires.
	WaitForAck(runID string, timeout time.Duration) (bool, error)

	Disconnect()
}
