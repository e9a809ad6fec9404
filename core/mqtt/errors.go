package mqtt

import "errors"

var (
	// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	// ErrAckDisabled is returned by WaitForAck when no ack topic is configured.
	ErrAckDisabled = errors.New("ack topic not configured")
)
