package model

import "time"

// DeliveryState enumerates the one-directional per-message state machine
// Sent -> Delivered -> Read. Backward transitions never occur; re-applying a
// state the message has already reached is a no-op.
type DeliveryState int

const (
	StateSent DeliveryState = iota
	StateDelivered
	StateRead
)

func (s DeliveryState) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	default:
		return "unknown"
	}
}

// DeliveredReceipt - sent to the original sender once the recipient's
// connection acknowledges the push.
type DeliveredReceipt struct {
	MessageID   string    `json:"_id"`
	Delivered   bool      `json:"delivered"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// ReadReceipt - sent to the original sender once the recipient acknowledges
// having viewed the message.
type ReadReceipt struct {
	MessageID string    `json:"_id"`
	Read      bool      `json:"read"`
	ReadAt    time.Time `json:"readAt"`
}
