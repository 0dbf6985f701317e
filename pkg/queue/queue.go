// Package queue defines the at-least-once queue contract shared by the
// submission service and the consumer loop.
package queue

import (
	"context"
	"time"
)

// Well-known message attributes.
const (
	AttrCorrelationID = "correlation_id"
	AttrMessageType   = "message_type"
)

// Message is one delivery of a queued payload.
type Message struct {
	ID         string
	Handle     string // only valid for Delete
	Body       []byte
	Attributes map[string]string
	// ReceiveCount is the delivery count when the backend reports it, else 0.
	ReceiveCount int
}

// Attribute returns the named attribute, or "" when absent.
func (m *Message) Attribute(key string) string {
	if m == nil || m.Attributes == nil {
		return ""
	}
	return m.Attributes[key]
}

// Client is the queue contract.
//
// A received message stays invisible to other receivers for the backend's
// visibility window. Unless it is deleted within that window it is delivered
// again.
type Client interface {
	// Enqueue durably writes body with attrs and returns the message id.
	Enqueue(ctx context.Context, body []byte, attrs map[string]string) (string, error)
	// Receive long-polls for up to maxMessages messages, waiting at most wait.
	// An empty result is not an error.
	Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]*Message, error)
	// Delete permanently removes the message behind handle. Deleting an
	// already-deleted message succeeds.
	Delete(ctx context.Context, handle string) error
	// Depth is an approximate count of outstanding messages.
	Depth(ctx context.Context) (int, error)
}
