// Package messaging defines the queue contract used to publish builder
// events.
package messaging

import (
	"context"
	"errors"
)

// Vendor names a queue implementation.
type Vendor string

const (
	// VendorMemory keeps messages in process.
	VendorMemory Vendor = "memory"
	// VendorFS persists messages as files through afs.
	VendorFS Vendor = "fs"
)

// ErrQueueFull is returned by a non-blocking Publish on a full queue.
var ErrQueueFull = errors.New("messaging: queue full")

// Queue is a message queue of T payloads.
type Queue[T any] interface {
	// Publish adds a message with payload t.
	Publish(ctx context.Context, t *T) error
	// Consume returns the next message, or nil when the queue is empty and
	// the implementation does not block.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a consumed message.
type Message[T any] interface {
	// ID identifies the message.
	ID() string
	// T returns the payload.
	T() *T
	// Ack marks the message processed.
	Ack() error
	// Nack marks the message failed.
	Nack(err error) error
}
