// Package event publishes typed coordinator events, such as builder clean
// status transitions, over a messaging queue.
package event

import (
	"time"

	"github.com/viant/buildfarm/internal/clock"
)

// Context describes where an event originated.
type Context struct {
	Builder   string `json:"builder,omitempty"`
	BuildID   string `json:"buildID,omitempty"`
	Service   string `json:"service"`
	Operation string `json:"operation"`
}

type Event[T any] struct {
	Context   *Context       `json:"context"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Data      T              `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]any),
		Data:      data,
	}
}
