package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one event. A returned error nacks the message.
type Handler[T any] func(ctx context.Context, event *Event[T]) error

type Listener[T any] struct {
	publisher    *Publisher[T]
	handler      Handler[T]
	pollInterval time.Duration
	logger       *slog.Logger
	cancel       context.CancelFunc
	done         chan struct{}
	once         sync.Once
}

func NewListener[T any](publisher *Publisher[T], handler Handler[T], pollInterval time.Duration, logger *slog.Logger) *Listener[T] {
	return &Listener[T]{
		publisher:    publisher,
		handler:      handler,
		pollInterval: pollInterval,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Start consumes events in a goroutine until Stop is called.
func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

func (l *Listener[T]) run(ctx context.Context) {
	defer close(l.done)
	for {
		msg, err := l.publisher.Consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("failed to consume event", "error", err)
		}
		if msg == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.pollInterval):
			}
			continue
		}
		if err = l.handler(ctx, msg.T()); err != nil {
			l.logger.Warn("event handler failed", "event_id", msg.ID(), "error", err)
			err = msg.Nack(err)
		} else {
			err = msg.Ack()
		}
		if err != nil {
			l.logger.Warn("failed to settle event", "event_id", msg.ID(), "error", err)
		}
	}
}

// Stop cancels the listener and waits for the running handler to return.
func (l *Listener[T]) Stop() {
	l.once.Do(func() {
		if l.cancel == nil {
			close(l.done)
			return
		}
		l.cancel()
	})
	<-l.done
}
