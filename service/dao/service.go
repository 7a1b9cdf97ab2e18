// Package dao defines the generic data-access contract used by the registry
// implementations.
package dao

import (
	"context"
)

// Service persists entities of type T keyed by K. Save is durable once it
// returns.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
