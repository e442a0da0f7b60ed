// Package storage provides the key-value persistence backends the prompt
// store writes its state snapshot to: a simple backend that is available
// as soon as the process starts (file or redis) and a rich backend that
// needs an explicit open step (sqlite or postgres).
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable marks a backend that cannot serve requests at all, as
// opposed to one that is reachable but holds no value. Readers treat it
// as "no value"; writers drop the write.
var ErrUnavailable = errors.New("storage backend unavailable")

// Backend is the uniform contract shared by every persistence backend.
// Get returns (nil, nil) when the key is absent. Set is idempotent and
// last-write-wins per key; a concurrent read observes either the old
// full value or the new full value, never a partial one.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
