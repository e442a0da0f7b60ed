package storage

import (
	"context"
	"fmt"
)

// MigrateIfPossible moves the value stored under key from the simple
// backend into the rich one, at most once. It is safe to call any number
// of times: a rich backend that already holds the key makes it a no-op,
// as does an absent source value or an unavailable rich backend.
//
// The write to the rich backend is confirmed before the delete from the
// simple backend is issued, so a crash in between leaves the value
// recoverable from the simple backend rather than lost. The caller is
// expected to treat a returned error as best-effort noise and retry on
// the next boot.
func MigrateIfPossible(ctx context.Context, simple, rich Backend, key string) error {
	if rich == nil {
		return nil
	}

	existing, err := rich.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("probe rich backend: %w", err)
	}
	if existing != nil {
		// Already migrated or pre-seeded.
		return nil
	}

	value, err := simple.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read simple backend: %w", err)
	}
	if value == nil {
		return nil
	}

	if err := rich.Set(ctx, key, value); err != nil {
		return fmt.Errorf("write rich backend: %w", err)
	}
	if err := simple.Remove(ctx, key); err != nil {
		return fmt.Errorf("clear simple backend: %w", err)
	}
	return nil
}
