package kvstore

import (
	"context"

	"go.uber.org/zap"
)

// Load returns the value stored under key, or def when the key is absent or
// cannot be decoded as T.
func Load[T any](ctx context.Context, s *Store, key string, def T) T {
	var v T
	ok, err := s.Get(ctx, key, &v)
	if err != nil {
		s.logger.Error("stored value unreadable, using default", zap.String("key", key), zap.Error(err))
		return def
	}
	if !ok {
		return def
	}
	return v
}

// Save stores value under key. See Store.Set for the error contract.
func Save[T any](ctx context.Context, s *Store, key string, value T) error {
	return s.Set(ctx, key, value)
}
