// Package metadata stores client session values (user token, user id,
// tier) in the local database as key/value pairs.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyUserToken = "user_token"
	KeyUserID    = "user_id"
	KeyTier      = "tier"
	KeyLastSweep = "last_sweep_at"
)

type Repository interface {
	// Get returns (nil, nil) for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// GetString reads a key as a string; a missing key yields "".
func GetString(ctx context.Context, r Repository, key string) (string, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetStrings writes several string values.
func SetStrings(ctx context.Context, r Repository, kv map[string]string) error {
	for k, v := range kv {
		if err := r.Set(ctx, k, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}
