package repository

import "context"

// KVStore is the key-value persistence used for the cart record. Get returns
// apperrors.ErrNotFound when the key is absent; Remove of an absent key is
// not an error.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
