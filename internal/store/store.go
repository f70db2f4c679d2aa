package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no persisted value.
var ErrNotFound = errors.New("key not found")

// KV is the durable key-value store backing cart state, chat history,
// session identity and display settings. Values are opaque strings; callers
// that need structure go through GetJSON/SetJSON.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON reads key and unmarshals its value into dest. A missing key is
// reported as ErrNotFound; a corrupt value as an unmarshal error. Callers
// decide the fallback, typically the empty/default state.
func GetJSON(ctx context.Context, kv KV, key string, dest interface{}) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("corrupt value for key %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and writes it under key.
func SetJSON(ctx context.Context, kv KV, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	return kv.Set(ctx, key, string(raw))
}
