package state

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const MarketsSnapshotKey = "markets:last_snapshot"

// LoadSnapshot decodes a msgpack value stored under key into out.
// The bool reports whether a value was present.
func LoadSnapshot(ctx context.Context, store Store, key string, out any) (bool, error) {
	if store == nil {
		return false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return false, err
	}
	if err := msgpack.Unmarshal(payload, out); err != nil {
		return false, err
	}
	return true, nil
}

// SaveSnapshot stores v under key as base64 msgpack; the kv table holds text.
func SaveSnapshot(ctx context.Context, store Store, key string, v any) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, base64.StdEncoding.EncodeToString(payload))
}
