// Package localstore is the durable key-value store behind per-profile client
// state (challenges, completed challenges, app limits, daily usage).
//
// Values are JSON documents wrapped in a versioned envelope. There is no
// locking across processes: two writers of the same key race and the last
// write wins. That is acceptable for this data, which is only ever written by
// its owner.
package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KeyChallenges          = "challenges"
	KeyCompletedChallenges = "completed-challenges"
	KeyAppLimits           = "app-limits"
	KeyDailyUsage          = "daily-usage"
)

// SchemaVersion is written into every envelope.
const SchemaVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported local state version")

type Store interface {
	// Get returns the stored bytes and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes every entry or none of them.
	SetMany(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error
}

// Key scopes a state name to one profile.
func Key(profileID, name string) string {
	return "reconectar:" + profileID + ":" + name
}

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Load decodes the value stored at key into dst. It reports false when the
// key does not exist. Values written before the envelope existed are decoded
// as-is.
func Load(ctx context.Context, s Store, key string, dst interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	data, err := unwrap(raw)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Save encodes v into a versioned envelope and stores it at key.
func Save(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := encode(key, v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw)
}

// SaveAll is Save for several keys in one atomic write.
func SaveAll(ctx context.Context, s Store, values map[string]interface{}) error {
	entries := make(map[string][]byte, len(values))
	for key, v := range values {
		raw, err := encode(key, v)
		if err != nil {
			return err
		}
		entries[key] = raw
	}
	return s.SetMany(ctx, entries)
}

func encode(key string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Version: SchemaVersion, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return raw, nil
}

func unwrap(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Version == 0 || env.Data == nil {
		// a legacy object value
		return trimmed, nil
	}
	if env.Version > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	return env.Data, nil
}
