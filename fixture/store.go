// Package fixture holds pre-recorded response payloads keyed by the
// operation they answer.
//
// A Store is built once from a dataset (the embedded default, a YAML file or
// a recorded SQLite database) and never changes afterwards. A lookup for a
// key the dataset does not contain is an error: it means the scenario under
// test was never recorded.
package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound     = errors.New("fixture: not found")
	ErrDuplicateKey = errors.New("fixture: duplicate key")
	ErrInvalidKey   = errors.New("fixture: invalid key")
)

// Record is one keyed payload.
type Record struct {
	Key     Key
	Payload json.RawMessage
}

type Store struct {
	payloads map[Key]json.RawMessage
}

// FromRecords builds a store. Keys must be unique and carry at least a
// domain and an operation.
func FromRecords(records []Record) (*Store, error) {
	payloads := make(map[Key]json.RawMessage, len(records))
	for _, rec := range records {
		if rec.Key.Domain == "" || rec.Key.Operation == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, rec.Key.String())
		}
		if _, exists := payloads[rec.Key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Key)
		}
		if !json.Valid(rec.Payload) {
			return nil, fmt.Errorf("fixture %s: payload is not valid JSON", rec.Key)
		}
		payloads[rec.Key] = clone(rec.Payload)
	}
	return &Store{payloads: payloads}, nil
}

// Get returns a copy of the payload stored under key.
func (s *Store) Get(key Key) (json.RawMessage, error) {
	payload, ok := s.payloads[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return clone(payload), nil
}

// Decode unmarshals the payload stored under key into v.
func (s *Store) Decode(key Key, v any) error {
	payload, ok := s.payloads[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode fixture %s: %w", key, err)
	}
	return nil
}

func (s *Store) Len() int {
	return len(s.payloads)
}

// Keys returns every key ordered by its string form.
func (s *Store) Keys() []Key {
	keys := make([]Key, 0, len(s.payloads))
	for k := range s.payloads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Records returns every payload in Keys order.
func (s *Store) Records() []Record {
	keys := s.Keys()
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, Record{Key: k, Payload: clone(s.payloads[k])})
	}
	return out
}

func clone(raw json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), raw...)
}
