// Package storage provides the durable string-keyed store that backs the
// account slots and the active wallet type across process restarts.
package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Store is a durable string-keyed store with local-storage semantics.
// Get on an absent key reports ok == false and no error.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// GetJSON decodes the entry under key into out. It reports false when the
// key is absent.
func GetJSON(s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v under key. A nil v (including a typed nil pointer)
// removes the key, so a literal "null" is never stored.
func SetJSON(s Store, key string, v any) error {
	if isNil(v) {
		return s.Remove(key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
