package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in storage
const Separator = "/"

// Key is a hierarchical key such as {"queue", "entry", "<id>"}
type Key []string

// String returns the encoded key
func (k Key) String() string {
	return strings.Join(k, Separator)
}

func (k Key) bytes() []byte {
	return []byte(k.String())
}

// prefix returns the scan prefix for k. A trailing separator keeps
// "queue/a" from matching "queue/ab".
func (k Key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return []byte(k.String() + Separator)
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), Separator))
}

// Entry is one key/value pair yielded by List
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the persistence owned by the surrounding application
type Store interface {
	// Get returns ErrNotFound when key is absent
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}
