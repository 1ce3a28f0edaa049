package store

import (
	"github.com/pkg/errors"
)

var (
	ErrClosed = errors.New("store is closed")
	// ErrNothingToCompact is returned by Compact when there is no space to reclaim yet.
	ErrNothingToCompact = errors.New("nothing to compact")
)

// KV is the byte oriented key value store shared by every unit.
// Units partition the key space with Key and Prefix.
type KV interface {
	// Get reports false when the key is absent.
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	// Delete of an absent key is not an error.
	Delete(key []byte) error
	// Scan walks every key starting with prefix until fn returns false.
	Scan(prefix []byte, fn func(key, value []byte) bool) error
	// Update applies all writes of fn atomically, nothing is written if fn fails.
	Update(fn func(batch Batch) error) error
	Close() error
}

type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Compacter is implemented by stores able to reclaim space of overwritten keys.
type Compacter interface {
	Compact() error
}

const keySeparator = ":"

func Key(prefix, id string) []byte {
	return []byte(prefix + keySeparator + id)
}

func Prefix(prefix string) []byte {
	return []byte(prefix + keySeparator)
}

// TrimPrefix returns the entity id of a key built by Key.
func TrimPrefix(prefix string, key []byte) string {
	return string(key[len(prefix)+len(keySeparator):])
}
