// Package kv is the key value storage used to persist databases
package kv

// DB is a key value database
type DB interface {
	// Tx runs fn in a read only or read-write transaction
	Tx(isUpdate bool, fn func(Tx) error) error
	// NewBatch returns a write batch. Batches are not bound by transaction size limits.
	NewBatch() Batch
	// DropPrefix deletes every key starting with one of the prefixes
	DropPrefix(prefix ...[]byte) error
	Close() error
}

// IterOpts configures an iterator
type IterOpts struct {
	Prefix  []byte `json:"prefix"`
	Seek    []byte `json:"seek"`
	Reverse bool   `json:"reverse"`
}

// Tx is a database transaction
type Tx interface {
	// Get returns the value of the key, or nil if it doesn't exist
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(opts IterOpts) Iterator
}

// Iterator walks keys in order
type Iterator interface {
	Seek(key []byte)
	Close()
	Valid() bool
	Item() Item
	Next()
}

// Item is a key value pair
type Item interface {
	Key() []byte
	Value() ([]byte, error)
}

// Batch buffers writes until Flush
type Batch interface {
	Flush() error
	Set(key, value []byte) error
	Delete(key []byte) error
}
