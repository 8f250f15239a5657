// Package kv defines the abstraction for the key/value database backing
// the ledger.
//
// The package also implements a default database implementation that is
// using bbolt as the engine (https://github.com/etcd-io/bbolt).
package kv

// Bucket is a general interface to operate on a database bucket.
type Bucket interface {
	// Get reads the key from the bucket and returns the value, or nil if
	// the key does not exist.
	Get(key []byte) []byte

	// Set assigns the value to the provided key.
	Set(key, value []byte) error

	// Delete deletes the key from the bucket.
	Delete(key []byte) error

	// ForEach iterates over all the items in the bucket in an unspecified
	// order. The iteration stops when the callback returns an error.
	ForEach(func(k, v []byte) error) error
}

// DB is a general interface to operate over a key/value database.
type DB interface {
	// View executes the provided read-only transaction in the context of
	// the bucket.
	View(bucket []byte, fn func(Bucket) error) error

	// Update executes the provided writable transaction in the context of
	// the bucket.
	Update(bucket []byte, fn func(Bucket) error) error

	// Close closes the database and frees the resources.
	Close() error
}
