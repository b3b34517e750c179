package store

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
	// ErrTxnTooBig is returned by Set/Delete when the transaction cannot hold
	// more writes. Callers commit and retry in a fresh transaction.
	ErrTxnTooBig = errors.New("transaction too big")
)

// Storage is the interface for the underlying key-value store
type Storage interface {
	// Begin starts a new transaction
	Begin(writable bool) (Transaction, error)

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Transaction represents a database transaction with snapshot isolation.
// Reads observe the transaction's own uncommitted writes.
type Transaction interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates over a key range [start, end)
	// If start is nil, begins from the first key
	// If end is nil, scans until the last key
	Scan(table Table, start, end []byte) (Iterator, error)

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Iterator iterates over key-value pairs in ascending key order
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical table/column family in the storage
type Table byte

const (
	// Counters and format markers: name -> value
	TableMeta Table = iota

	// Term index: xxh3-128(canonical term) -> id ++ canonical term
	TableTermIndex

	// Term table: id -> canonical term
	TableTerms

	// Encoded statements: s ++ p ++ o (big endian ids) -> empty
	TableTriples

	// Merge scratch space: foreign id -> local id
	TableRemap

	// Total number of tables
	TableCount
)

func (t Table) String() string {
	switch t {
	case TableMeta:
		return "meta"
	case TableTermIndex:
		return "term_index"
	case TableTerms:
		return "terms"
	case TableTriples:
		return "triples"
	case TableRemap:
		return "remap"
	default:
		return "unknown"
	}
}

// TablePrefix returns a byte prefix for a table to namespace keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	prefix := TablePrefix(table)
	result := make([]byte, len(prefix)+len(key))
	copy(result, prefix)
	copy(result[len(prefix):], key)
	return result
}
