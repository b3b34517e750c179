// Package dictionary interns canonical term strings to dense, stable
// identifiers. The mapping lives in two storage tables: a hash index from
// the xxh3-128 of the canonical form to (id, canonical), and the reverse
// id -> canonical table. Identifiers start at 1 and are never reused.
//
// Both tables are badger LSM tables, so the dictionary grows out of core:
// sorted runs spill to disk and are merged by compaction while memory stays
// bounded by memtables and the block cache.
package dictionary

import (
	"bytes"
	"context"
	"sync"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/storage"
	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnknownIdentifier is returned when resolving an id that was never
	// assigned.
	ErrUnknownIdentifier = errors.New("unknown term identifier")

	// ErrHashCollision means two distinct canonical terms share a 128-bit
	// hash key. The dictionary cannot represent both and refuses to continue.
	ErrHashCollision = errors.New("term hash collision")
)

var metaNextID = []byte("dictionary.next_id")

// Dictionary is a persistent, append-only term dictionary.
//
// Writes go through caller supplied transactions so that interning can be
// batched with the triple writes that reference the new ids. Only one
// writer may use a Dictionary at a time.
type Dictionary struct {
	storage store.Storage

	mu     sync.RWMutex
	nextID encoding.ID
}

// Open loads the dictionary state from storage. An empty storage yields an
// empty dictionary whose first id is 1.
func Open(s store.Storage) (*Dictionary, error) {
	d := &Dictionary{storage: s, nextID: 1}

	txn, err := s.Begin(false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	value, err := txn.Get(store.TableMeta, metaNextID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return d, nil
	case err != nil:
		return nil, errors.Wrap(err, "failed to read dictionary state")
	}

	next, err := encoding.DecodeID(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode dictionary state")
	}
	if next == encoding.None {
		return nil, errors.New("corrupt dictionary state: next id is 0")
	}
	d.nextID = next
	return d, nil
}

// Len returns the number of interned terms.
func (d *Dictionary) Len() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return uint64(d.nextID) - 1
}

// NextID returns the id the next new term will receive.
func (d *Dictionary) NextID() encoding.ID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nextID
}

// Flush persists the id counter inside txn. It is meant as a
// storage.Batch hook.
func (d *Dictionary) Flush(txn store.Transaction) error {
	return txn.Set(store.TableMeta, metaNextID, encoding.EncodeID(d.NextID()))
}

// Lookup returns the id of a canonical term without interning it.
func (d *Dictionary) Lookup(txn store.Transaction, canonical string) (encoding.ID, bool, error) {
	hash := encoding.HashTerm(canonical)
	value, err := txn.Get(store.TableTermIndex, hash[:])
	if errors.Is(err, store.ErrNotFound) {
		return encoding.None, false, nil
	}
	if err != nil {
		return encoding.None, false, errors.Wrap(err, "failed to read term index")
	}
	if len(value) < encoding.IDSize {
		return encoding.None, false, errors.Wrapf(encoding.ErrMalformedKey, "term index entry for %s", canonical)
	}

	if !bytes.Equal(value[encoding.IDSize:], []byte(canonical)) {
		return encoding.None, false, errors.Wrapf(ErrHashCollision, "%s and %s", canonical, value[encoding.IDSize:])
	}
	id, err := encoding.DecodeID(value[:encoding.IDSize])
	if err != nil {
		return encoding.None, false, err
	}
	return id, true, nil
}

// Intern returns the id of canonical, assigning the next unused id if the
// term is new. The second result reports whether the term was added.
//
// The reverse entry is written before the index entry, so a write cut short
// by a full transaction can simply be retried: the index never points at an
// id whose term is missing.
func (d *Dictionary) Intern(txn store.Transaction, canonical string) (encoding.ID, bool, error) {
	id, found, err := d.Lookup(txn, canonical)
	if err != nil || found {
		return id, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id = d.nextID
	if err := txn.Set(store.TableTerms, encoding.EncodeID(id), []byte(canonical)); err != nil {
		return encoding.None, false, err
	}

	hash := encoding.HashTerm(canonical)
	value := make([]byte, encoding.IDSize+len(canonical))
	copy(value, encoding.EncodeID(id))
	copy(value[encoding.IDSize:], canonical)
	if err := txn.Set(store.TableTermIndex, hash[:], value); err != nil {
		return encoding.None, false, err
	}

	d.nextID++
	return id, true, nil
}

// Resolve returns the canonical form of id.
func (d *Dictionary) Resolve(txn store.Transaction, id encoding.ID) (string, error) {
	if id == encoding.None || id >= d.NextID() {
		return "", errors.Wrapf(ErrUnknownIdentifier, "id %d", id)
	}
	value, err := txn.Get(store.TableTerms, encoding.EncodeID(id))
	if errors.Is(err, store.ErrNotFound) {
		return "", errors.Wrapf(ErrUnknownIdentifier, "id %d", id)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve id %d", id)
	}
	return string(value), nil
}

// ForEach calls fn for every term in id order.
func (d *Dictionary) ForEach(ctx context.Context, fn func(id encoding.ID, canonical string) error) error {
	txn, err := d.storage.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	it, err := txn.Scan(store.TableTerms, encoding.EncodeID(1), encoding.EncodeID(d.NextID()))
	if err != nil {
		return err
	}
	defer it.Close()

	n := 0
	for it.Next() {
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		id, err := encoding.DecodeID(it.Key())
		if err != nil {
			return err
		}
		value, err := it.Value()
		if err != nil {
			return err
		}
		if err := fn(id, string(value)); err != nil {
			return err
		}
	}
	return nil
}

// Resolver adapts the dictionary to a read-only, transaction-free view.
// It holds a read transaction open until Close.
type Resolver struct {
	d   *Dictionary
	txn store.Transaction
}

// NewResolver opens a read view of the dictionary.
func (d *Dictionary) NewResolver() (*Resolver, error) {
	txn, err := d.storage.Begin(false)
	if err != nil {
		return nil, err
	}
	return &Resolver{d: d, txn: txn}, nil
}

// Resolve returns the canonical form of id as of when the view was opened.
func (r *Resolver) Resolve(id encoding.ID) (string, error) {
	return r.d.Resolve(r.txn, id)
}

// Close releases the read transaction.
func (r *Resolver) Close() error {
	return r.txn.Rollback()
}

// NewBatch returns a write batch that persists the id counter on every
// commit.
func (d *Dictionary) NewBatch(size int, hooks ...func(store.Transaction) error) *storage.Batch {
	return storage.NewBatch(d.storage, size, append([]func(store.Transaction) error{d.Flush}, hooks...)...)
}
