// Package triplestore keeps the working set of encoded statements in a
// single sorted storage table keyed by the 24-byte (s, p, o) encoding.
package triplestore

import (
	"context"
	"sync/atomic"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
)

var metaCount = []byte("triplestore.count")

// TripleStore is a set of encoded triples. It has a single writer; the
// triple count is tracked in memory and persisted by Flush.
type TripleStore struct {
	storage store.Storage
	count   atomic.Uint64
}

// Open loads the triple count from storage.
func Open(s store.Storage) (*TripleStore, error) {
	ts := &TripleStore{storage: s}

	txn, err := s.Begin(false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	value, err := txn.Get(store.TableMeta, metaCount)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ts, nil
	case err != nil:
		return nil, errors.Wrap(err, "failed to read triple count")
	}
	n, err := encoding.DecodeID(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode triple count")
	}
	ts.count.Store(uint64(n))
	return ts, nil
}

// Len returns the number of stored triples.
func (s *TripleStore) Len() uint64 {
	return s.count.Load()
}

// Flush persists the triple count inside txn. It is meant as a
// storage.Batch hook.
func (s *TripleStore) Flush(txn store.Transaction) error {
	return txn.Set(store.TableMeta, metaCount, encoding.EncodeID(encoding.ID(s.Len())))
}

// Contains checks if a triple exists in the store
func (s *TripleStore) Contains(t encoding.Triple) (bool, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()

	return s.ContainsTxn(txn, t)
}

// ContainsTxn checks for a triple within an existing transaction
func (s *TripleStore) ContainsTxn(txn store.Transaction, t encoding.Triple) (bool, error) {
	_, err := txn.Get(store.TableTriples, encoding.EncodeTriple(t))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertTxn adds a triple within an existing transaction. The in-memory
// count is only updated once the write succeeded, so the call may be
// retried after store.ErrTxnTooBig.
func (s *TripleStore) InsertTxn(txn store.Transaction, t encoding.Triple) (bool, error) {
	if t[0] == encoding.None || t[1] == encoding.None || t[2] == encoding.None {
		return false, errors.Newf("triple %v references the reserved id 0", t)
	}
	present, err := s.ContainsTxn(txn, t)
	if err != nil || present {
		return false, err
	}
	if err := txn.Set(store.TableTriples, encoding.EncodeTriple(t), nil); err != nil {
		return false, err
	}
	s.count.Add(1)
	return true, nil
}

// RemoveTxn deletes a triple within an existing transaction.
func (s *TripleStore) RemoveTxn(txn store.Transaction, t encoding.Triple) (bool, error) {
	present, err := s.ContainsTxn(txn, t)
	if err != nil || !present {
		return false, err
	}
	if err := txn.Delete(store.TableTriples, encoding.EncodeTriple(t)); err != nil {
		return false, err
	}
	s.count.Add(^uint64(0))
	return true, nil
}

// ForEach calls fn for every triple in (s, p, o) order.
func (s *TripleStore) ForEach(ctx context.Context, fn func(encoding.Triple) error) error {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	it, err := txn.Scan(store.TableTriples, nil, nil)
	if err != nil {
		return err
	}
	defer it.Close()

	for n := 0; it.Next(); n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		t, err := encoding.DecodeTriple(it.Key())
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}
