package dictionary

import (
	"context"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
)

// TermSource enumerates the terms of another dictionary, typically a
// snapshot, in ascending id order.
type TermSource interface {
	ForEachTerm(ctx context.Context, fn func(id encoding.ID, canonical string) error) error
}

// Remap translates identifiers of a merged source into this dictionary's
// identifiers. The mapping is kept in storage, not in memory.
type Remap struct {
	storage store.Storage

	// identity is set when every source id mapped onto itself, which is
	// the case when importing into an empty dictionary.
	identity bool
	size     uint64
}

// Len returns the number of source terms that were mapped.
func (r *Remap) Len() uint64 {
	return r.size
}

// Map translates a source id.
func (r *Remap) Map(txn store.Transaction, foreign encoding.ID) (encoding.ID, error) {
	if r.identity {
		if foreign == encoding.None || uint64(foreign) > r.size {
			return encoding.None, errors.Wrapf(ErrUnknownIdentifier, "source id %d", foreign)
		}
		return foreign, nil
	}
	value, err := txn.Get(store.TableRemap, encoding.EncodeID(foreign))
	if errors.Is(err, store.ErrNotFound) {
		return encoding.None, errors.Wrapf(ErrUnknownIdentifier, "source id %d", foreign)
	}
	if err != nil {
		return encoding.None, err
	}
	return encoding.DecodeID(value)
}

// MapTriple translates all three ids of a source triple.
func (r *Remap) MapTriple(txn store.Transaction, t encoding.Triple) (encoding.Triple, error) {
	var out encoding.Triple
	for i, id := range t {
		local, err := r.Map(txn, id)
		if err != nil {
			return out, err
		}
		out[i] = local
	}
	return out, nil
}

// Release drops the stored mapping.
func (r *Remap) Release() error {
	if r.identity {
		return nil
	}
	return clearRemap(r.storage)
}

// Merge interns every term of src. Terms already present keep their id;
// new terms receive fresh ids in source order. The returned Remap
// translates source ids to local ids.
func (d *Dictionary) Merge(ctx context.Context, src TermSource, batchSize int) (*Remap, error) {
	if err := clearRemap(d.storage); err != nil {
		return nil, err
	}

	remap := &Remap{storage: d.storage, identity: true}
	batch := d.NewBatch(batchSize)
	defer batch.Rollback()

	err := src.ForEachTerm(ctx, func(foreign encoding.ID, canonical string) error {
		return batch.Do(func(txn store.Transaction) error {
			local, _, err := d.Intern(txn, canonical)
			if err != nil {
				return err
			}
			if err := txn.Set(store.TableRemap, encoding.EncodeID(foreign), encoding.EncodeID(local)); err != nil {
				return err
			}
			remap.size++
			if local != foreign {
				remap.identity = false
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge dictionary")
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	if remap.identity {
		// The table is redundant once we know the mapping is trivial.
		if err := clearRemap(d.storage); err != nil {
			return nil, err
		}
	}
	return remap, nil
}

func clearRemap(s store.Storage) error {
	for {
		txn, err := s.Begin(true)
		if err != nil {
			return err
		}

		it, err := txn.Scan(store.TableRemap, nil, nil)
		if err != nil {
			txn.Rollback()
			return err
		}

		var keys [][]byte
		for it.Next() && len(keys) < 10000 {
			keys = append(keys, append([]byte(nil), it.Key()...))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(store.TableRemap, key); err != nil {
				txn.Rollback()
				return err
			}
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
	}
}
