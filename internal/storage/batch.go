package storage

import (
	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
)

// DefaultBatchSize is the number of operations after which a Batch commits.
const DefaultBatchSize = 10000

// Batch spreads a long stream of writes over a sequence of transactions.
// It commits every Size operations, and whenever badger reports that the
// current transaction is full.
//
// Operations passed to Do must tolerate being re-run after a partial write:
// a write that failed with store.ErrTxnTooBig is retried in a fresh
// transaction once the previous one has been committed.
//
// Flush hooks run inside the transaction right before every commit; they
// persist in-memory counters alongside the data they describe.
type Batch struct {
	storage store.Storage
	txn     store.Transaction
	size    int
	ops     int
	hooks   []func(store.Transaction) error
	commits int
}

// NewBatch starts a write batch. size <= 0 selects DefaultBatchSize.
func NewBatch(s store.Storage, size int, hooks ...func(store.Transaction) error) *Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batch{storage: s, size: size, hooks: hooks}
}

// Do runs op inside the current transaction.
func (b *Batch) Do(op func(store.Transaction) error) error {
	if err := b.ensure(); err != nil {
		return err
	}

	err := op(b.txn)
	if errors.Is(err, store.ErrTxnTooBig) {
		// The full transaction cannot take the hook writes either, so the
		// data goes first and the counters follow in a fresh transaction.
		if err := b.commitTxn(false); err != nil {
			return err
		}
		if err := b.ensure(); err != nil {
			return err
		}
		if err := b.runHooks(b.txn); err != nil {
			return err
		}
		err = op(b.txn)
	}
	if err != nil {
		return err
	}

	b.ops++
	if b.ops >= b.size {
		return b.Commit()
	}
	return nil
}

// Commit runs the flush hooks and commits the pending transaction, if any.
func (b *Batch) Commit() error {
	if b.txn == nil {
		return nil
	}
	return b.commitTxn(true)
}

// Rollback discards pending writes.
func (b *Batch) Rollback() {
	if b.txn != nil {
		b.txn.Rollback()
		b.txn = nil
		b.ops = 0
	}
}

func (b *Batch) ensure() error {
	if b.txn != nil {
		return nil
	}
	txn, err := b.storage.Begin(true)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	b.txn = txn
	b.ops = 0
	return nil
}

func (b *Batch) runHooks(txn store.Transaction) error {
	for _, hook := range b.hooks {
		if err := hook(txn); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) commitTxn(withHooks bool) error {
	txn := b.txn
	b.txn = nil
	b.ops = 0
	defer txn.Rollback()

	hooksPending := false
	if withHooks {
		err := b.runHooks(txn)
		if errors.Is(err, store.ErrTxnTooBig) {
			hooksPending = true
		} else if err != nil {
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	b.commits++

	if hooksPending {
		return b.commitHooksAlone()
	}
	return nil
}

func (b *Batch) commitHooksAlone() error {
	txn, err := b.storage.Begin(true)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer txn.Rollback()
	if err := b.runHooks(txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	b.commits++
	return nil
}
