package storage

import (
	"fmt"
	"testing"

	"github.com/aleksaelezovic/sparqlgen/pkg/store"
)

// cappedStorage wraps a real storage and fails writes once a transaction
// holds limit entries, the way badger does for oversized transactions.
type cappedStorage struct {
	store.Storage
	limit int
}

func (s *cappedStorage) Begin(writable bool) (store.Transaction, error) {
	txn, err := s.Storage.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &cappedTxn{Transaction: txn, limit: s.limit}, nil
}

type cappedTxn struct {
	store.Transaction
	limit, n int
}

func (t *cappedTxn) Set(table store.Table, key, value []byte) error {
	if t.n >= t.limit {
		return store.ErrTxnTooBig
	}
	t.n++
	return t.Transaction.Set(table, key, value)
}

func TestBatchCommitsEverySize(t *testing.T) {
	storage := openTestStorage(t)

	batch := NewBatch(storage, 4)
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		if err := batch.Do(func(txn store.Transaction) error {
			return txn.Set(store.TableTerms, key, nil)
		}); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if batch.commits != 3 {
		t.Errorf("expected 3 commits, got %d", batch.commits)
	}

	if n := countKeys(t, storage, store.TableTerms); n != 10 {
		t.Errorf("expected 10 keys, got %d", n)
	}
}

func TestBatchRetriesWhenTransactionIsFull(t *testing.T) {
	storage := &cappedStorage{Storage: openTestStorage(t), limit: 3}

	var counter int
	hook := func(txn store.Transaction) error {
		return txn.Set(store.TableMeta, []byte("counter"), []byte(fmt.Sprint(counter)))
	}

	batch := NewBatch(storage, 100, hook)
	for i := 0; i < 7; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		if err := batch.Do(func(txn store.Transaction) error {
			if err := txn.Set(store.TableTriples, key, nil); err != nil {
				return err
			}
			counter++
			return nil
		}); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if n := countKeys(t, storage, store.TableTriples); n != 7 {
		t.Errorf("expected 7 keys, got %d", n)
	}

	ro, _ := storage.Begin(false)
	defer ro.Rollback()
	v, err := ro.Get(store.TableMeta, []byte("counter"))
	if err != nil || string(v) != "7" {
		t.Errorf("expected counter 7, got %q (%v)", v, err)
	}
}

func TestBatchRollback(t *testing.T) {
	storage := openTestStorage(t)

	batch := NewBatch(storage, 100)
	batch.Do(func(txn store.Transaction) error {
		return txn.Set(store.TableTerms, []byte("gone"), nil)
	})
	batch.Rollback()

	if n := countKeys(t, storage, store.TableTerms); n != 0 {
		t.Errorf("expected no keys after rollback, got %d", n)
	}
}

func countKeys(t *testing.T, s store.Storage, table store.Table) int {
	t.Helper()
	ro, err := s.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer ro.Rollback()

	it, err := ro.Scan(table, nil, nil)
	if err != nil {
		t.Fatalf("failed to scan: %v", err)
	}
	defer it.Close()

	n := 0
	for it.Next() {
		n++
	}
	return n
}
