package storage

import (
	"bytes"

	"github.com/aleksaelezovic/sparqlgen/pkg/store"
	"github.com/cockroachdb/errors"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Options tunes how the badger database is opened.
type Options struct {
	// InMemory keeps everything in RAM; Path is ignored.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's own log output. Nil silences it.
	Logger *logrus.Logger
}

// BadgerStorage implements Storage using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage creates a new BadgerDB-backed storage
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	return OpenBadger(path, Options{})
}

// OpenBadger opens a badger database at path with the given options.
func OpenBadger(path string, o Options) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(o.SyncWrites)
	opts.Logger = nil
	if o.Logger != nil {
		// *logrus.Entry satisfies badger.Logger; badger is chatty at info.
		opts.Logger = badgerLogger{o.Logger.WithField("component", "badger")}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger db at %q", path)
	}

	return &BadgerStorage{db: db}, nil
}

// Begin starts a new transaction
func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{
		txn:      txn,
		writable: writable,
	}, nil
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// BadgerTransaction implements Transaction using BadgerDB
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key
func (t *BadgerTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return item.ValueCopy(nil)
}

// Set stores a key-value pair
func (t *BadgerTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return mapWriteErr(t.txn.Set(store.PrefixKey(table, key), value))
}

// Delete removes a key
func (t *BadgerTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return mapWriteErr(t.txn.Delete(store.PrefixKey(table, key)))
}

func mapWriteErr(err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return store.ErrTxnTooBig
	}
	return err
}

// Scan iterates over a key range [start, end) within one table.
// Values are not prefetched; most scans here only look at keys.
func (t *BadgerTransaction) Scan(table store.Table, start, end []byte) (store.Iterator, error) {
	tablePrefix := store.TablePrefix(table)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = tablePrefix

	seekKey := tablePrefix
	if start != nil {
		seekKey = store.PrefixKey(table, start)
	}

	var endKey []byte
	if end != nil {
		endKey = store.PrefixKey(table, end)
	}

	return &BadgerIterator{
		it:      t.txn.NewIterator(opts),
		prefix:  tablePrefix,
		endKey:  endKey,
		seekKey: seekKey,
	}, nil
}

// Commit commits the transaction
func (t *BadgerTransaction) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call after Commit.
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements Iterator using BadgerDB
type BadgerIterator struct {
	it       *badger.Iterator
	prefix   []byte // table prefix, stripped from keys
	endKey   []byte
	seekKey  []byte
	started  bool
	hasValue bool
}

// Next advances to the next item
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else {
		i.it.Next()
	}

	if !i.it.Valid() {
		i.hasValue = false
		return false
	}

	if i.endKey != nil && bytes.Compare(i.it.Item().Key(), i.endKey) >= 0 {
		i.hasValue = false
		return false
	}

	i.hasValue = true
	return true
}

// Key returns the current key without the table prefix. The slice is only
// valid until the next call to Next.
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}

	key := i.it.Item().Key()
	if len(key) > len(i.prefix) {
		return key[len(i.prefix):]
	}
	return nil
}

// Value returns a copy of the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, store.ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}

// badgerLogger demotes badger's info chatter to debug.
type badgerLogger struct {
	*logrus.Entry
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Entry.Debugf(format, args...)
}
