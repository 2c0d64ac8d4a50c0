package db

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hearthvm/hearth/common/assert"
	"github.com/hearthvm/hearth/common/logging"
)

var logger = logging.NewLogger("db")

// BadgerDB implements DB on top of a badger store. Tables are modelled as
// key prefixes; a transaction spans all of them.
type BadgerDB struct {
	store  *badger.DB
	ledger assert.TxLedger
}

var _ DB = (*BadgerDB)(nil)

func NewBadgerDb(path string) (*BadgerDB, error) {
	return openBadger(badger.DefaultOptions(path).WithLogger(nil))
}

func NewBadgerDbInMemory() (*BadgerDB, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerDB, error) {
	store, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerDB{store: store, ledger: assert.NewTxLedger()}, nil
}

// Close flushes and closes the store. Under the assert build tag it panics
// if any transaction is still open, printing the stack that opened it.
func (db *BadgerDB) Close() {
	db.ledger.CheckLeakyTransactions()
	if err := db.store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close badger store")
	}
}

func (db *BadgerDB) DropAll() error {
	return db.store.DropAll()
}

func (db *BadgerDB) CreateRoTx(context.Context) (RoTx, error) {
	return db.newTx(false), nil
}

func (db *BadgerDB) CreateRwTx(context.Context) (RwTx, error) {
	return &badgerRwTx{db.newTx(true)}, nil
}

func (db *BadgerDB) newTx(update bool) *badgerTx {
	tx := &badgerTx{txn: db.store.NewTransaction(update)}
	if assert.Enable {
		stack := make([]byte, 2048)
		stack = stack[:runtime.Stack(stack, false)]
		tx.finish = db.ledger.TxOnStart(stack)
	}
	return tx
}

// LogGC periodically runs badger's value log garbage collection until ctx
// is cancelled. Meant to run in its own goroutine next to a long-lived
// on-disk store.
func (db *BadgerDB) LogGC(ctx context.Context, discardRatio float64, frequency time.Duration) error {
	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	logger.Info().Msg("Value log GC started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Value log GC stopped")
			return nil
		case <-ticker.C:
			// One call rewrites at most one log file; drain until there is
			// nothing left to reclaim.
			var err error
			for err == nil {
				err = db.store.RunValueLogGC(discardRatio)
			}
			switch {
			case errors.Is(err, badger.ErrNoRewrite):
			case errors.Is(err, badger.ErrRejected):
				// The store was closed underneath us; nothing left to do.
				return nil
			default:
				logger.Error().Err(err).Msg("Value log GC failed")
				return err
			}
		}
	}
}

type badgerTx struct {
	txn    *badger.Txn
	finish assert.TxFinishCb
}

type badgerRwTx struct {
	*badgerTx
}

var (
	_ RoTx = (*badgerTx)(nil)
	_ RwTx = (*badgerRwTx)(nil)
)

// tableKey prepends the table prefix. The colon never appears in table
// names, so prefixes of distinct tables cannot shadow each other.
func tableKey(table TableName, key []byte) []byte {
	out := make([]byte, 0, len(table)+1+len(key))
	out = append(out, table...)
	out = append(out, ':')
	return append(out, key...)
}

func (tx *badgerTx) done() {
	if tx.finish != nil {
		tx.finish()
		tx.finish = nil
	}
}

func (tx *badgerTx) Rollback() {
	tx.done()
	tx.txn.Discard()
}

func (tx *badgerRwTx) Commit() error {
	tx.done()
	return tx.txn.Commit()
}

func (tx *badgerTx) Get(table TableName, key []byte) ([]byte, error) {
	item, err := tx.txn.Get(tableKey(table, key))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrKeyNotFound
	case err != nil:
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Exists(table TableName, key []byte) (bool, error) {
	switch _, err := tx.txn.Get(tableKey(table, key)); {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (tx *badgerRwTx) Put(table TableName, key, value []byte) error {
	return tx.txn.Set(tableKey(table, key), value)
}

func (tx *badgerRwTx) Delete(table TableName, key []byte) error {
	return tx.txn.Delete(tableKey(table, key))
}

// Range iterates table keys in ascending order, inclusive on both ends.
// A nil from starts at the beginning of the table, a nil to runs to its end.
func (tx *badgerTx) Range(table TableName, from, to []byte) (Iter, error) {
	it := tx.txn.NewIterator(badger.DefaultIteratorOptions)
	if it == nil {
		return nil, ErrIteratorCreate
	}

	iter := &badgerIter{
		iter:   it,
		prefix: tableKey(table, nil),
	}
	if to != nil {
		iter.last = tableKey(table, to)
	}
	it.Seek(tableKey(table, from))
	return iter, nil
}

type badgerIter struct {
	iter   *badger.Iterator
	prefix []byte
	last   []byte
}

var _ Iter = (*badgerIter)(nil)

func (it *badgerIter) HasNext() bool {
	if !it.iter.ValidForPrefix(it.prefix) {
		return false
	}
	return it.last == nil || bytes.Compare(it.iter.Item().Key(), it.last) <= 0
}

func (it *badgerIter) Next() ([]byte, []byte, error) {
	item := it.iter.Item()
	it.iter.Next()

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	return item.KeyCopy(nil)[len(it.prefix):], value, nil
}

func (it *badgerIter) Close() {
	it.iter.Close()
}
