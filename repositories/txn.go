package repositories

import (
	goerrors "errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how many times an optimistic transaction is
// replayed after badger reports a read/write conflict.
const maxConflictRetries = 32

// update runs fn in a read-write transaction and replays it on conflict.
// fn must be idempotent: it sees a fresh snapshot on every attempt.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if !goerrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case goerrors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// getUint reads a decimal counter stored as a string value. Missing keys read as zero.
func getUint(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var value uint64
	err = item.Value(func(val []byte) error {
		value, err = strconv.ParseUint(string(val), 10, 64)
		return err
	})
	return value, err
}

func setUint(txn *badger.Txn, key []byte, value uint64) error {
	return txn.Set(key, []byte(strconv.FormatUint(value, 10)))
}
