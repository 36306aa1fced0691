package ldb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key doesn't exist.
var ErrNotFound = errors.New("not found")

// LevelDB defines a thin wrapper around leveldb.
type LevelDB struct {
	ldb *leveldb.DB
}

// NewLevelDB opens a leveldb instance defined by the given path.
func NewLevelDB(path string) (*LevelDB, error) {
	// Open leveldb. If it doesn't exist, create it.
	ldb, err := leveldb.OpenFile(path, Options())

	// If the database is corrupted, attempt to recover.
	if _, corrupted := err.(*ldbErrors.ErrCorrupted); corrupted {
		log.Warnf("LevelDB corruption detected for path %s: %s",
			path, err)
		ldb, err = leveldb.RecoverFile(path, Options())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		log.Warnf("LevelDB recovered from corruption for path %s",
			path)
	}

	// If the database cannot be opened for any other
	// reason, return the error as-is.
	if err != nil {
		return nil, errors.WithStack(err)
	}

	db := &LevelDB{
		ldb: ldb,
	}
	return db, nil
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	return errors.WithStack(db.ldb.Close())
}

// Put sets the value for the given key. It overwrites
// any previous value for that key.
func (db *LevelDB) Put(key []byte, value []byte) error {
	return errors.WithStack(db.ldb.Put(key, value, nil))
}

// Get gets the value for the given key. It returns
// ErrNotFound if the given key does not exist.
func (db *LevelDB) Get(key []byte) ([]byte, error) {
	data, err := db.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "key %x not found", key)
		}
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Has returns true if the database does contains the
// given key.
func (db *LevelDB) Has(key []byte) (bool, error) {
	exists, err := db.ldb.Has(key, nil)
	return exists, errors.WithStack(err)
}

// Delete deletes the value for the given key. Deleting a key
// that doesn't exist is not an error.
func (db *LevelDB) Delete(key []byte) error {
	return errors.WithStack(db.ldb.Delete(key, nil))
}

// Batch collects writes that are applied atomically by Write.
type Batch struct {
	batch leveldb.Batch
}

// Put adds a put to the batch.
func (b *Batch) Put(key []byte, value []byte) {
	b.batch.Put(key, value)
}

// Delete adds a delete to the batch.
func (b *Batch) Delete(key []byte) {
	b.batch.Delete(key)
}

// Len returns the number of writes in the batch.
func (b *Batch) Len() int {
	return b.batch.Len()
}

// Write applies batch atomically.
func (db *LevelDB) Write(batch *Batch) error {
	return errors.WithStack(db.ldb.Write(&batch.batch, nil))
}

// ForEach calls f with every key/value pair whose key starts with prefix,
// in key order, until f returns false or an error. The slices passed to f
// are only valid during the call.
func (db *LevelDB) ForEach(prefix []byte, f func(key []byte, value []byte) (bool, error)) error {
	iterator := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iterator.Release()

	for iterator.Next() {
		shouldContinue, err := f(iterator.Key(), iterator.Value())
		if err != nil {
			return err
		}
		if !shouldContinue {
			break
		}
	}
	return errors.WithStack(iterator.Error())
}

// Last returns the greatest key starting with prefix and its value, or
// ErrNotFound if there is none.
func (db *LevelDB) Last(prefix []byte) (key []byte, value []byte, err error) {
	iterator := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iterator.Release()

	if !iterator.Last() {
		if err := iterator.Error(); err != nil {
			return nil, nil, errors.WithStack(err)
		}
		return nil, nil, errors.Wrapf(ErrNotFound, "no key with prefix %x", prefix)
	}
	key = append([]byte(nil), iterator.Key()...)
	value = append([]byte(nil), iterator.Value()...)
	return key, value, nil
}

// IsNotFoundError checks whether an error is an ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
