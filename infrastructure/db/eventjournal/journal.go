// Package eventjournal keeps the events of the protocol engine in LevelDB,
// in the order they were published, for the indexer to consume at its own
// pace.
package eventjournal

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	"github.com/slpdexdb/slpdexd/infrastructure/db/ldb"
)

var entryBucket = ldb.MakeBucket([]byte("journal"), []byte("entries"))

// Journal is an events.Sink that appends every event it's given to the
// database.
type Journal struct {
	database *ldb.LevelDB

	lock         sync.Mutex
	nextSequence uint64
}

// New opens the journal kept in database. Sequence numbers continue from
// the last entry already there.
func New(database *ldb.LevelDB) (*Journal, error) {
	journal := &Journal{database: database}

	lastKey, _, err := database.Last(entryBucket.Path())
	if err != nil && !ldb.IsNotFoundError(err) {
		return nil, err
	}
	if err == nil {
		journal.nextSequence = deserializeSequence(entryBucket.Suffix(lastKey)) + 1
	}
	log.Infof("Opened the event journal at sequence %d", journal.nextSequence)
	return journal, nil
}

// Publish implements events.Sink. Events that can't be journaled are
// logged and dropped.
func (j *Journal) Publish(event events.Event) {
	_, err := j.Append(event)
	if err != nil {
		log.Errorf("Couldn't journal %s event: %+v", event.Kind(), err)
	}
}

// Append journals event and returns its sequence number.
func (j *Journal) Append(event events.Event) (uint64, error) {
	entry, err := newEntry(event)
	if err != nil {
		return 0, err
	}

	j.lock.Lock()
	defer j.lock.Unlock()

	entry.Sequence = j.nextSequence
	err = j.database.Put(entryBucket.Key(serializeSequence(entry.Sequence)), serializeEntry(entry))
	if err != nil {
		return 0, err
	}
	j.nextSequence++
	log.Tracef("Journaled %s event from %s as #%d", entry.Kind, entry.Peer, entry.Sequence)
	return entry.Sequence, nil
}

// NextSequence returns the sequence number the next entry will get.
func (j *Journal) NextSequence() uint64 {
	j.lock.Lock()
	defer j.lock.Unlock()

	return j.nextSequence
}

// Entries returns up to limit entries, starting at sequence number from.
func (j *Journal) Entries(from uint64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return nil, errors.Errorf("limit must be positive, got %d", limit)
	}
	entries := make([]*Entry, 0, limit)
	err := j.database.ForEach(entryBucket.Path(), func(key []byte, value []byte) (bool, error) {
		if deserializeSequence(entryBucket.Suffix(key)) < from {
			return true, nil
		}
		entry, err := deserializeEntry(value)
		if err != nil {
			return false, err
		}
		entries = append(entries, entry)
		return len(entries) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune deletes every entry with a sequence number lower than before,
// once the indexer consumed them.
func (j *Journal) Prune(before uint64) error {
	batch := &ldb.Batch{}
	err := j.database.ForEach(entryBucket.Path(), func(key []byte, _ []byte) (bool, error) {
		if deserializeSequence(entryBucket.Suffix(key)) >= before {
			return false, nil
		}
		batch.Delete(append([]byte{}, key...))
		return true, nil
	})
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	log.Debugf("Pruning %d journal entries", batch.Len())
	return j.database.Write(batch)
}

// Sequences are big endian so that key order is sequence order.
func serializeSequence(sequence uint64) []byte {
	serialized := make([]byte, 8)
	binary.BigEndian.PutUint64(serialized, sequence)
	return serialized
}

func deserializeSequence(serialized []byte) uint64 {
	return binary.BigEndian.Uint64(serialized)
}
