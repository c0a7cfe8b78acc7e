package session

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/proofread/proofread"
)

// snapshotTimeFormat is fixed-width so Badger's lexicographic key order is
// also chronological order.
const snapshotTimeFormat = "2006-01-02T15:04:05.000000000Z"

// Store persists timestamped session snapshots in a BadgerDB directory.
// Snapshot values are snappy-compressed and checksummed so truncated writes
// are detected on load.
type Store struct {
	directory string
	db        *badger.DB
}

// OpenStore opens (creating if necessary) a snapshot store at the given
// directory.
func OpenStore(directory string) (*Store, error) {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		proofread.Infof("Session store not already at path (%s). Creating directory...\n", directory)
		if err := os.MkdirAll(directory, 0744); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %v", directory, err)
		}
	}
	opts := badger.DefaultOptions(directory)
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = false
	opts.Logger = nil

	proofread.Infof("Opening session store @ path %s\n", directory)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{directory: directory, db: db}, nil
}

// Save writes a snapshot of the session keyed by the current UTC time and
// clears the session's dirty flags.
func (store *Store) Save(s *Session) error {
	timer := proofread.NewTimeLog()
	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("can't encode session %s: %v", s.UUID, err)
	}
	serialized, err := proofread.SerializeData(data, proofread.Snappy, proofread.CRC32)
	if err != nil {
		return fmt.Errorf("can't serialize session %s: %v", s.UUID, err)
	}
	key := []byte(time.Now().UTC().Format(snapshotTimeFormat))
	err = store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, serialized)
	})
	if err != nil {
		return err
	}
	s.ClearDirty()
	timer.Infof("Saved session %s snapshot %s (%s)", s.UUID, key,
		humanize.Bytes(uint64(len(serialized))))
	return nil
}

// Latest returns the most recent snapshot's JSON, or found=false when the
// store is empty.
func (store *Store) Latest() (data []byte, timestamp string, found bool, err error) {
	err = store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		// Snapshot keys are ASCII timestamps, so 0xFF seeks past them all.
		it.Seek([]byte{0xFF})
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		timestamp = string(item.KeyCopy(nil))
		serialized, copyErr := item.ValueCopy(nil)
		if copyErr != nil {
			return copyErr
		}
		data, copyErr = proofread.DeserializeData(serialized)
		if copyErr != nil {
			return fmt.Errorf("snapshot %s is corrupt: %v", timestamp, copyErr)
		}
		found = true
		return nil
	})
	return
}

// List returns the timestamps of all stored snapshots in chronological
// order.
func (store *Store) List() ([]string, error) {
	var timestamps []string
	err := store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			timestamps = append(timestamps, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return timestamps, err
}

// Get returns the snapshot stored under the given timestamp.
func (store *Store) Get(timestamp string) ([]byte, error) {
	var data []byte
	err := store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(timestamp))
		if err != nil {
			return err
		}
		serialized, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data, err = proofread.DeserializeData(serialized)
		return err
	})
	return data, err
}

// Close releases the underlying BadgerDB.
func (store *Store) Close() {
	if store.db != nil {
		if err := store.db.Close(); err != nil {
			proofread.Errorf("Error closing session store @ %s: %v\n", store.directory, err)
		}
	}
}
