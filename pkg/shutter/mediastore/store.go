// Package mediastore keeps a persistent index of the images the saver has
// written, so they can be listed and looked up after a restart.
package mediastore

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no record exists for a path.
var ErrNotFound = errors.New("media record not found")

// Store wraps Badger for the media index.
type Store struct {
	db *badger.DB
}

// Open opens or creates a media index at the given directory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening media index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put registers a saved image. A record for the same path replaces the
// previous one.
func (s *Store) Put(rec *Record) error {
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	value, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := recordKey(rec.SavedAt, rec.Path)

	return s.db.Update(func(txn *badger.Txn) error {
		if old, err := txn.Get(pathKey(rec.Path)); err == nil {
			oldKey, err := old.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(oldKey); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(pathKey(rec.Path), key)
	})
}

// Get returns the record for path.
func (s *Store) Get(path string) (*Record, error) {
	var rec Record

	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get(pathKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(rec.Decode)
	})

	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record for path. Deleting an unknown path is not an
// error.
func (s *Store) Delete(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		idx, err := txn.Get(pathKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(pathKey(path))
	})
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(limit int) ([]*Record, error) {
	var out []*Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key <= seek.
		seek := append(append([]byte{}, recordPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(recordPrefix); it.Next() {
			var rec Record
			if err := it.Item().Value(rec.Decode); err != nil {
				return fmt.Errorf("decoding record: %w", err)
			}
			out = append(out, &rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count() (int, error) {
	n := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			n++
		}
		return nil
	})

	return n, err
}
