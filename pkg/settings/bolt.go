package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
)

const (
	boltFileMode   os.FileMode = 0o600
	boltRootBucket             = "settings"
)

var boltTimeout = 2 * time.Second

// BoltStore is a Store backed by a bbolt database file. Each key is a nested
// bucket whose entries are ordered by an insertion sequence number.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings: creating directory: %w", err)
	}

	db, err := bbolt.Open(path, boltFileMode, &bbolt.Options{Timeout: boltTimeout})
	if err != nil {
		return nil, fmt.Errorf("settings: opening boltdb: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists([]byte(boltRootBucket))
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("settings: initializing boltdb bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// Get returns the value at index for key.
func (s *BoltStore) Get(key Key, index int) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := keyBucket(tx, key)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		k, v := nth(b, index)
		if k == nil {
			return fmt.Errorf("%w: %s[%d]", ErrNotFound, key, index)
		}
		// Values are only valid for the life of the transaction.
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

// Set replaces all values of key.
func (s *BoltStore) Set(key Key, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(boltRootBucket))
		name := keyName(key)
		if err := root.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := root.CreateBucket(name)
		if err != nil {
			return err
		}
		return put(b, value)
	})
}

// Add appends a value to key.
func (s *BoltStore) Add(key Key, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket([]byte(boltRootBucket)).CreateBucketIfNotExists(keyName(key))
		if err != nil {
			return err
		}
		return put(b, value)
	})
}

// Delete removes the value at index, or all values for DeleteAll.
func (s *BoltStore) Delete(key Key, index int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(boltRootBucket))
		b := root.Bucket(keyName(key))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		if index == DeleteAll {
			return root.DeleteBucket(keyName(key))
		}

		k, _ := nth(b, index)
		if k == nil {
			return fmt.Errorf("%w: %s[%d]", ErrNotFound, key, index)
		}
		if err := b.Delete(k); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			return root.DeleteBucket(keyName(key))
		}
		return nil
	})
}

func keyName(key Key) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(key))
}

func keyBucket(tx *bbolt.Tx, key Key) *bbolt.Bucket {
	return tx.Bucket([]byte(boltRootBucket)).Bucket(keyName(key))
}

func put(b *bbolt.Bucket, value []byte) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	return b.Put(binary.BigEndian.AppendUint64(nil, seq), value)
}

// nth returns the entry at index in sequence order, or nil.
func nth(b *bbolt.Bucket, index int) (k, v []byte) {
	if index < 0 {
		return nil, nil
	}
	c := b.Cursor()
	i := 0
	for k, v = c.First(); k != nil; k, v = c.Next() {
		if i == index {
			return k, v
		}
		i++
	}
	return nil, nil
}

var _ Store = (*BoltStore)(nil)
