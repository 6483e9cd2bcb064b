package credential

import (
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// APIKeyName is the slot holding the vision endpoint's API key
const APIKeyName = "openai_api_key"

const bucketName = "settings"

// Store holds named secrets. Values never expire.
type Store interface {
	// Get returns the value for name; ok is false when nothing is stored
	Get(name string) (value string, ok bool, err error)

	// Set stores value under name, replacing any previous value
	Set(name, value string) error
}

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the store at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get retrieves a value by name. Empty values count as absent.
func (b *BoltStore) Get(name string) (string, bool, error) {
	var value string
	err := b.db.View(func(tx *bbolt.Tx) error {
		value = string(tx.Bucket([]byte(bucketName)).Get([]byte(name)))
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", name, err)
	}
	return value, value != "", nil
}

// Set stores a trimmed value under name
func (b *BoltStore) Set(name, value string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(name), []byte(strings.TrimSpace(value)))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Mask hides all but the last four characters of a secret
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
