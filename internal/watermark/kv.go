// Package watermark persists one "last seen" timestamp per feed section.
package watermark

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// KV is the local key-value persistence primitive.
type KV interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(key string) (string, bool, error)

	// SetItem stores value under key.
	SetItem(key, value string) error
}

// BatchKV is implemented by stores that can write several keys atomically.
type BatchKV interface {
	KV
	SetItems(items map[string]string) error
}

// MemoryKV is an in-memory KV, used in tests and ephemeral sessions.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]string)}
}

func (m *MemoryKV) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryKV) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryKV) SetItems(items map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		m.items[k] = v
	}
	return nil
}

// bucketName is the bbolt bucket holding watermarks.
const bucketName = "watermarks"

// ErrNoDB is returned when a BoltKV has been closed.
var ErrNoDB = errors.New("bbolt db is nil")

// BoltKV is a KV backed by a local bbolt file.
type BoltKV struct {
	db *bbolt.DB
}

// OpenBoltKV opens (or creates) the bbolt file at path.
func OpenBoltKV(path string) (*BoltKV, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltKV{db: db}, nil
}

// Close closes the bbolt file.
func (b *BoltKV) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *BoltKV) GetItem(key string) (value string, ok bool, err error) {
	if b == nil || b.db == nil {
		return "", false, ErrNoDB
	}

	err = b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	return value, ok, err
}

func (b *BoltKV) SetItem(key, value string) error {
	return b.SetItems(map[string]string{key: value})
}

// SetItems writes every item in one transaction.
func (b *BoltKV) SetItems(items map[string]string) error {
	if b == nil || b.db == nil {
		return ErrNoDB
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketName))
		for k, v := range items {
			if err := bkt.Put([]byte(k), []byte(v)); err != nil {
				return fmt.Errorf("setting %s key: %w", k, err)
			}
		}
		return nil
	})
}
