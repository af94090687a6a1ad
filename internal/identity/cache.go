// Package identity remembers, per device, which rooms this user created and
// which participant they are in each room.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Purpose selects what is remembered for a room
type Purpose string

const (
	// PurposeCreator stores the creator token of a room
	PurposeCreator Purpose = "creator"
	// PurposeParticipant stores the participant id joined from this device
	PurposeParticipant Purpose = "participant"
)

// ErrInvalidPurpose is returned for purposes other than creator and participant
var ErrInvalidPurpose = errors.New("identity: invalid purpose")

// Cache is a device-local key value store. Entries never expire.
type Cache interface {
	Get(ctx context.Context, purpose Purpose, roomID string) (string, bool, error)
	Set(ctx context.Context, purpose Purpose, roomID, value string) error
}

func checkPurpose(p Purpose) error {
	if p != PurposeCreator && p != PurposeParticipant {
		return fmt.Errorf("%w: %q", ErrInvalidPurpose, p)
	}
	return nil
}

// key mirrors the browser storage layout: {purpose}_{room}
func key(purpose Purpose, roomID string) string {
	return string(purpose) + "_" + roomID
}

// MemoryCache keeps identities for the life of the process
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, purpose Purpose, roomID string) (string, bool, error) {
	if err := checkPurpose(purpose); err != nil {
		return "", false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key(purpose, roomID)]
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, purpose Purpose, roomID, value string) error {
	if err := checkPurpose(purpose); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(purpose, roomID)] = value
	return nil
}

// BadgerCache persists identities in a Badger database, typically under the
// CLI state directory
type BadgerCache struct {
	db *badger.DB
}

func NewBadgerCache(db *badger.DB) *BadgerCache {
	return &BadgerCache{db: db}
}

// OpenBadgerCache opens (or creates) a cache database in dir
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open identity cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func (c *BadgerCache) Get(_ context.Context, purpose Purpose, roomID string) (string, bool, error) {
	if err := checkPurpose(purpose); err != nil {
		return "", false, err
	}

	var value string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("identity:" + key(purpose, roomID)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read identity: %w", err)
	}
	return value, true, nil
}

func (c *BadgerCache) Set(_ context.Context, purpose Purpose, roomID, value string) error {
	if err := checkPurpose(purpose); err != nil {
		return err
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("identity:"+key(purpose, roomID)), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
