// Package session keeps the rider's identity between runs and decodes
// the bearer token the backend issued.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

var identityKey = []byte("identity")

type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Store is a badger-backed key/value home for the identity.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store under dir. An empty dir keeps
// everything in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the saved identity; ok is false when none was saved.
func (s *Store) Load() (Identity, bool, error) {
	var id Identity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &id)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, fmt.Errorf("load identity: %w", err)
	}
	return id, true, nil
}

func (s *Store) Save(id Identity) error {
	b, err := json.Marshal(id)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(identityKey, b)
	})
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Holder publishes the current identity to concurrent readers.
type Holder struct {
	mu sync.RWMutex
	id Identity
}

func NewHolder(id Identity) *Holder { return &Holder{id: id} }

func (h *Holder) Get() Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.id
}

func (h *Holder) Set(id Identity) {
	h.mu.Lock()
	h.id = id
	h.mu.Unlock()
}

func (h *Holder) UserID() string { return h.Get().UserID }

func (h *Holder) Token() string { return h.Get().Token }
