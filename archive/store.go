// Package archive keeps terminal messages that were discarded from the
// live message store so they can still be queried.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/netrixframework/smscsim/config"
	"github.com/netrixframework/smscsim/log"
	"github.com/netrixframework/smscsim/types"
)

var (
	// ErrNotFound is returned when no archived message has the id
	ErrNotFound = errors.New("message not archived")

	keyPrefix = []byte("msg/")
)

// Store is a badger backed archive of message states
type Store struct {
	db     *badger.DB
	logger *log.Logger
}

// Open opens the archive. An empty path or InMemory selects an in-memory database.
func Open(c config.ArchiveConfig, logger *log.Logger) (*Store, error) {
	var opts badger.Options
	if c.InMemory || c.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(c.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(log.LogParams{"service": "Archive"}),
	}, nil
}

func key(messageID string) []byte {
	return append(append([]byte(nil), keyPrefix...), messageID...)
}

// Put archives a snapshot of m, replacing any earlier entry
func (s *Store) Put(m *types.MessageState) error {
	bytes, err := json.Marshal(m.View())
	if err != nil {
		return fmt.Errorf("failed to marshal message state: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(m.MessageID), bytes)
	})
	if err != nil {
		return fmt.Errorf("failed to archive message %s: %w", m.MessageID, err)
	}
	s.logger.With(log.LogParams{
		"message_id": m.MessageID,
		"state":      m.State.String(),
	}).Debug("Archived message")
	return nil
}

// Get returns the archived state of messageID
func (s *Store) Get(messageID string) (*types.MessageState, error) {
	var view types.MessageStateView
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(messageID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &view)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archived message %s: %w", messageID, err)
	}
	return types.FromView(&view), nil
}

// Count returns the number of archived messages
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
