package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wiki-etl/pkg/log"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

const (
	pageKeyPrefix      = "page:" // Prefix for page URL keys in DB
	maxConflictRetries = 10
)

// BadgerVisited is a VisitedSet backed by an in-memory BadgerDB instance.
// Claims are single read-then-write transactions, so conflicting concurrent
// claims for the same key are serialized by Badger's conflict detection.
type BadgerVisited struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64
}

// NewBadgerVisited opens an in-memory BadgerDB for one crawl run
func NewBadgerVisited(logger *logrus.Entry) (*BadgerVisited, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open in-memory badger: %w", utils.ErrDatabase, err)
	}

	logger.Debug("In-memory visited set initialized.")
	return &BadgerVisited{db: db, log: logger}, nil
}

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// A conflict means another claim for the same key committed first; the retry
// then observes the key and reports it as already claimed.
func (s *BadgerVisited) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Claim implements VisitedSet
func (s *BadgerVisited) Claim(url string) (bool, error) {
	key := []byte(pageKeyPrefix + url)

	var added bool
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(key, []byte{})); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet // nil when the key already exists
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in Claim: %v", err)
		return false, fmt.Errorf("%w: claiming '%s': %w", utils.ErrDatabase, url, err)
	}

	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// Count implements VisitedSet
func (s *BadgerVisited) Count() int {
	return int(s.keyCount.Load())
}

// Close implements VisitedSet
func (s *BadgerVisited) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing visited DB: %v", err)
		return err
	}
	return nil
}
