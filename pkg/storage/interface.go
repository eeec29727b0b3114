package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

// VisitedSet records every canonical URL that has been admitted to a frontier.
// Implementations must be safe for concurrent use.
type VisitedSet interface {
	// Claim inserts url and reports whether this call added it.
	// Of any number of concurrent claims for the same url exactly one returns true.
	Claim(url string) (bool, error)

	// Count returns the number of claimed URLs
	Count() int

	// Close releases resources held by the set
	Close() error
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Open creates the VisitedSet named by backend
func Open(backend string, logger *logrus.Entry) (VisitedSet, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryVisited(), nil
	case BackendBadger:
		return NewBadgerVisited(logger)
	}
	return nil, fmt.Errorf("%w: unknown visited backend %q", utils.ErrConfigValidation, backend)
}
