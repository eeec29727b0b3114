package storage

import "sync"

// MemoryVisited is a mutex-guarded in-process VisitedSet
type MemoryVisited struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewMemoryVisited creates an empty MemoryVisited
func NewMemoryVisited() *MemoryVisited {
	return &MemoryVisited{urls: make(map[string]struct{})}
}

// Claim implements VisitedSet
func (m *MemoryVisited) Claim(url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.urls[url]; ok {
		return false, nil
	}
	m.urls[url] = struct{}{}
	return true, nil
}

// Count implements VisitedSet
func (m *MemoryVisited) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.urls)
}

// Close implements VisitedSet
func (m *MemoryVisited) Close() error { return nil }
