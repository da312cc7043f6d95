package cache

import (
	"sync"
	"time"
)

// LeaseRegistry hands out short-lived advisory leases keyed by normalized
// company name. The pipeline acquires a lease before fetching and releases it
// at a terminal state, so overlapping runs for the same name fail fast
// instead of interleaving delete/insert pairs in storage. Leases expire after
// a TTL so a crashed run cannot wedge a name forever.
type LeaseRegistry struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewLeaseRegistry creates a registry whose leases expire after ttl.
func NewLeaseRegistry(ttl time.Duration) *LeaseRegistry {
	return &LeaseRegistry{
		held: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TryAcquire takes the lease for key if it is free or expired. Returns false
// without blocking when another run holds it.
func (l *LeaseRegistry) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && l.now().Before(expiry) {
		return false
	}
	l.held[key] = l.now().Add(l.ttl)
	return true
}

// Release frees the lease for key.
func (l *LeaseRegistry) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
