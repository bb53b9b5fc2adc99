package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease is an exclusive reservation of one node.
type Lease struct {
	Host  string
	Token string
}

type leaseEntry struct {
	token string
	// expires is zero while the holder is still probing.
	expires time.Time
}

// Arbiter serializes admission decisions per node. A node is leased before it is probed and,
// once a job was placed on it, stays leased for the TTL so the new process shows up in the
// next probe before another job is admitted.
type Arbiter struct {
	mu     sync.Mutex
	leases map[string]leaseEntry
	ttl    time.Duration
	now    func() time.Time
}

// NewArbiter creates an Arbiter whose placement leases last ttl.
func NewArbiter(ttl time.Duration) *Arbiter {
	return &Arbiter{
		leases: make(map[string]leaseEntry),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TryAcquire leases host unless another holder has it.
func (a *Arbiter) TryAcquire(host string) (Lease, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.leases[host]; ok {
		if e.expires.IsZero() || a.now().Before(e.expires) {
			return Lease{}, false
		}
	}
	l := Lease{Host: host, Token: uuid.NewString()}
	a.leases[host] = leaseEntry{token: l.Token}
	return l, true
}

// Release gives up a lease that led to no placement.
func (a *Arbiter) Release(l Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.leases[l.Host]; ok && e.token == l.Token {
		delete(a.leases, l.Host)
	}
}

// Hold keeps the lease for the TTL after a placement. A zero TTL releases it immediately.
func (a *Arbiter) Hold(l Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.leases[l.Host]
	if !ok || e.token != l.Token {
		return
	}
	if a.ttl <= 0 {
		delete(a.leases, l.Host)
		return
	}
	e.expires = a.now().Add(a.ttl)
	a.leases[l.Host] = e
}
