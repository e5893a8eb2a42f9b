package engine

import (
	"sync"
	"time"
)

type hostEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine tier last got through to each host,
// so the escalator can start there instead of re-climbing from the bottom.
// A run fetches many model pages from the same few spec and dealer sites;
// once one of them has shown a bot wall to plain HTTP, every later page
// from that site would hit it too, and each failed attempt counts as a
// blocked request against the run's limiter and security score.
type DomainMemory struct {
	store sync.Map // host (string) -> hostEntry
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts a
// background goroutine that prunes expired entries every hour.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{
		ttl:  ttl,
		now:  time.Now,
		done: make(chan struct{}),
	}
	go dm.cleanupLoop()
	return dm
}

// Get returns the remembered engine for host, or "" if none or expired.
func (dm *DomainMemory) Get(host string) string {
	val, ok := dm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(hostEntry)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(host)
		return ""
	}
	return entry.engineName
}

// Set records the engine that succeeded for host.
func (dm *DomainMemory) Set(host, engineName string) {
	dm.store.Store(host, hostEntry{engineName: engineName, expiresAt: dm.now().Add(dm.ttl)})
}

// Delete forgets host (e.g. after the remembered engine was blocked).
func (dm *DomainMemory) Delete(host string) {
	dm.store.Delete(host)
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.once.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := dm.now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(hostEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}
