package dispatcher

import "sync"

// agentLocks hands out one advisory mutex per agent id. Holding the lock
// means a drain is in progress for that agent; acquisition is always
// non-blocking so a scan cycle never waits on a busy agent.
type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[string]*sync.Mutex)}
}

// tryAcquire attempts the agent's lock without blocking. On success the
// returned release func must be called exactly once.
func (l *agentLocks) tryAcquire(agentID string) (func(), bool) {
	l.mu.Lock()
	m, ok := l.locks[agentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[agentID] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
