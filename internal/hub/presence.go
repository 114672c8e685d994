package hub

import "sync"

// presenceRegistry is the process-wide map of user id to live connection.
// At most one entry per user: a new connection silently supersedes the prior
// one. Created at hub start, torn down at shutdown; a multi-instance
// deployment would swap this for an external shared registry behind the same
// operations.
type presenceRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{clients: make(map[string]*Client)}
}

// add registers the connection for the user and returns the superseded
// connection, if any, so the caller can close it.
func (p *presenceRegistry) add(userID string, c *Client) (prev *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev = p.clients[userID]
	p.clients[userID] = c
	return prev
}

// remove drops the user's entry only when it still points at c, so a stale
// disconnect from a superseded connection cannot evict the newer one.
func (p *presenceRegistry) remove(userID string, c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.clients[userID]; ok && cur == c {
		delete(p.clients, userID)
		return true
	}
	return false
}

func (p *presenceRegistry) get(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.clients[userID]
	return c, ok
}

// onlineIDs returns the current set of connected user ids.
func (p *presenceRegistry) onlineIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	return ids
}

// snapshot returns the current connections for lock-free iteration.
func (p *presenceRegistry) snapshot() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	return clients
}

// typingRegistry maps a typing user to the peer they are typing toward.
// Ephemeral: entries vanish on stop-signal or disconnect; there is no
// server-side timeout, clients re-signal.
type typingRegistry struct {
	mu      sync.Mutex
	targets map[string]string
}

func newTypingRegistry() *typingRegistry {
	return &typingRegistry{targets: make(map[string]string)}
}

// start records the pair. Idempotent: re-signalling the same target reports
// false so duplicate notifications can be skipped.
func (t *typingRegistry) start(userID, targetID string) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.targets[userID]; ok && cur == targetID {
		return false
	}
	t.targets[userID] = targetID
	return true
}

// stop clears the record only when it still matches targetID, so a stale
// stop-signal cannot clear a newer typing session toward someone else.
func (t *typingRegistry) stop(userID, targetID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.targets[userID]; ok && cur == targetID {
		delete(t.targets, userID)
		return true
	}
	return false
}

func (t *typingRegistry) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.targets)
}

// clear unconditionally drops the user's record, returning the target that
// should be notified that typing stopped. Used on disconnect.
func (t *typingRegistry) clear(userID string) (targetID string, had bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	targetID, had = t.targets[userID]
	if had {
		delete(t.targets, userID)
	}
	return targetID, had
}
