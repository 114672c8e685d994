package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceRegistry(t *testing.T) {
	p := newPresenceRegistry()

	a := &Client{ID: "conn-1", userID: "alice"}
	assert.Nil(t, p.add("alice", a))

	got, ok := p.get("alice")
	assert.True(t, ok)
	assert.Same(t, a, got)

	t.Run("new connection supersedes the prior one", func(t *testing.T) {
		b := &Client{ID: "conn-2", userID: "alice"}
		prev := p.add("alice", b)
		assert.Same(t, a, prev)

		got, _ := p.get("alice")
		assert.Same(t, b, got)

		// the superseded connection's disconnect must not evict the newer one
		assert.False(t, p.remove("alice", a))
		got, ok := p.get("alice")
		assert.True(t, ok)
		assert.Same(t, b, got)

		// current connection disconnecting does evict
		assert.True(t, p.remove("alice", b))
		_, ok = p.get("alice")
		assert.False(t, ok)
	})
}

func TestPresenceOnlineIDs(t *testing.T) {
	p := newPresenceRegistry()
	p.add("alice", &Client{ID: "c1", userID: "alice"})
	p.add("bob", &Client{ID: "c2", userID: "bob"})

	ids := p.onlineIDs()
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)

	p.remove("bob", mustGet(t, p, "bob"))
	assert.ElementsMatch(t, []string{"alice"}, p.onlineIDs())
}

func mustGet(t *testing.T, p *presenceRegistry, userID string) *Client {
	t.Helper()
	c, ok := p.get(userID)
	if !ok {
		t.Fatalf("no client for %s", userID)
	}
	return c
}

func TestTypingRegistry(t *testing.T) {
	reg := newTypingRegistry()

	t.Run("start is idempotent per target", func(t *testing.T) {
		assert.True(t, reg.start("alice", "bob"))
		assert.False(t, reg.start("alice", "bob"))
		assert.Equal(t, 1, reg.count())
	})

	t.Run("stale stop does not clear a newer session", func(t *testing.T) {
		assert.True(t, reg.start("alice", "carol"))

		// stop toward the old target must be ignored
		assert.False(t, reg.stop("alice", "bob"))
		assert.Equal(t, 1, reg.count())

		assert.True(t, reg.stop("alice", "carol"))
		assert.Equal(t, 0, reg.count())
	})

	t.Run("clear reports the target for disconnect notification", func(t *testing.T) {
		reg.start("alice", "bob")

		target, had := reg.clear("alice")
		assert.True(t, had)
		assert.Equal(t, "bob", target)

		_, had = reg.clear("alice")
		assert.False(t, had)
	})
}

func TestShardIsStable(t *testing.T) {
	assert.Equal(t, getShard("group-42"), getShard("group-42"))
	assert.Less(t, int(getShard("group-42")), shardCount)
	assert.Equal(t, uint32(0), getShard(""))
}
