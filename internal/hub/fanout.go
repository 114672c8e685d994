package hub

import (
	"Cryptalk/internal/event"
	"Cryptalk/internal/model"
	"Cryptalk/internal/service"
	"log"
	"time"
)

// The fanout router delivers persisted messages and mutation events to the
// right set of live connections. Pushes are best effort: a full egress queue
// or a vanished connection drops the event, and the recipient catches up via
// a history fetch.

// RouteDirect pushes a newMessage event to the single recipient's live
// connection. The returned liveness drives the delivery handshake: the
// delivered flag only flips on an explicit acknowledgement from that
// connection, never on "connection exists".
func (h *Hub) RouteDirect(msg *model.Message) bool {
	if msg.ReceiverID == nil || *msg.ReceiverID == "" {
		return false
	}
	return h.EmitToUser(*msg.ReceiverID, event.NewEvent(event.EventNewMessage, msg))
}

// RouteGroup pushes a newGroupMessage event to every member whose connection
// has joined the group's room.
func (h *Hub) RouteGroup(msg *model.Message, memberIDs []string) {
	if !msg.IsGroup() {
		return
	}

	ev := event.NewEvent(event.EventNewGroupMessage, msg)
	h.EmitToRoom(*msg.GroupID, ev)

	// members with a live connection that has not opened the conversation
	// still get the push directly, mirroring the personal-channel delivery
	inRoom := h.roomMembers(*msg.GroupID)
	outside := service.Filter(memberIDs, func(id string) bool {
		_, joined := inRoom[id]
		return id != msg.SenderID && !joined
	})
	for _, id := range outside {
		h.EmitToUser(id, ev)
	}
}

// EmitToUser pushes one event to a user's live connection, reporting whether
// one existed. A push to a closing connection fails softly.
func (h *Hub) EmitToUser(userID string, ev event.WsEvent) bool {
	c, ok := h.presence.get(userID)
	if !ok {
		return false
	}
	return c.SafeSend(ev, sendTimeout)
}

// EmitToRoom pushes an event to every connection joined to the group room.
func (h *Hub) EmitToRoom(groupID string, ev event.WsEvent) {
	sh := getShard(groupID)
	b := h.shards[sh]

	// collect clients while holding RLock
	b.RLock()
	room, ok := b.rooms[groupID]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	b.RUnlock()

	// deliver to clients without holding lock
	for _, c := range clients {
		select {
		case c.egress <- ev:
			// enqueued
		case <-time.After(sendTimeout):
			// egress full -> apply policy
			log.Printf("egress full for client %s in room %s", c.ID, groupID)
			if kickOnFull {
				h.unregister <- c
			}
		}
	}
}

// joinRoom subscribes a connection to a group's fanout set. Triggered by the
// client when it opens that conversation.
func (h *Hub) joinRoom(groupID string, c *Client) {
	sh := getShard(groupID)
	b := h.shards[sh]
	b.Lock()
	room, ok := b.rooms[groupID]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[groupID] = room
	}
	room[c.ID] = c
	b.Unlock()

	c.trackRoom(groupID)
	log.Printf("client %s joined room %s (shard %d)", c.ID, groupID, sh)
}

// leaveRoom unsubscribes a connection from a group's fanout set.
func (h *Hub) leaveRoom(groupID string, c *Client) {
	sh := getShard(groupID)
	b := h.shards[sh]
	b.Lock()
	if room, ok := b.rooms[groupID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(b.rooms, groupID)
		}
	}
	b.Unlock()

	c.untrackRoom(groupID)
}

// leaveAllRooms detaches a disconnecting client from every room it joined.
func (h *Hub) leaveAllRooms(c *Client) {
	for _, groupID := range c.joinedRooms() {
		h.leaveRoom(groupID, c)
	}
}

// roomMembers returns the user ids currently joined to a room.
func (h *Hub) roomMembers(groupID string) map[string]struct{} {
	sh := getShard(groupID)
	b := h.shards[sh]

	b.RLock()
	defer b.RUnlock()

	members := make(map[string]struct{})
	for _, c := range b.rooms[groupID] {
		members[c.userID] = struct{}{}
	}
	return members
}
