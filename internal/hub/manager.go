package hub

import (
	"Cryptalk/internal/event"
	"Cryptalk/internal/model"
	"Cryptalk/internal/repo"
	"Cryptalk/internal/service"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client
}

// Hub owns every live websocket connection: the presence registry, the typing
// registry, and the sharded group-room buckets that drive fanout. Each
// inbound frame is handled by a worker as an independent task with its own
// error boundary; a failure on one connection never touches the others.
type Hub struct {
	presence *presenceRegistry
	typing   *typingRegistry
	shards   [shardCount]*roomBucket

	tracker *service.DeliveryTracker
	users   repo.UserRepository

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(tracker *service.DeliveryTracker, users repo.UserRepository) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		presence:   newPresenceRegistry(),
		typing:     newTypingRegistry(),
		tracker:    tracker,
		users:      users,
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// handleEvent dispatches one inbound frame against the closed event
// vocabulary. Payloads are validated per event name; malformed frames bounce
// back to the offending connection only.
func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventStartTyping:
		var p event.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ReceiverID == "" {
			log.Printf("invalid startTyping payload from %s: %v", c.ID, err)
			h.rejectFrame(c, ev.Event, "receiverId is required")
			return
		}
		h.handleStartTyping(c.userID, p.ReceiverID)

	case event.EventStopTyping:
		var p event.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ReceiverID == "" {
			log.Printf("invalid stopTyping payload from %s: %v", c.ID, err)
			h.rejectFrame(c, ev.Event, "receiverId is required")
			return
		}
		h.handleStopTyping(c.userID, p.ReceiverID)

	case event.EventMessageDelivered:
		var p event.AckPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MessageID == "" {
			log.Printf("invalid delivered ack from %s: %v", c.ID, err)
			h.rejectFrame(c, ev.Event, "messageId is required")
			return
		}
		h.handleDeliveredAck(p.MessageID)

	case event.EventMessageRead:
		var p event.AckPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MessageID == "" {
			log.Printf("invalid read ack from %s: %v", c.ID, err)
			h.rejectFrame(c, ev.Event, "messageId is required")
			return
		}
		h.handleReadAck(p.MessageID)

	case event.EventJoinGroup:
		var p event.GroupPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.GroupID == "" {
			log.Printf("invalid joinGroup payload from %s: %v", c.ID, err)
			h.rejectFrame(c, ev.Event, "groupId is required")
			return
		}
		h.joinRoom(p.GroupID, c)

	case event.EventLeaveGroup:
		var p event.GroupPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.GroupID == "" {
			log.Printf("invalid leaveGroup payload from %s: %v", c.ID, err)
			h.rejectFrame(c, ev.Event, "groupId is required")
			return
		}
		h.leaveRoom(p.GroupID, c)

	default:
		log.Printf("unknown event type: %s", ev.Event)
		h.rejectFrame(c, ev.Event, "unknown event")
	}
}

// rejectFrame pushes an error event to the connection that sent a bad frame.
// Nothing about the rejection leaks to any other connection.
func (h *Hub) rejectFrame(c *Client, code, reason string) {
	c.SafeSend(event.NewEvent(event.EventError, model.ErrorPayload{
		Code:    code,
		Message: reason,
	}), sendTimeout)
}

// -----------------------------------------------------------------
// Typing
// -----------------------------------------------------------------

// handleStartTyping records the typing pair and notifies the target's live
// connection, unless either party has blocked the other.
func (h *Hub) handleStartTyping(userID, targetID string) {
	h.typing.start(userID, targetID)

	if h.typingBlocked(userID, targetID) {
		return
	}

	h.EmitToUser(targetID, event.NewEvent(event.EventUserTyping, event.TypingNotice{UserID: userID}))
}

// handleStopTyping clears the record only when it still points at targetID.
func (h *Hub) handleStopTyping(userID, targetID string) {
	if !h.typing.stop(userID, targetID) {
		return
	}

	if h.typingBlocked(userID, targetID) {
		return
	}

	h.EmitToUser(targetID, event.NewEvent(event.EventUserStopTyping, event.TypingNotice{UserID: userID}))
}

func (h *Hub) typingBlocked(userID, targetID string) bool {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	blocked, err := h.users.EitherBlocked(ctx, userID, targetID)
	if err != nil {
		// block lookup failure suppresses the courtesy notification only
		log.Printf("block check failed for %s -> %s: %v", userID, targetID, err)
		return true
	}
	return blocked
}

// -----------------------------------------------------------------
// Delivery acknowledgements
// -----------------------------------------------------------------

func (h *Hub) handleDeliveredAck(messageID string) {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	receipt, senderID, err := h.tracker.AckDelivered(ctx, messageID)
	if err != nil {
		log.Printf("delivered ack failed for %s: %v", messageID, err)
		return
	}
	if receipt == nil {
		return
	}

	// sender offline: receipt dropped, history fetch catches up
	h.EmitToUser(senderID, event.NewEvent(event.EventMessageDelivered, receipt))
}

func (h *Hub) handleReadAck(messageID string) {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	receipt, senderID, err := h.tracker.AckRead(ctx, messageID)
	if err != nil {
		log.Printf("read ack failed for %s: %v", messageID, err)
		return
	}
	if receipt == nil {
		return
	}

	h.EmitToUser(senderID, event.NewEvent(event.EventMessageRead, receipt))
}

// -----------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------

func (h *Hub) addClient(c *Client) {
	if prev := h.presence.add(c.userID, c); prev != nil {
		// new connection silently supersedes the prior one
		prev.Close()
		log.Printf("superseded connection %s for user %s", prev.ID, c.userID)
	}

	log.Printf("client %s registered for user %s", c.ID, c.userID)
	h.broadcastOnlineUsers()
}

func (h *Hub) removeClient(c *Client) {
	removed := h.presence.remove(c.userID, c)
	h.leaveAllRooms(c)
	c.Close()

	if !removed {
		// a superseded connection going away must not disturb the newer one
		return
	}

	log.Printf("client %s removed for user %s", c.ID, c.userID)
	h.broadcastOnlineUsers()
	h.stampLastSeen(c.userID)

	// disconnect cleanup: any active typing record is cleared and its
	// target told that typing stopped
	if targetID, had := h.typing.clear(c.userID); had {
		h.EmitToUser(targetID, event.NewEvent(event.EventUserStopTyping, event.TypingNotice{UserID: c.userID}))
	}
}

// broadcastOnlineUsers pushes the full online-user set to every connection.
func (h *Hub) broadcastOnlineUsers() {
	ev := event.NewEvent(event.EventGetOnlineUsers, h.presence.onlineIDs())
	for _, c := range h.presence.snapshot() {
		c.SafeSend(ev, sendTimeout)
	}
}

func (h *Hub) stampLastSeen(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.users.UpdateLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("failed to stamp last seen for %s: %v", userID, err)
	}
}

func getShard(roomID string) uint32 {
	if roomID == "" {
		return 0
	}

	h := sha1.Sum([]byte(roomID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func (h *Hub) Stop() {
	h.cancel()

	// Close all client connections
	for _, c := range h.presence.snapshot() {
		c.Close()
	}

	// inbound stays open: a read pump that finished a frame during shutdown
	// may still hand it over, and a send to a closed channel would panic.
	// Workers drain via ctx cancellation instead.
	h.wg.Wait()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // origin policy enforced by CORS layer
}

// ServeWS upgrades an authenticated request and registers the connection for
// its user. Authentication happened upstream; userID is trusted here.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	RegisterClient(userID, conn, h)
}
