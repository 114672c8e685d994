package event

// Chat Event Types - Client to Server
const (
	// EventStartTyping - typer signals typing toward a receiver
	EventStartTyping = "startTyping"

	// EventStopTyping - typer signals typing stopped
	EventStopTyping = "stopTyping"

	// EventMessageDelivered - recipient acknowledges a pushed message
	EventMessageDelivered = "messageDelivered"

	// EventMessageRead - recipient acknowledges having viewed a message
	EventMessageRead = "messageRead"

	// EventJoinGroup - connection subscribes to a group's fanout room
	EventJoinGroup = "joinGroup"

	// EventLeaveGroup - connection unsubscribes from a group's fanout room
	EventLeaveGroup = "leaveGroup"
)

// Chat Event Types - Server to Client
const (
	// EventGetOnlineUsers - full online-user set, broadcast on connect/disconnect
	EventGetOnlineUsers = "getOnlineUsers"

	// EventUserTyping - peer started typing toward this connection's user
	EventUserTyping = "userTyping"

	// EventUserStopTyping - peer stopped typing
	EventUserStopTyping = "userStopTyping"

	// EventNewMessage - direct message pushed to its receiver
	EventNewMessage = "newMessage"

	// EventNewGroupMessage - group message pushed to room members
	EventNewGroupMessage = "newGroupMessage"

	// EventMessageUpdated - message edited by its sender
	EventMessageUpdated = "messageUpdated"

	// EventMessageDeleted - message deleted; carries only the id
	EventMessageDeleted = "messageDeleted"

	// EventMessageReactionAdded - reaction added or replaced
	EventMessageReactionAdded = "messageReactionAdded"

	// EventMessageReactionRemoved - reaction toggled off
	EventMessageReactionRemoved = "messageReactionRemoved"

	// EventError - error surfaced to the offending connection only
	EventError = "error"
)

// TypingPayload is the client payload for startTyping/stopTyping.
type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
}

// TypingNotice is the server payload for userTyping/userStopTyping.
type TypingNotice struct {
	UserID string `json:"userId"`
}

// AckPayload is the client payload for messageDelivered/messageRead.
type AckPayload struct {
	MessageID string `json:"messageId"`
}

// GroupPayload is the client payload for joinGroup/leaveGroup.
type GroupPayload struct {
	GroupID string `json:"groupId"`
}

// DeletedPayload is the server payload for messageDeleted. Content is never
// echoed for a deleted message.
type DeletedPayload struct {
	MessageID string `json:"_id"`
}
