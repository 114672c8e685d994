package service

import (
	"Cryptalk/internal/db"
	"Cryptalk/internal/event"
	"Cryptalk/internal/model"
	"Cryptalk/internal/repo"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmptyMessage   = errors.New("message must have text, media, or encrypted content")
	ErrNotGroupMember = errors.New("you are not in this group")
	ErrNotParticipant = errors.New("not a participant of this conversation")
)

// Notifier pushes events to live connections. Implemented by the hub; a
// null implementation serves tests. Pushes are best effort: a disconnected
// recipient only catches up through a history fetch.
type Notifier interface {
	// RouteDirect pushes a newMessage event to the receiver's live
	// connection and reports whether one existed.
	RouteDirect(msg *model.Message) bool

	// RouteGroup pushes a newGroupMessage event to every member connection
	// subscribed to the group's room.
	RouteGroup(msg *model.Message, memberIDs []string)

	// EmitToUser pushes an arbitrary event to one user's live connection.
	EmitToUser(userID string, ev event.WsEvent) bool

	// EmitToRoom pushes an event to every connection joined to a group room.
	EmitToRoom(groupID string, ev event.WsEvent)
}

// SendInput carries the client-supplied body of an outgoing message.
type SendInput struct {
	Text          *string                 `json:"text"`
	EncryptedText *model.EncryptedPayload `json:"encryptedText"`
	IsEncrypted   bool                    `json:"isEncrypted"`
	Image         string                  `json:"image"`
	VoiceMessage  string                  `json:"voiceMessage"`
	VoiceDuration float64                 `json:"voiceDuration"`
	VoiceWaveform []float64               `json:"voiceWaveform"`
}

// MessageService owns the send/mutate/fetch paths. Every persistence write is
// awaited before any push notification goes out, so a recipient can never see
// a message that is not durably stored.
type MessageService struct {
	messages repo.MessageRepository
	users    repo.UserRepository
	groups   repo.GroupRepository
	guard    *MutationGuard
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewMessageService(
	messages repo.MessageRepository,
	users repo.UserRepository,
	groups repo.GroupRepository,
	guard *MutationGuard,
	notifier Notifier,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		messages: messages,
		users:    users,
		groups:   groups,
		guard:    guard,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// -----------------------------------------------------------------------------
// Send
// -----------------------------------------------------------------------------

// SendDirect persists a direct message and routes it to the receiver's live
// connection. When the body claims encryption but carries no encrypted
// payload, the message degrades to plaintext with isEncrypted=false rather
// than failing the send; the caller is warned through the returned flag.
func (s *MessageService) SendDirect(ctx context.Context, senderID, receiverID string, in SendInput) (*model.Message, bool, error) {
	msg, degraded := s.buildMessage(senderID, in)
	msg.ReceiverID = &receiverID

	if !msg.HasContent() {
		return nil, false, ErrEmptyMessage
	}

	if _, err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, false, err
	}

	live := s.notifier.RouteDirect(msg)
	s.logger.Debug("direct message routed",
		zap.String("message_id", msg.ID.Hex()),
		zap.String("receiver_id", receiverID),
		zap.Bool("receiver_live", live),
	)

	return msg, degraded, nil
}

// SendGroup persists a group message after a membership check and fans it out
// to every member connection subscribed to the group room.
func (s *MessageService) SendGroup(ctx context.Context, senderID, groupID string, in SendInput) (*model.Message, bool, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if !group.HasMember(senderID) {
		return nil, false, ErrNotGroupMember
	}

	msg, degraded := s.buildMessage(senderID, in)
	msg.GroupID = &groupID

	if !msg.HasContent() {
		return nil, false, ErrEmptyMessage
	}

	if _, err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, false, err
	}

	s.notifier.RouteGroup(msg, group.Members)
	return msg, degraded, nil
}

func (s *MessageService) buildMessage(senderID string, in SendInput) (*model.Message, bool) {
	msg := &model.Message{
		SenderID:      senderID,
		Text:          in.Text,
		EncryptedText: in.EncryptedText,
		IsEncrypted:   in.IsEncrypted,
		Image:         in.Image,
		VoiceMessage:  in.VoiceMessage,
		VoiceDuration: in.VoiceDuration,
		VoiceWaveform: in.VoiceWaveform,
		Reactions:     []model.Reaction{},
		CreatedAt:     s.now().UTC(),
	}

	degraded := false
	if msg.IsEncrypted {
		if msg.EncryptedText == nil {
			// client failed to encrypt; deliver as plaintext instead of
			// blocking the user, and warn the caller
			msg.IsEncrypted = false
			degraded = true
			s.logger.Warn("encrypted send without payload, degrading to plaintext",
				zap.String("sender_id", senderID))
		} else {
			// the server stays structurally blind to encrypted content:
			// any plaintext copy is dropped at the boundary
			msg.Text = nil
		}
	}

	return msg, degraded
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func (s *MessageService) GetConversation(ctx context.Context, userID, peerID string, page int64) (*db.PaginatedResult[model.Message], error) {
	return s.messages.GetConversation(ctx, userID, peerID, page)
}

func (s *MessageService) GetGroupMessages(ctx context.Context, userID, groupID string) ([]model.Message, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(userID) {
		return nil, ErrNotGroupMember
	}
	return s.messages.GetGroupMessages(ctx, groupID)
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// EditMessage applies a guarded edit and fans the updated message out to the
// original recipient set. Rejections make no state change.
func (s *MessageService) EditMessage(ctx context.Context, requesterID, messageID, newText string) (*model.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CanEdit(ctx, msg, requesterID, s.now()); err != nil {
		return nil, err
	}

	editedAt := s.now().UTC()
	if err := s.messages.UpdateText(ctx, messageID, newText, editedAt); err != nil {
		return nil, err
	}

	msg.Text = &newText
	msg.EditedAt = &editedAt

	s.fanoutMutation(msg, requesterID, event.NewEvent(event.EventMessageUpdated, msg))
	return msg, nil
}

// DeleteMessage applies a guarded delete. The deletion event carries only the
// message id, never the content.
func (s *MessageService) DeleteMessage(ctx context.Context, requesterID, messageID string) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if err := s.guard.CanDelete(ctx, msg, requesterID, s.now()); err != nil {
		return err
	}

	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.fanoutMutation(msg, requesterID, event.NewEvent(event.EventMessageDeleted, event.DeletedPayload{MessageID: messageID}))
	return nil
}

// ToggleReaction toggles the requester's reaction on a message and fans the
// change out. Any conversation participant may react; there is no time or
// position restriction.
func (s *MessageService) ToggleReaction(ctx context.Context, requesterID, messageID, emoji string) (*model.Message, error) {
	if emoji == "" {
		return nil, errors.New("emoji is required")
	}

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.requireParticipant(ctx, msg, requesterID); err != nil {
		return nil, err
	}

	removed := ToggleReaction(msg, requesterID, emoji)
	if err := s.messages.SetReactions(ctx, messageID, msg.Reactions); err != nil {
		return nil, err
	}

	name := event.EventMessageReactionAdded
	if removed {
		name = event.EventMessageReactionRemoved
	}

	s.fanoutMutation(msg, requesterID, event.NewEvent(name, msg))
	return msg, nil
}

func (s *MessageService) requireParticipant(ctx context.Context, msg *model.Message, userID string) error {
	if msg.SenderID == userID {
		return nil
	}
	if msg.ReceiverID != nil && *msg.ReceiverID == userID {
		return nil
	}
	if msg.IsGroup() {
		group, err := s.groups.GetGroup(ctx, *msg.GroupID)
		if err != nil {
			return err
		}
		if group.HasMember(userID) {
			return nil
		}
	}
	return ErrNotParticipant
}

// fanoutMutation pushes a mutation event to the same recipient set as the
// original message: the group room for group messages, otherwise the other
// party plus an echo back to the requester's own connection.
func (s *MessageService) fanoutMutation(msg *model.Message, requesterID string, ev event.WsEvent) {
	if msg.IsGroup() {
		s.notifier.EmitToRoom(*msg.GroupID, ev)
		s.notifier.EmitToUser(requesterID, ev)
		return
	}

	other := msg.SenderID
	if requesterID == msg.SenderID && msg.ReceiverID != nil {
		other = *msg.ReceiverID
	}
	s.notifier.EmitToUser(other, ev)
	if other != requesterID {
		s.notifier.EmitToUser(requesterID, ev)
	}
}

// FormatMutationError maps guard rejections onto a stable client-facing
// message, preserving unknown errors wrapped.
func FormatMutationError(err error) error {
	switch {
	case errors.Is(err, ErrNotAllowed),
		errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrEditWindowExpired),
		errors.Is(err, ErrDeleteWindowExpired),
		errors.Is(err, ErrNotLastEdited),
		errors.Is(err, ErrNotLastDeleted):
		return err
	default:
		return fmt.Errorf("mutation failed: %w", err)
	}
}
