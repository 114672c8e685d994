package service

import (
	"Cryptalk/internal/model"
	"context"
	"errors"
	"time"

	"Cryptalk/internal/repo"
)

// EditWindow is the fixed interval after creation during which a sender may
// edit or delete a message.
const EditWindow = 2 * time.Minute

var (
	// ErrNotAllowed - requester is not the message sender.
	ErrNotAllowed = errors.New("Not allowed")

	// ErrNotEditable - encrypted or media-only messages are never editable.
	ErrNotEditable = errors.New("Only plain text messages can be edited")

	// ErrEditWindowExpired - the mutation window has passed.
	ErrEditWindowExpired = errors.New("Edit window expired")

	// ErrDeleteWindowExpired - the mutation window has passed.
	ErrDeleteWindowExpired = errors.New("Delete window expired")

	// ErrNotLastEdited - only the sender's chronologically last message of the
	// conversation may be edited.
	ErrNotLastEdited = errors.New("Only the last message can be edited")

	// ErrNotLastDeleted - same restriction for delete.
	ErrNotLastDeleted = errors.New("Only the last message can be deleted")
)

// MutationGuard decides whether edit/delete/react requests on a message are
// permitted. Edits and deletes are restricted to the sender, to a fixed time
// window, and to the sender's last message in the conversation, so mutation
// never retroactively rewrites conversation order.
type MutationGuard struct {
	messages repo.MessageRepository
}

func NewMutationGuard(messages repo.MessageRepository) *MutationGuard {
	return &MutationGuard{messages: messages}
}

// CanEdit returns nil when requester may edit the message at time now.
func (g *MutationGuard) CanEdit(ctx context.Context, msg *model.Message, requesterID string, now time.Time) error {
	if msg.SenderID != requesterID {
		return ErrNotAllowed
	}
	if msg.IsEncrypted || msg.Text == nil || *msg.Text == "" {
		return ErrNotEditable
	}
	if now.Sub(msg.CreatedAt) > EditWindow {
		return ErrEditWindowExpired
	}
	if err := g.requireLast(ctx, msg, ErrNotLastEdited); err != nil {
		return err
	}
	return nil
}

// CanDelete returns nil when requester may delete the message at time now.
// Unlike edit, encrypted and media messages may be deleted.
func (g *MutationGuard) CanDelete(ctx context.Context, msg *model.Message, requesterID string, now time.Time) error {
	if msg.SenderID != requesterID {
		return ErrNotAllowed
	}
	if now.Sub(msg.CreatedAt) > EditWindow {
		return ErrDeleteWindowExpired
	}
	if err := g.requireLast(ctx, msg, ErrNotLastDeleted); err != nil {
		return err
	}
	return nil
}

func (g *MutationGuard) requireLast(ctx context.Context, msg *model.Message, reject error) error {
	last, err := g.messages.LastFromSender(ctx, msg)
	if err != nil {
		return err
	}
	if last == nil || last.ID != msg.ID {
		return reject
	}
	return nil
}

// ToggleReaction applies the single-reaction-per-user rule in place and
// reports whether the result is an addition (or replacement) or a removal:
// same emoji toggles off, a different emoji replaces, otherwise the reaction
// is added. Reactions carry no time or position restriction.
func ToggleReaction(msg *model.Message, userID, emoji string) (removed bool) {
	for i, r := range msg.Reactions {
		if r.UserID != userID {
			continue
		}
		if r.Emoji == emoji {
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
			return true
		}
		msg.Reactions[i].Emoji = emoji
		return false
	}

	msg.Reactions = append(msg.Reactions, model.Reaction{Emoji: emoji, UserID: userID})
	return false
}
