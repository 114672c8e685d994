package service

import (
	"Cryptalk/internal/model"
	"Cryptalk/internal/repo"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DeliveryTracker advances each message through the Sent -> Delivered -> Read
// state machine, driven by acknowledgement events from recipient connections.
// Transitions are idempotent and one-directional; each one is persisted
// before the resulting receipt is handed back for sender notification.
type DeliveryTracker struct {
	messages repo.MessageRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewDeliveryTracker(messages repo.MessageRepository, logger *zap.Logger) *DeliveryTracker {
	return &DeliveryTracker{
		messages: messages,
		logger:   logger,
		now:      time.Now,
	}
}

// AckDelivered handles a delivery acknowledgement. It returns the receipt for
// the original sender, or nil when the ack is a no-op (already delivered, or
// unknown message id - acks for vanished messages are silently ignored).
func (t *DeliveryTracker) AckDelivered(ctx context.Context, messageID string) (*model.DeliveredReceipt, string, error) {
	msg, err := t.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrMessageNotFound) {
			t.logger.Debug("delivered ack for unknown message", zap.String("message_id", messageID))
			return nil, "", nil
		}
		return nil, "", err
	}

	if msg.Delivered {
		return nil, "", nil
	}

	at := t.now().UTC()
	if err := t.messages.MarkDelivered(ctx, messageID, at); err != nil {
		return nil, "", err
	}

	t.logger.Debug("message state advanced",
		zap.String("message_id", messageID),
		zap.Stringer("state", model.StateDelivered),
	)

	return &model.DeliveredReceipt{
		MessageID:   messageID,
		Delivered:   true,
		DeliveredAt: at,
	}, msg.SenderID, nil
}

// AckRead handles a read acknowledgement. A read ack on an undelivered
// message stamps delivered with the same timestamp, keeping read => delivered
// and deliveredAt <= readAt.
func (t *DeliveryTracker) AckRead(ctx context.Context, messageID string) (*model.ReadReceipt, string, error) {
	msg, err := t.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrMessageNotFound) {
			t.logger.Debug("read ack for unknown message", zap.String("message_id", messageID))
			return nil, "", nil
		}
		return nil, "", err
	}

	if msg.Read {
		return nil, "", nil
	}

	at := t.now().UTC()
	if err := t.messages.MarkRead(ctx, messageID, at, !msg.Delivered); err != nil {
		return nil, "", err
	}

	t.logger.Debug("message state advanced",
		zap.String("message_id", messageID),
		zap.Stringer("state", model.StateRead),
	)

	return &model.ReadReceipt{
		MessageID: messageID,
		Read:      true,
		ReadAt:    at,
	}, msg.SenderID, nil
}
