package repo

import (
	"Cryptalk/internal/db"
	"Cryptalk/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrInvalidMessage     = errors.New("invalid message: message cannot be nil")
	ErrMessageNotFound    = errors.New("message not found")
	ErrOperationTimeout   = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	historyPageSize = 30
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *model.Message) (string, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	GetConversation(ctx context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error)
	GetGroupMessages(ctx context.Context, groupID string) ([]model.Message, error)
	LastFromSender(ctx context.Context, msg *model.Message) (*model.Message, error)
	UpdateText(ctx context.Context, id, text string, editedAt time.Time) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkRead(ctx context.Context, id string, at time.Time, alsoDelivered bool) error
	SetReactions(ctx context.Context, id string, reactions []model.Reaction) error
	DeleteMessage(ctx context.Context, id string) error
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// InsertMessage
// -----------------------------------------------------------------------------

// InsertMessage durably stores a message and returns its id. The caller must
// not fan the message out to any connection before this returns; a message is
// either fully persisted or not persisted at all.
func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) (string, error) {
	if err := m.validateMessage(msg); err != nil {
		return "", err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
				msg.ID = oid
			}

			m.logger.Info("message inserted",
				zap.String("inserted_id", insertedID),
				zap.String("sender_id", msg.SenderID),
				zap.Bool("encrypted", msg.IsEncrypted),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("sender_id", msg.SenderID),
	)

	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (m *messageRepository) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	msg, err := m.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, m.handleReadError(err, id)
	}
	return msg, nil
}

// GetConversation returns the direct-message history between two users,
// oldest first, paginated.
func (m *messageRepository) GetConversation(ctx context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Or(
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	).Build()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: historyPageSize,
			SortBy:   "created_at",
			SortDesc: false,
		})
		if err == nil {
			m.logger.Debug("conversation fetched",
				zap.String("user_a", userA),
				zap.String("user_b", userB),
				zap.Int("count", len(result.Data)),
				zap.Int64("total", result.Total),
			)
			return result, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}
	}

	return nil, m.handleReadError(lastErr, userA+":"+userB)
}

func (m *messageRepository) GetGroupMessages(ctx context.Context, groupID string) ([]model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("group_id", groupID).Build()
	sort := bson.D{{Key: "created_at", Value: 1}}

	msgs, err := m.mongoRepo.FindAll(ctx, filter, sort)
	if err != nil {
		return nil, m.handleReadError(err, groupID)
	}
	return msgs, nil
}

// LastFromSender returns the chronologically last message the sender of msg
// wrote in the same conversation (same receiver or same group). Mutation
// eligibility hangs off whether msg is that message.
func (m *messageRepository) LastFromSender(ctx context.Context, msg *model.Message) (*model.Message, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	f := db.NewFilter().Eq("sender_id", msg.SenderID)
	if msg.IsGroup() {
		f.Eq("group_id", *msg.GroupID)
	} else if msg.ReceiverID != nil {
		f.Eq("receiver_id", *msg.ReceiverID)
	}

	last, err := m.mongoRepo.FindOneSorted(ctx, f.Build(), "created_at", true)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, m.handleReadError(err, msg.SenderID)
	}
	return last, nil
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

func (m *messageRepository) UpdateText(ctx context.Context, id, text string, editedAt time.Time) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{
		"text":      text,
		"edited_at": editedAt,
	})
	if err != nil {
		return fmt.Errorf("update message text: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkDelivered flips the delivered flag. The filter keys on delivered:false
// so a duplicate acknowledgement is a no-op at the database as well.
func (m *messageRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := m.mongoRepo.Update(ctx,
		db.NewFilter().ObjectID("_id", id).Eq("delivered", false).Build(),
		bson.M{"delivered": true, "delivered_at": at},
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if res.MatchedCount == 0 {
		// already delivered, or unknown id; both are fine for an ack path
		m.logger.Debug("delivered ack ignored", zap.String("message_id", id))
	}
	return nil
}

// MarkRead flips the read flag; when alsoDelivered is set, the delivered pair
// is stamped in the same update to preserve read => delivered.
func (m *messageRepository) MarkRead(ctx context.Context, id string, at time.Time, alsoDelivered bool) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"read": true, "read_at": at}
	if alsoDelivered {
		update["delivered"] = true
		update["delivered_at"] = at
	}

	res, err := m.mongoRepo.Update(ctx,
		db.NewFilter().ObjectID("_id", id).Eq("read", false).Build(),
		update,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if res.MatchedCount == 0 {
		m.logger.Debug("read ack ignored", zap.String("message_id", id))
	}
	return nil
}

func (m *messageRepository) SetReactions(ctx context.Context, id string, reactions []model.Reaction) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := m.mongoRepo.UpdateByID(ctx, id, bson.M{"reactions": reactions})
	if err != nil {
		return fmt.Errorf("set reactions: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (m *messageRepository) DeleteMessage(ctx context.Context, id string) error {
	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res, err := m.mongoRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrMessageNotFound
	}

	m.logger.Info("message deleted", zap.String("message_id", id))
	return nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.SenderID == "" {
		return errors.New("invalid message: sender id is required")
	}

	hasReceiver := msg.ReceiverID != nil && *msg.ReceiverID != ""
	if hasReceiver == msg.IsGroup() {
		return errors.New("invalid message: exactly one of receiver id or group id is required")
	}
	return nil
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (m *messageRepository) handleReadError(err error, key string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("key", key))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("key", key))
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("key", key))
	return fmt.Errorf("read messages failed: %w", err)
}
