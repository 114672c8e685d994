package repo

import (
	"Cryptalk/internal/db"
	"Cryptalk/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrChatAlreadyPinned   = errors.New("chat is already pinned")
	ErrChatAlreadyArchived = errors.New("chat is already archived")
)

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	SearchUsers(ctx context.Context, excludeID, nameQuery string) ([]model.User, error)
	GetPublicKey(ctx context.Context, id string) (string, error)
	SetPublicKey(ctx context.Context, id, publicKeyPEM string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	EitherBlocked(ctx context.Context, userA, userB string) (bool, error)
	PinChat(ctx context.Context, userID, peerID string) error
	UnpinChat(ctx context.Context, userID, peerID string) error
	PinnedChats(ctx context.Context, userID string) ([]model.User, error)
	ArchiveChat(ctx context.Context, userID, peerID string) error
	UnarchiveChat(ctx context.Context, userID, peerID string) error
	ArchivedChats(ctx context.Context, userID string) ([]model.User, error)
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

func NewUserRepository(repo *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *userRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	user, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("user_id", id).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// SearchUsers lists users for the contact sidebar, excluding the requester,
// optionally filtered by a case-insensitive name match.
func (r *userRepository) SearchUsers(ctx context.Context, excludeID, nameQuery string) ([]model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	f := db.NewFilter().Ne("user_id", excludeID)
	if nameQuery != "" {
		f.Contains("full_name", nameQuery)
	}

	users, err := r.mongoRepo.FindAll(ctx, f.Build(), bson.D{{Key: "full_name", Value: 1}})
	if err != nil {
		r.logger.Error("user search failed", zap.Error(err), zap.String("query", nameQuery))
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

func (r *userRepository) GetPublicKey(ctx context.Context, id string) (string, error) {
	user, err := r.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return user.PublicKey, nil
}

func (r *userRepository) SetPublicKey(ctx context.Context, id, publicKeyPEM string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.mongoRepo.Update(ctx,
		db.NewFilter().Eq("user_id", id).Build(),
		bson.M{"public_key": publicKeyPEM, "updated_at": time.Now().UTC()},
	)
	if err != nil {
		return fmt.Errorf("set public key for %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}

	r.logger.Info("public key updated", zap.String("user_id", id))
	return nil
}

func (r *userRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.mongoRepo.Update(ctx,
		db.NewFilter().Eq("user_id", id).Build(),
		bson.M{"last_seen": at},
	)
	if err != nil {
		return fmt.Errorf("update last seen for %s: %w", id, err)
	}
	return nil
}

// PinChat pins the conversation with peerID to the top of userID's sidebar.
// Pinning is per-user; the peer never learns about it.
func (r *userRepository) PinChat(ctx context.Context, userID, peerID string) error {
	if _, err := r.GetUser(ctx, peerID); err != nil {
		return err
	}
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasPinned(peerID) {
		return ErrChatAlreadyPinned
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.mongoRepo.AddToSet(ctx,
		db.NewFilter().Eq("user_id", userID).Build(), "pinned_chats", peerID,
	); err != nil {
		return fmt.Errorf("pin chat %s for %s: %w", peerID, userID, err)
	}
	return nil
}

// UnpinChat is idempotent: unpinning a chat that was never pinned is a no-op.
func (r *userRepository) UnpinChat(ctx context.Context, userID, peerID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.mongoRepo.Pull(ctx,
		db.NewFilter().Eq("user_id", userID).Build(), "pinned_chats", peerID,
	); err != nil {
		return fmt.Errorf("unpin chat %s for %s: %w", peerID, userID, err)
	}
	return nil
}

// PinnedChats resolves the user's pinned partner ids to full user documents.
func (r *userRepository) PinnedChats(ctx context.Context, userID string) ([]model.User, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.resolveChatList(ctx, user.PinnedChats)
}

// ArchiveChat tucks the conversation with peerID away from userID's sidebar.
func (r *userRepository) ArchiveChat(ctx context.Context, userID, peerID string) error {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.HasArchived(peerID) {
		return ErrChatAlreadyArchived
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.mongoRepo.AddToSet(ctx,
		db.NewFilter().Eq("user_id", userID).Build(), "archived_chats", peerID,
	); err != nil {
		return fmt.Errorf("archive chat %s for %s: %w", peerID, userID, err)
	}
	return nil
}

// UnarchiveChat is idempotent, mirroring UnpinChat.
func (r *userRepository) UnarchiveChat(ctx context.Context, userID, peerID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.mongoRepo.Pull(ctx,
		db.NewFilter().Eq("user_id", userID).Build(), "archived_chats", peerID,
	); err != nil {
		return fmt.Errorf("unarchive chat %s for %s: %w", peerID, userID, err)
	}
	return nil
}

// ArchivedChats resolves the user's archived partner ids to user documents.
func (r *userRepository) ArchivedChats(ctx context.Context, userID string) ([]model.User, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.resolveChatList(ctx, user.ArchivedChats)
}

func (r *userRepository) resolveChatList(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	users, err := r.mongoRepo.FindAll(ctx, db.NewFilter().In("user_id", ids).Build())
	if err != nil {
		r.logger.Error("chat list lookup failed", zap.Error(err), zap.Int("ids", len(ids)))
		return nil, fmt.Errorf("resolve chat list: %w", err)
	}
	return users, nil
}

// EitherBlocked reports whether either user has blocked the other. Typing
// notifications and similar courtesies are suppressed in both directions.
func (r *userRepository) EitherBlocked(ctx context.Context, userA, userB string) (bool, error) {
	a, err := r.GetUser(ctx, userA)
	if err != nil {
		return false, err
	}
	b, err := r.GetUser(ctx, userB)
	if err != nil {
		return false, err
	}
	return a.HasBlocked(userB) || b.HasBlocked(userA), nil
}
