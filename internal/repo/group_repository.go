package repo

import (
	"Cryptalk/internal/db"
	"Cryptalk/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var ErrGroupNotFound = errors.New("group not found")

type groupRepository struct {
	mongoRepo *db.Repository[model.Group]
	logger    *zap.Logger
}

// GroupRepository is the group-membership lookup collaborator: the core reads
// the member set for fanout and access checks, administration lives elsewhere.
type GroupRepository interface {
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	GetMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

func NewGroupRepository(repo *db.Repository[model.Group], logger *zap.Logger) GroupRepository {
	return &groupRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// GetGroup fetches a group document by ID
func (r *groupRepository) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	if groupID == "" {
		return nil, errors.New("group id is required")
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	group, err := r.mongoRepo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("group not found", zap.String("group_id", groupID))
			return nil, ErrGroupNotFound
		}
		r.logger.Error("failed to fetch group",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch group: %w", err)
	}

	return group, nil
}

func (r *groupRepository) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	group, err := r.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

func (r *groupRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
