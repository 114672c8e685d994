package configuration

import (
	"Cryptalk/internal/db"
	"Cryptalk/internal/handler"
	"Cryptalk/internal/hub"
	"Cryptalk/internal/model"
	"Cryptalk/internal/repo"
	"Cryptalk/internal/service"
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	MessageHandler handler.MessageHandler
	UserHandler    handler.UserHandler
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig("../../shared/config.dev.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, _ := zap.NewProduction()

	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection), logger)
	userRepo := repo.NewUserRepository(
		db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection), logger)
	groupRepo := repo.NewGroupRepository(
		db.NewRepository[model.Group](con, config.ChatDatabase.GroupsCollection), logger)

	guard := service.NewMutationGuard(messageRepo)
	tracker := service.NewDeliveryTracker(messageRepo, logger)

	// Hub routes delivery receipts and presence; it doubles as the
	// notifier behind the message service's push path.
	Hub := hub.NewHub(tracker, userRepo)

	messageService := service.NewMessageService(messageRepo, userRepo, groupRepo, guard, Hub, logger)
	messageHandler := handler.NewMessageHandler(messageService)
	userHandler := handler.NewUserHandler(userRepo)

	return &Container{
		MessageHandler: messageHandler,
		UserHandler:    userHandler,
		Hub:            Hub,
		Config:         *config,
		Logger:         logger,
		mongoClient:    con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
