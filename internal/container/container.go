package container

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/tailingsiq/tailingsiq/internal/api"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/database"
	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/notifications"
	"github.com/tailingsiq/tailingsiq/internal/queue"
)

type Container struct {
	Config        *config.Config
	Database      *database.Database
	Queue         *queue.TaskQueue
	RedisClient   *redis.Client
	JWTService    *auth.JWTService
	AuthService   *auth.AuthService
	Authenticator *auth.Authenticator
	Server        *api.Server
	Router        http.Handler
}

func New(ctx context.Context, cfg config.Config) (*Container, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	c := &Container{Config: &cfg, Database: db}

	if err := db.Migrate(ctx); err != nil {
		c.Cleanup()
		return nil, err
	}

	taskQueue, err := queue.NewQueue(&cfg.Redis)
	if err != nil {
		c.Cleanup()
		return nil, err
	}
	c.Queue = taskQueue

	// asynq manages its own connections; this client holds token
	// revocations and reset tokens.
	c.RedisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	jwtService, err := auth.NewJWTService([]byte(cfg.JWT.SigningKey), cfg.JWT.Issuer, cfg.JWT.Expiry)
	if err != nil {
		c.Cleanup()
		return nil, err
	}
	c.JWTService = jwtService

	mailer, err := notifications.NewMailer(taskQueue)
	if err != nil {
		c.Cleanup()
		return nil, err
	}

	c.AuthService = auth.NewAuthService(c.RedisClient, jwtService, db.Queries(), mailer, cfg.Auth, cfg.Server.PublicURL)
	c.Authenticator = auth.NewAuthenticator(c.AuthService)
	c.Server = api.NewServer(db, c.AuthService)

	router, err := api.NewRouter(c.Server, c.Authenticator.Authenticate, &cfg.CORS)
	if err != nil {
		c.Cleanup()
		return nil, err
	}
	c.Router = router

	logging.Info("Connected to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port)

	return c, nil
}

func (c *Container) Cleanup() {
	if c.Queue != nil {
		c.Queue.Close()
		logging.Info("Queue client closed")
	}
	if c.RedisClient != nil {
		c.RedisClient.Close()
		logging.Info("Redis client closed")
	}
	if c.Database != nil {
		c.Database.Close()
		logging.Info("Database connection closed")
	}
}
