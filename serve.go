package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"task-tracker/tasks-service/cache"
	"task-tracker/tasks-service/config"
	"task-tracker/tasks-service/handlers"
	"task-tracker/tasks-service/lifecycle"
	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/middleware"
	"task-tracker/tasks-service/services"
	"task-tracker/tasks-service/store"
	"task-tracker/tasks-service/users"
	"task-tracker/tasks-service/utils"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := logging.InitLogger(logging.Options{
				SystemName: serviceName,
				File:       cfg.LogFile,
				Level:      cfg.LogLevel,
			}); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// shutdownOps collects the close functions of everything opened during startup.
type shutdownOps map[string]gfshutdown.Operation

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Tasks Service...")

	ops := shutdownOps{}
	taskStore, directory, err := openStore(ctx, cfg, ops)
	if err != nil {
		closeAll(ops, cfg.ShutdownTimeout)
		return err
	}

	var (
		userCache *cache.Cache
		limiter   *middleware.Limiter
	)
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			closeAll(ops, cfg.ShutdownTimeout)
			return err
		}
		ops["redis"] = func(context.Context) error { return client.Close() }

		userCache = cache.New(client, "tasks-service:user:", cfg.UserCacheTTL)
		directory = users.NewCachedDirectory(directory, userCache)
		if cfg.RateLimitPerMinute > 0 {
			limiter = middleware.NewLimiter(client, "tasks-service:ratelimit:", cfg.RateLimitPerMinute, time.Minute)
		}
	} else {
		logging.Logger.Warn("Event ID: REDIS_DISABLED, Description: REDIS_URL not set; user cache and rate limiting are disabled")
	}

	taskService := services.NewTaskService(taskStore, directory, lifecycle.New(store.Clock), cfg.StatsScope)
	router := handlers.NewRouter(
		handlers.NewTaskHandler(taskService, cfg.Development()),
		handlers.NewHealthHandler(taskService, userCache, version),
		handlers.RouterOptions{
			Tokens:     utils.NewTokenManager(cfg.JWTSecret, serviceName),
			Limiter:    limiter,
			CORSOrigin: cfg.CORSOrigin,
		},
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	ops["http-server"] = func(ctx context.Context) error {
		logging.Logger.Info("Event ID: SERVER_SHUTDOWN, Description: Graceful shutdown initiated...")
		return server.Shutdown(ctx)
	}

	go func() {
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
		}
	}()

	exitCode := <-gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, ops)
	logging.Logger.Infof("Event ID: SERVICE_STOPPED, Description: Tasks Service exited with code %d", exitCode)
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", exitCode)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, ops shutdownOps) (store.TaskStore, users.Directory, error) {
	if cfg.StoreKind == config.StoreMemory {
		logging.Logger.Warn("Event ID: MEMORY_STORE, Description: Using the in-memory task store; data is lost on exit")
		return store.NewMemoryStore(nil), users.StaticDirectory{}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("database connection for MongoDB failed: %w", err)
	}
	ops["mongo"] = func(ctx context.Context) error { return client.Disconnect(ctx) }

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("MongoDB connection ping error: %w", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB, using collection %s/%s", cfg.MongoDBName, cfg.MongoCollection)

	taskStore := store.NewMongoStore(client.Database(cfg.MongoDBName).Collection(cfg.MongoCollection))
	if err := taskStore.EnsureIndexes(connectCtx); err != nil {
		return nil, nil, err
	}

	usersCollection := client.Database(cfg.MongoUsersDB).Collection(cfg.MongoUsersCollection)
	directory := users.NewBreakerDirectory(
		users.NewMongoDirectory(usersCollection),
		users.NewCircuitBreaker("UsersDirectoryCB", 5*time.Second),
	)
	return taskStore, directory, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := cache.OpenRedis(pingCtx, url)
	if err != nil {
		return nil, err
	}
	logging.Logger.Info("Event ID: REDIS_CONNECTED, Description: Connected to Redis")
	return client, nil
}

// closeAll releases what was opened before startup failed.
func closeAll(ops shutdownOps, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for name, op := range ops {
		if err := op(ctx); err != nil {
			logging.Logger.Warnf("Event ID: CLEANUP_FAILED, Description: Closing %s: %v", name, err)
		}
	}
}
