package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"task-management/microservices/tasks-service/auth"
	"task-management/microservices/tasks-service/config"
	"task-management/microservices/tasks-service/handlers"
	"task-management/microservices/tasks-service/logging"
	"task-management/microservices/tasks-service/middleware"
	"task-management/microservices/tasks-service/repositories"
	"task-management/microservices/tasks-service/services"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: %v", err)
	}

	logging.InitLogger(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Tasks Service...")

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
	}
	repo, closeCache, err := withCache(cfg, repo)
	if err != nil {
		closeRepo()
		logging.Logger.Fatalf("Event ID: CACHE_CONNECTION_FAILED, Description: %v", err)
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = auth.CognitoJWKSURL(cfg.Region, cfg.CognitoUserPoolID)
	}
	keySource := auth.NewJWKSSource(jwksURL, cfg.JWKSFetchTimeout, auth.NewJWKSBreaker("jwks-cb", 10*time.Second))
	verifier, err := auth.NewTokenVerifier(auth.NewKeySet(keySource), cfg.CognitoClientID)
	if err != nil {
		logging.Logger.Fatalf("Event ID: VERIFIER_INIT_FAILED, Description: %v", err)
	}
	logging.Logger.Infof("Event ID: VERIFIER_READY, Description: Verifying tokens against %s", jwksURL)

	taskService, err := services.NewTaskService(repo)
	if err != nil {
		logging.Logger.Fatalf("Event ID: SERVICE_INIT_FAILED, Description: %v", err)
	}
	taskHandler := handlers.NewTaskHandler(taskService)

	r := handlers.NewRouter(taskHandler, verifier, cfg.RequestTimeout)
	corsRouter := middleware.EnableCORS(cfg.AllowedOrigin, r)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           corsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"tasks-service": func(ctx context.Context) error {
				logging.Logger.Info("Event ID: SERVER_SHUTDOWN, Description: Shutdown signal received")
				// stores stay open until in-flight requests have drained
				defer closeRepo()
				defer closeCache()
				if err := server.Shutdown(ctx); err != nil {
					logging.Logger.Errorf("Event ID: SERVER_SHUTDOWN_FAILED, Description: %v", err)
					return err
				}
				logging.Logger.Info("Event ID: SERVER_STOPPED, Description: Server shut down gracefully")
				return nil
			},
		},
	)

	exitCode := <-wait
	os.Exit(exitCode)
}

// openRepository connects the configured backend and returns a func that
// releases it.
func openRepository(cfg *config.Config) (repositories.TaskRepository, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Connected to MongoDB, using %s/%s", cfg.MongoDBName, cfg.MongoCollection)

		repo := repositories.NewMongoTaskRepository(client, cfg.MongoDBName, cfg.MongoCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() { client.Disconnect(context.Background()) }, nil

	case config.BackendCassandra:
		repo, err := repositories.NewCassandraTaskRepository(cfg.CassandraHosts, cfg.CassKeyspace)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.CreateTable(ctx); err != nil {
			repo.CloseSession()
			return nil, nil, err
		}
		return repo, repo.CloseSession, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		logging.Logger.Info("Event ID: DB_CONNECTED, Description: Connected to PostgreSQL")

		repo := repositories.NewPostgresTaskRepository(pool)
		if err := repo.CreateTable(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	default:
		logging.Logger.Warn("Event ID: DB_IN_MEMORY, Description: Using in-memory task store; data is lost on restart")
		return repositories.NewMemoryTaskRepository(), func() {}, nil
	}
}

// withCache puts the Redis lookup cache in front of repo when REDIS_ADDR is set.
func withCache(cfg *config.Config, repo repositories.TaskRepository) (repositories.TaskRepository, func(), error) {
	if cfg.RedisAddr == "" {
		return repo, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logging.Logger.Infof("Event ID: CACHE_CONNECTED, Description: Caching task lookups in Redis at %s for %s", cfg.RedisAddr, cfg.CacheTTL)

	closeClient := func() {
		if err := client.Close(); err != nil {
			logging.Logger.Warnf("Event ID: CACHE_CLOSE_FAILED, Description: %v", err)
		}
	}
	return repositories.NewCachedTaskRepository(repo, client, cfg.CacheTTL), closeClient, nil
}
