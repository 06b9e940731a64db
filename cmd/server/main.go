package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prasadrv/tasksync/internal/config"
	"github.com/prasadrv/tasksync/internal/database"
	"github.com/prasadrv/tasksync/internal/handlers"
	"github.com/prasadrv/tasksync/internal/remote"
	"github.com/prasadrv/tasksync/internal/repositories"
	"github.com/prasadrv/tasksync/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Repositories
	taskRepo := repositories.NewPostgresTaskRepository(postgresPool)
	queueRepo := repositories.NewPostgresSyncQueueRepository(postgresPool)
	remoteTaskRepo := repositories.NewPostgresRemoteTaskRepository(postgresPool)
	syncStateRepo := repositories.NewRedisSyncStateRepository(redisClient)

	// Services
	remoteClient := remote.NewClient(cfg.RemoteURL, cfg.SyncAuthSecret, cfg.NodeID, cfg.HealthTimeout, cfg.SyncTimeout)
	queueService := services.NewSyncQueueService(queueRepo, cfg.MaxRetries)
	taskService := services.NewTaskService(taskRepo, queueService)
	transmitter := services.NewBatchTransmitter(remoteClient, queueService, taskRepo)
	syncService := services.NewSyncService(remoteClient, queueService, transmitter, syncStateRepo)
	authorityService := services.NewAuthorityService(remoteTaskRepo)

	// Handlers
	taskHandler := handlers.NewTaskHandler(taskService)
	syncHandler := handlers.NewSyncHandler(syncService)
	batchHandler := handlers.NewBatchHandler(authorityService)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)
			r.Get("/{id}", taskHandler.Get)
			r.Put("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
		})

		r.Post("/sync", syncHandler.Trigger)
		r.Get("/sync/status", syncHandler.Status)
		r.Get("/sync/dead-letters", syncHandler.DeadLetters)

		r.With(handlers.SyncAuth(cfg.SyncAuthSecret)).Post("/sync/batch", batchHandler.Handle)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
