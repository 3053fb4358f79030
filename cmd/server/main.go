package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"chat-relay/auth"
	"chat-relay/broadcast"
	"chat-relay/chatstore"
	"chat-relay/contract"
	"chat-relay/counter"
	"chat-relay/internal"
	"chat-relay/logs"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/pipeline"
	"chat-relay/ratelimit"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/session"
	"chat-relay/transport"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const chatStorePrefix = "chat:"

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	log := logs.FromString(config.LogLevel)
	instanceID := config.Instance()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Shared infrastructure (Redis). Every consumer degrades on its own
	// terms when Redis is down: the limiter fails open, session checks
	// soft-fail, the fabric falls back to local fan-out.
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()

	monitor := observability.NewMonitor()
	limiter := ratelimit.NewLimiter(counter.NewRedisStore(rdb, log), log)
	sessionStore := session.NewRedisStore(rdb, config.SessionTTL, log)

	var chatState contract.ChatDataStore
	if config.ChatStoreType == internal.ChatStoreShared {
		chatState = chatstore.NewSharedStore(rdb, chatStorePrefix, config.ChatStoreTTL)
	} else {
		chatState = chatstore.NewLocalStore()
	}
	log.Info("Chat data store ready", "type", config.ChatStoreType)

	fabric, subscriber := broadcast.NewFabric(ctx, config.ClusterEnabled, rdb, instanceID, log)

	// 4. Moderation dictionaries
	banned, err := moderation.LoadBannedTerms()
	if err != nil {
		return exitRuntime, fmt.Errorf("banned terms loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(banned.Terms)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderation automaton build failed: %w", err)
	}
	log.Info("Moderation ready", "terms", len(banned.Terms), "languages", banned.Languages)

	// 5. Persistence & services
	messageRepository := repositories.NewMessageRepository(db, log)
	userRepository := repositories.NewUserRepository(db, log)
	roomRepository := repositories.NewRoomRepository(db, log)
	fileRepository := repositories.NewFileRepository(db, log)

	activity := services.NewRoomActivity(chatState, messageRepository, config.RecentWindow, log)
	mentions := services.NewMentionLogger(log)
	roomService := services.NewRoomService(roomRepository, userRepository,
		messageRepository, fabric, log)

	// 6. Ingestion pipeline
	pool := pipeline.NewPool(config.PoolSize, config.QueueDepth, monitor, log)
	pool.Start(ctx)

	pipe := pipeline.New(pipeline.Deps{
		Limiter:   limiter,
		Sessions:  sessionStore,
		Moderator: moderator,
		Users:     userRepository,
		Rooms:     roomRepository,
		Messages:  messageRepository,
		Files:     fileRepository,
		Fabric:    fabric,
		Recent:    activity,
		Mentions:  mentions,
		Pool:      pool,
		Monitor:   monitor,
	}, pipeline.Config{
		RateLimitMax:     config.RateLimitMax,
		RateLimitWindow:  config.RateLimitWindow,
		MaxContentLength: config.MaxContentLength,
	}, log)

	// 7. Supervised background workers
	sup := workers.NewSupervisor(log)
	sup.Add(workers.NewTelemetryWorker(log, monitor, config.MetricInterval))
	if subscriber != nil {
		sup.Add(subscriber)
	}
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 8. HTTP surface
	tokens := auth.NewTokenManager(config.AuthSecret, "chat-relay", config.AuthTokenDuration)
	handler := transport.NewHandler(tokens, userRepository, sessionStore, pipe, roomService, log)

	mux := http.NewServeMux()
	handler.Register(mux)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, nil, func() map[string]any {
			return map[string]any{"pipeline": monitor.Latest(), "instance": instanceID}
		})
		log.Info("Debug server listening", "port", config.DebugPort)
	}

	server := &http.Server{Addr: config.HTTPAddr, Handler: mux}
	errChan := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", config.HTTPAddr,
			"instance", instanceID, "cluster", config.ClusterEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 10. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	sup.Stop()
	<-supDone
	pool.Wait()
	log.Info("Server stopped cleanly")

	return exitOK, nil
}
