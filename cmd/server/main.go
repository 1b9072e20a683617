package main

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat/auth"
	"groupchat/internal"
	"groupchat/moderation"
	"groupchat/runtime"
	"groupchat/runtime/workers"
	"groupchat/services"
	"groupchat/storage"
	"groupchat/transport"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	exitOK = iota
	exitConfig
	exitStorage
	exitRuntime
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal or a fatal listener error,
// then shuts down in order. Deferred cleanups always run before the exit code
// is returned to main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	censorChar, _ := config.CharacterRune()

	// 2. Store (BadgerDB)
	store, err := storage.Open(config.BadgerFilepath, log)
	if err != nil {
		return exitStorage, fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		_ = store.Close()
	}()

	// 3. Moderation, configured words are persisted next to the ones already stored
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelBoot()
	if len(config.CensoredWords) > 0 {
		if err := store.AddCensoredWords(bootCtx, config.CensoredWords...); err != nil {
			return exitStorage, fmt.Errorf("storing censored words: %w", err)
		}
	}
	words, err := store.CensoredWords(bootCtx)
	if err != nil {
		return exitStorage, fmt.Errorf("loading censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(lo.Uniq(words), censorChar, log)
	if err != nil {
		return exitConfig, fmt.Errorf("building moderator: %w", err)
	}

	// 4. Session engine
	var tokens *auth.TokenIssuer
	if config.TokensEnabled() {
		tokens = auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	} else {
		log.Info("Resume tokens disabled, set JWT_SECRET to enable them")
	}
	registry := runtime.NewRegistry(config.Policy())
	directory := runtime.NewDirectory(store, config.DirectoryCacheTTL, log)
	router := runtime.NewRouter(registry, log)
	chatService := services.NewChatService(store, directory, router, runtime.NewSequencer(), moderator,
		services.ChatConfig{MaxContentLength: config.MaxContentLength, HistoryLimit: config.HistoryLimit}, log)
	authService := services.NewAuthService(store, tokens, log)
	acceptor := runtime.NewAcceptor(authService, registry, runtime.NewHandler(chatService, log), runtime.AcceptorConfig{
		Session: runtime.SessionConfig{
			QueueSize:       config.SessionQueueSize,
			MaxAuthAttempts: config.MaxAuthAttempts,
			AuthTimeout:     config.AuthTimeout,
			DrainTimeout:    config.DrainTimeout,
			RateLimitBurst:  config.RateLimitBurst,
			RateLimitRefill: config.RateLimitRefillInterval,
		},
		Transport: transport.Options{
			MaxFrameSize: config.MaxFrameSize,
			IdleTimeout:  config.IdleTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		AllowedOrigins: config.WSAllowedOrigins,
	}, log)

	// 5. Supervision
	healthServer := health.NewServer()
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewHealthWorker(log, healthServer, store, registry, directory, config.MetricInterval))
	if config.DirectoryCacheTTL > 0 {
		sup.Add(workers.NewDirectorySweeperWorker(directory, config.DirectoryCacheTTL, log))
	}
	server := runtime.NewServer(acceptor, registry, directory, sup, store, healthServer, config.ShutdownTimeout, log)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sup.Run(ctx)

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 3)

	// 7. Listeners
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		_ = server.Shutdown(context.Background())
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	go func() {
		if err := acceptor.Serve(ctx, listener); err != nil {
			errChan <- fmt.Errorf("tcp acceptor error: %w", err)
		}
	}()

	var wsServer *http.Server
	if config.WSPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/ws", acceptor)
		wsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", config.Host, config.WSPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("Starting WebSocket server", "address", wsServer.Addr)
			if err := wsServer.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("websocket server error: %w", err)
			}
		}()
	}

	var grpcServer *grpc.Server
	if config.HealthPort > 0 {
		healthAddress := fmt.Sprintf("%s:%d", config.Host, config.HealthPort)
		healthListener, err := net.Listen("tcp", healthAddress)
		if err != nil {
			_ = server.Shutdown(context.Background())
			return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		go func() {
			log.Info("Starting health server", "address", healthAddress)
			if err := grpcServer.Serve(healthListener); err != nil && !goerrors.Is(err, grpc.ErrServerStopped) {
				errChan <- fmt.Errorf("health server error: %w", err)
			}
		}()
	}

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		code = exitRuntime
		log.Error("Server failure, shutting down", "error", runErr)
	}

	// 9. Final Cleanup
	shutdown(log, server, wsServer, grpcServer, config.ShutdownTimeout)
	log.Info("Program stopped cleanly")
	return code, runErr
}

func shutdown(log *slog.Logger, server *runtime.Server, wsServer *http.Server, grpcServer *grpc.Server, timeout time.Duration) {
	if wsServer != nil {
		// Upgraded connections are hijacked: Shutdown only stops the listener.
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := wsServer.Shutdown(ctx); err != nil {
			log.Warn("WebSocket server shutdown", "error", err)
		}
		cancel()
	}
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error("Session engine shutdown", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}
