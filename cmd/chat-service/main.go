package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vega-chat/chat-service/config"
	"github.com/vega-chat/chat-service/internal/postgres"
	"github.com/vega-chat/chat-service/internal/security"
	"github.com/vega-chat/chat-service/internal/service"
	httpx "github.com/vega-chat/chat-service/internal/transport/http"
	"github.com/vega-chat/chat-service/internal/transport/ws"
	"github.com/vega-chat/chat-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ApplicationName: cfg.Logging.Service,
	})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// --- repos ---
	userRepo := postgres.NewUserRepo(pool)
	roomRepo := postgres.NewRoomRepo(pool)
	msgRepo := postgres.NewMessageRepo(pool)

	// --- services ---
	signer := security.NewJWTSigner(cfg.Auth.JWTSecret, cfg.TokenTTL(), 0)
	authSvc := service.NewAuthService(userRepo, msgRepo, signer,
		security.BcryptConfig{Cost: cfg.Auth.BcryptCost}, nil)
	roomSvc := service.NewRoomService(roomRepo)
	msgSvc := service.NewMessageService(msgRepo, userRepo)
	presenceSvc := service.NewPresenceService(userRepo)

	if err := roomSvc.EnsureGeneral(ctx); err != nil {
		log.Fatalf("seed default room: %v", err)
	}

	origins := splitOrigins(cfg.HTTP.AllowedOrigins)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, authSvc, roomSvc, msgSvc, presenceSvc, ws.Options{
		MaxFrameBytes:  cfg.WS.MaxFrameBytes,
		PingInterval:   cfg.PingInterval(),
		PongTimeout:    cfg.PongTimeout(),
		AllowedOrigins: origins,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(authSvc, roomSvc, msgSvc, wsServer)
	router := httpx.NewRouter(handler, authSvc, wsServer, origins)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	hub.CloseAll()
	slog.Info("stopped")
}

func splitOrigins(s string) []string {
	if s == "" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
