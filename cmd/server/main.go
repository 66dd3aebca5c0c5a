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

	"hdnotes-server/internal/config"
	"hdnotes-server/internal/handler"
	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/mailer"
	"hdnotes-server/internal/middleware"
	"hdnotes-server/internal/service"
	"hdnotes-server/internal/websocket"
	"hdnotes-server/pkg/response"

	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	ctx := context.Background()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "failed to open store", err)
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		fatal(logger, "failed to configure mailer", err)
	}

	var authOpts []service.AuthOption
	if cfg.Google.ClientID != "" {
		verifier, err := service.NewGoogleVerifier(ctx, cfg.Google.ClientID)
		if err != nil {
			fatal(logger, "failed to configure google verifier", err)
		}
		authOpts = append(authOpts, service.WithIdentityVerifier(verifier))
	} else {
		logger.Warn(ctx, "GOOGLE_CLIENT_ID not set, google login trusts client supplied identity")
	}

	hub := websocket.NewHub(websocket.Config{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	}, logger.With("component", "websocket"))

	authService := service.NewAuthService(store.accounts, sender, service.AuthConfig{
		JWTSecret:       cfg.JWT.Secret,
		TokenExpiration: cfg.JWT.Expiration,
		CodeLength:      cfg.OTP.Length,
		CodeExpiration:  cfg.OTP.Expiration,
	}, logger.With("component", "auth"), authOpts...)
	noteService := service.NewNoteService(store.notes, hub, logger.With("component", "notes"))

	authHandler := handler.NewAuthHandler(authService, logger)
	noteHandler := handler.NewNoteHandler(noteService, logger)
	wsHandler := handler.NewWebSocketHandler(hub, authService,
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
		cfg.CORS.AllowedOrigins,
		logger,
	)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	if cfg.RateLimit.Enabled {
		auth.Use(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst).Middleware())
	}
	auth.HandleFunc("/signup", authHandler.Signup).Methods("POST", "OPTIONS")
	auth.HandleFunc("/verify-otp", authHandler.VerifyOTP).Methods("POST", "OPTIONS")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST", "OPTIONS")
	auth.HandleFunc("/google", authHandler.Google).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	protected.HandleFunc("/auth/me", authHandler.Me).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes", noteHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes", noteHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Delete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(ctx, "starting hdnotes server", "addr", addr, "env", cfg.Server.Env, "store", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed to start", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server forced to shutdown", "error", err)
	}
	if err := store.close(shutdownCtx); err != nil {
		logger.Error(ctx, "failed to close store", "error", err)
	}

	logger.Info(ctx, "server stopped gracefully")
}

func newSender(cfg *config.Config, logger logging.Logger) (mailer.Sender, error) {
	if !cfg.Mail.Enabled() {
		logger.Warn(context.Background(), "SMTP_HOST not set, codes are written to the log")
		return mailer.NewLogSender(logger.With("component", "mailer"), cfg.OTP.Expiration), nil
	}

	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
	}, cfg.OTP.Expiration)
}

func fatal(logger logging.Logger, msg string, err error) {
	logger.Error(context.Background(), msg, "error", err)
	os.Exit(1)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": "hdnotes-server",
	})
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"message": "HD Notes API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/api/auth/signup":     "POST",
			"/api/auth/verify-otp": "POST",
			"/api/auth/login":      "POST",
			"/api/auth/google":     "POST",
			"/api/auth/me":         "GET (protected)",
			"/api/notes":           "GET, POST (protected)",
			"/api/notes/{id}":      "PUT, DELETE (protected)",
		},
	})
}
