package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"localchat/internal/app"
	"localchat/internal/config"
	"localchat/internal/ratelimit"
	"localchat/internal/server"
	"localchat/internal/usertoken"
	"localchat/internal/util"
	"localchat/pkg/ai"
	"localchat/pkg/modelsession"
	"localchat/pkg/storage"
	"localchat/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		fatal("failed to parse jwt leeway", "err", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.AuthSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		fatal("failed to init token verifier", "err", err)
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		fatal("failed to parse trusted proxies", "err", err)
	}

	tenants, err := store.NewTenantRouter(cfg.ChatDBDir)
	if err != nil {
		fatal("failed to init tenant router", "err", err)
	}
	defer tenants.Close()

	identity, err := store.OpenIdentityStore(cfg.UsersDBPath)
	if err != nil {
		fatal("failed to open users db", "err", err, "path", cfg.UsersDBPath)
	}
	defer identity.Close()

	audit, err := store.OpenAuditStore(cfg.AuditDBPath)
	if err != nil {
		fatal("failed to open audit db", "err", err, "path", cfg.AuditDBPath)
	}
	defer audit.Close()

	files, err := storage.NewFileStore(cfg.UploadsDir)
	if err != nil {
		fatal("failed to init upload store", "err", err)
	}

	ollama := ai.NewOllamaClient(cfg.OllamaBaseURL)
	session := modelsession.New(ollama, []ai.ModelLister{
		ai.NewAPIModelLister(ollama),
		ai.NewCLIModelLister(cfg.OllamaCommand),
	}, modelsession.Options{
		DefaultModel:          cfg.DefaultModel,
		KeepPreviousOnFailure: cfg.KeepModelOnLoadFailure,
	})

	appCore, err := app.New(app.Config{
		Backend:      ollama,
		Session:      session,
		Audit:        audit,
		Files:        files,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		fatal("failed to init app", "err", err)
	}

	askLimiter := newLimiter(cfg, "ask", cfg.AskRateLimitPerMin)
	loadLimiter := newLimiter(cfg, "load", cfg.LoadRateLimitPerMin)

	httpServer := server.New(server.Config{
		App:                appCore,
		Session:            session,
		Tenants:            tenants,
		Identity:           identity,
		Audit:              audit,
		TokenVerifier:      tokenVerifier,
		AskLimiter:         askLimiter,
		LoadLimiter:        loadLimiter,
		RestrictedKeywords: cfg.RestrictedKeywords,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		AllowedExtensions:  cfg.AllowedExtensions,
		TrustedProxies:     trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 12 * time.Minute, // inference turns are slow
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("chat server listening", "addr", addr, "default_model", cfg.DefaultModel)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// newLimiter builds a Redis limiter, or nil when rate limiting is disabled
// (no Redis configured or a non-positive limit).
func newLimiter(cfg config.FileConfig, name string, limit int) *ratelimit.FixedWindowLimiter {
	if cfg.RedisAddr == "" || limit <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "localchat:ratelimit:"+name, limit, time.Minute)
	if err != nil {
		fatal("failed to init rate limiter", "name", name, "err", err)
	}
	return limiter
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
