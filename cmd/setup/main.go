// Command setup bootstraps a fresh installation: the data directories, the
// users database and a root admin account, and a starter config.yaml with a
// generated auth secret.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"localchat/internal/config"
	"localchat/pkg/ai"
	"localchat/pkg/auth"
	"localchat/pkg/domain"
	"localchat/pkg/store"
)

func main() {
	var (
		configPath = flag.String("config", config.ConfigPath, "path to config.yaml (created when absent)")
		username   = flag.String("admin-user", "root", "admin account username")
		password   = flag.String("admin-pass", "", "admin account password (required)")
		email      = flag.String("admin-email", "admin@local.host", "admin account email")
		model      = flag.String("default-model", "", "default model written to a new config (auto-detected when empty)")
	)
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -admin-pass is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*configPath, *username, *password, *email, *model); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, username, password, email, model string) error {
	cfg, created, err := loadOrCreateConfig(configPath, model)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("created %s\n", configPath)
	}

	for _, dir := range []string{cfg.DataDir, cfg.ChatDBDir, cfg.UploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	identity, err := store.OpenIdentityStoreForSetup(cfg.UsersDBPath)
	if err != nil {
		return fmt.Errorf("open users db: %w", err)
	}
	defer identity.Close()

	if _, exists, err := identity.GetUserByUsername(username); err != nil {
		return fmt.Errorf("check admin: %w", err)
	} else if exists {
		return fmt.Errorf("user %q already exists", username)
	}

	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		ChatDBUUID:   uuid.NewString(),
		Role:         domain.RoleAdmin,
	}
	if err := identity.CreateUser(admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Printf("admin %q created (tenant %s)\n", username, admin.ChatDBUUID)
	return nil
}

// loadOrCreateConfig reads an existing config, or writes a starter one with
// a freshly generated auth secret.
func loadOrCreateConfig(path, model string) (config.FileConfig, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return config.FileConfig{}, false, fmt.Errorf("load config: %w", err)
	}

	if model == "" {
		model = detectDefaultModel()
	}
	if model == "" {
		return config.FileConfig{}, false, errors.New("no installed model detected; pass -default-model")
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return config.FileConfig{}, false, fmt.Errorf("generate secret: %w", err)
	}
	starter := config.FileConfig{
		Port:               "5000",
		LogLevel:           "info",
		AuthSecret:         hex.EncodeToString(secret),
		DefaultModel:       model,
		RestrictedKeywords: []string{"dolphin", "uncensored"},
	}
	data, err := yaml.Marshal(starter)
	if err != nil {
		return config.FileConfig{}, false, fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.FileConfig{}, false, fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return config.FileConfig{}, false, fmt.Errorf("write config: %w", err)
	}

	cfg, err = config.Load(path)
	if err != nil {
		return config.FileConfig{}, false, fmt.Errorf("reload config: %w", err)
	}
	return cfg, true, nil
}

// detectDefaultModel picks the first installed model the way the original
// bootstrap did, by parsing `ollama list`.
func detectDefaultModel() string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	models, err := ai.NewCLIModelLister("").ListModels(ctx)
	if err != nil || len(models) == 0 {
		return ""
	}
	fmt.Printf("detected default model %q\n", models[0])
	return models[0]
}
