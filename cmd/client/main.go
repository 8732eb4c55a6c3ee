package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dtroode/learnhub-auth/internal/client"
	"github.com/dtroode/learnhub-auth/internal/config"
	"github.com/dtroode/learnhub-auth/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.NewClientConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.NewWithWriter(os.Stderr, 0, false)

	if cfg.Email == "" || cfg.Password == "" {
		logger.Fatal("CLIENT_EMAIL and CLIENT_PASSWORD are required")
	}

	c, err := client.New(cfg.BaseURL, client.Options{
		Timeout: cfg.Timeout,
		OnReauth: func(loginURL string) {
			logger.Warn("session lost, log in again", "login_url", loginURL)
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create client", "error", err)
	}

	user, err := c.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		logger.Fatal("login failed", "error", err)
	}
	logger.Info("logged in", "user_id", user.ID, "role", user.Role)

	me, err := c.Me(ctx)
	if err != nil {
		logger.Fatal("whoami failed", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(me); err != nil {
		logger.Fatal("failed to print identity", "error", err)
	}
}
