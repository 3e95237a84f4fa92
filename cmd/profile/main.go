// Command profile is a terminal front-end for the subscription page.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/planpage/server/internal/client/api"
	"github.com/planpage/server/internal/client/profile"
	"github.com/planpage/server/internal/module/auth"
	"github.com/planpage/server/internal/shared/config"
	"github.com/planpage/server/internal/shared/logger"
	"go.uber.org/zap"
)

func main() {
	var (
		baseURL = flag.String("base-url", "", "server base URL (overrides client.base_url)")
		token   = flag.String("token", "", "bearer token (overrides PLANPAGE_TOKEN)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}
	if *token != "" {
		cfg.Client.Token = *token
	}

	zapLog, err := logger.NewZapLogger(&logger.Config{Level: cfg.Log.Level, Format: "text", Output: os.Stderr})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.Client, zapLog)
	catalog := loadCatalog(ctx, client, cfg.Plans, zapLog)

	sh := newShell(os.Stdin, os.Stdout)
	controller, err := profile.New(authState(cfg.Client.Token, zapLog), client, catalog, profile.Options{
		StaleTime:       cfg.Client.StaleTime,
		ConfirmationTTL: cfg.Client.ConfirmationTTL,
		Notifier:        sh,
		Navigator:       sh,
		Logger:          zapLog,
	})
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}
	sh.controller = controller

	if err := sh.Run(ctx); err != nil {
		zapLog.Error("profile shell failed", zap.Error(err))
		os.Exit(1)
	}
}

// authState derives the page's auth state from the configured token.
func authState(token string, log *zap.Logger) profile.AuthState {
	if token == "" {
		return profile.SignedOut()
	}
	id, err := auth.IdentityFromToken(token)
	if err != nil {
		log.Warn("ignoring unreadable token", zap.Error(err))
		return profile.SignedOut()
	}
	return profile.SignedInAs(profile.User{
		ID:        id.UserID,
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		ImageURL:  id.ImageURL,
	})
}

// loadCatalog asks the server for the catalog and falls back to the
// configured plans.
func loadCatalog(ctx context.Context, client *api.Client, fallback []config.PlanConfig, log *zap.Logger) []api.Plan {
	plans, err := client.ListPlans(ctx)
	if err == nil && len(plans) > 0 {
		return plans
	}
	if err != nil {
		log.Warn("loading plans from server failed, using configured catalog", zap.Error(err))
	}

	catalog := make([]api.Plan, 0, len(fallback))
	for _, p := range fallback {
		catalog = append(catalog, api.Plan{Name: p.Name, Amount: p.Amount, Currency: p.Currency, Interval: p.Interval})
	}
	return catalog
}
