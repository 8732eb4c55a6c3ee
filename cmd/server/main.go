package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpctx "github.com/dtroode/learnhub-auth/internal/api/http/context"
	"github.com/dtroode/learnhub-auth/internal/api/http/handler"
	"github.com/dtroode/learnhub-auth/internal/api/http/router"
	httpServer "github.com/dtroode/learnhub-auth/internal/api/http/server"
	"github.com/dtroode/learnhub-auth/internal/audit"
	"github.com/dtroode/learnhub-auth/internal/config"
	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/metrics"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/password"
	"github.com/dtroode/learnhub-auth/internal/repository/memory"
	"github.com/dtroode/learnhub-auth/internal/repository/postgres"
	"github.com/dtroode/learnhub-auth/internal/server"
	"github.com/dtroode/learnhub-auth/internal/service"
	storage "github.com/dtroode/learnhub-auth/internal/storage/minio"
	"github.com/dtroode/learnhub-auth/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

type stores struct {
	users  model.UserStore
	tokens model.RefreshTokenStore
	pinger handler.Pinger
	close  func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.IsProduction())

	if cfg.IsProduction() && cfg.JWT.Secret == "devsecret" {
		logger.Fatal("JWT_SECRET must be set in production")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err, "driver", cfg.StorageDriver)
	}
	defer st.close()

	authMetrics := metrics.NewAuth()
	recorder, err := newAuditRecorder(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize audit trail", "error", err)
	}

	tokenManager := token.NewJWT(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	tokenService := service.NewTokenService(tokenManager, st.tokens, st.users, logger, service.TokenConfig{
		AccessTTL:    cfg.JWT.AccessTTL,
		RefreshTTL:   cfg.JWT.RefreshTTL,
		StoreTimeout: cfg.Database.Timeout,
		Metrics:      authMetrics,
		Audit:        recorder,
	})
	authService := service.NewAuth(st.users, tokenService, password.NewHasher(cfg.Password.BcryptCost), logger, service.AuthConfig{
		StoreTimeout: cfg.Database.Timeout,
		Metrics:      authMetrics,
		Audit:        recorder,
	})

	opts := router.Options{
		Cookies: handler.CookieSettings{
			AccessName:  cfg.Cookie.AccessName,
			RefreshName: cfg.Cookie.RefreshName,
			RefreshPath: cfg.Cookie.RefreshPath,
			Domain:      cfg.Cookie.Domain,
			Secure:      cfg.SecureCookies(),
		},
		Pinger:  st.pinger,
		WebRoot: cfg.HTTP.WebRoot,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = authMetrics
		opts.MetricsPath = cfg.Metrics.Path
	}

	r := router.New(authService, tokenService, httpctx.NewManager(), opts, logger)
	srv := httpServer.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port))
	sl := server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address(), "https", cfg.HTTP.EnableHTTPS)
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return stores{
			users:  memory.NewUserRepository(),
			tokens: memory.NewRefreshTokenRepository(),
			close:  func() error { return nil },
		}, nil
	}

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		return stores{}, err
	}
	return stores{
		users:  postgres.NewUserRepository(db),
		tokens: postgres.NewRefreshTokenRepository(db),
		pinger: db,
		close:  db.Close,
	}, nil
}

func newAuditRecorder(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*audit.Recorder, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	storageClient, err := storage.NewClient(ctx, storage.Options{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	sink := audit.MultiSink{
		audit.NewLogSink(logger),
		audit.NewObjectSink(storageClient, ""),
	}
	return audit.NewRecorder(sink, logger, cfg.Database.Timeout), nil
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
