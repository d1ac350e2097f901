package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/merkelview/merkel-server/internal/api"
	"github.com/merkelview/merkel-server/internal/config"
	"github.com/merkelview/merkel-server/internal/geo"
	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/mail"
	"github.com/merkelview/merkel-server/internal/metrics"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/repository/postgres"
	"github.com/merkelview/merkel-server/internal/server"
	"github.com/merkelview/merkel-server/internal/service"
	storage "github.com/merkelview/merkel-server/internal/storage/minio"
	"github.com/merkelview/merkel-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewCollector(registry)

	userRepo := postgres.NewUserRepository(db)
	locationRepo := postgres.NewLocationRepository(db)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(db)
	tokenManager := token.NewJWT(cfg.JWT.Secret)

	mailer := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	storageClient, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket, cfg.Storage.PublicURL)
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}

	authService := service.NewAuth(userRepo, refreshTokenRepo, tokenManager, mailer, cfg.Mail.BaseURL, recorder, logger)
	flowService := service.NewFlow(authService, logger)
	feed := service.NewFeed(locationRepo, logger)
	locationService := service.NewLocation(locationRepo, userRepo, storageClient, feed, recorder, logger)

	geocoder := geo.NewClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent,
		time.Duration(cfg.Geocoder.TimeoutMS)*time.Millisecond, recorder)
	mapAdapter := geo.NewMapAdapter(geocoder, logger)

	router := api.NewRouter(&api.RouterDeps{
		Auth:           authService,
		Flows:          flowService,
		Locations:      locationService,
		Feed:           feed,
		MapAdapter:     mapAdapter,
		ContextManager: api.NewContextManager(),
		Registry:       registry,
		AuthRateLimit:  api.NewRateLimiter(cfg.HTTP.AuthRatePerMinute),
		Logger:         logger,
	})

	httpServer := server.NewHTTPServer(router, fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(httpServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", httpServer.Address())
	}

	feed.Unsubscribe()
	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
