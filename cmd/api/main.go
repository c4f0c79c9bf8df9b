package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/almariscal/criptohacienda/configs"
	"github.com/almariscal/criptohacienda/internal/handler"
	"github.com/almariscal/criptohacienda/internal/importer"
	"github.com/almariscal/criptohacienda/internal/notify"
	"github.com/almariscal/criptohacienda/internal/pricing"
	"github.com/almariscal/criptohacienda/internal/repository"
	"github.com/almariscal/criptohacienda/internal/router"
	"github.com/almariscal/criptohacienda/internal/service"
	"github.com/almariscal/criptohacienda/internal/session"
	"github.com/almariscal/criptohacienda/utils"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	appConfig := configs.AppLoad()
	appLogger := utils.NewLogger()

	db, err := gorm.Open(sqlite.Open(appConfig.SQLitePath), &gorm.Config{})
	if err != nil {
		logger.Error("Failed to connect to DB", "error", err)
		os.Exit(1)
	}
	sessionRepo, err := repository.NewGormSessionRepository(db)
	if err != nil {
		logger.Error("Failed to prepare session repository", "error", err)
		os.Exit(1)
	}

	var publisher *notify.Publisher
	if appConfig.Kafka.Broker != "" {
		publisher, err = notify.NewPublisher(appConfig.Kafka.Broker, appConfig.Kafka.Topic, appLogger)
		if err != nil {
			logger.Error("Failed to initialize Kafka publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
	}

	oracle := pricing.NewOracle(
		[]pricing.Provider{
			pricing.NewCoinGeckoProvider(),
			pricing.NewCryptoCompareProvider(),
		},
		pricing.Config{
			Strict:    appConfig.Pricing.Strict,
			CacheSize: appConfig.Pricing.CacheSize,
		},
		appLogger,
	)

	sessionService := service.NewSessionService(
		session.NewStore(sessionRepo, appLogger),
		session.NewProcessingStore(),
		oracle,
		importer.NewEVMImporter(appLogger),
		importer.NewBTCImporter(appLogger),
		publisher,
		appLogger,
	)

	routerConfig := &router.Config{
		SessionHandler:  handler.NewSessionHandler(sessionService),
		AnalysisHandler: handler.NewAnalysisHandler(sessionService, appLogger),
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.ServerPort),
		Handler: router.NewRouter(routerConfig),
	}

	// Run with Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("API server started", "port", appConfig.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped with error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
