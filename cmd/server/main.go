// Command server runs the medicine tracking backend: HTTP ingestion and
// query endpoints, the websocket fanout hub, and the asynchronous ledger
// submission pipeline.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arnavsinghal09/medtrack-server/internal/config"
	httpapi "github.com/arnavsinghal09/medtrack-server/internal/http"
	"github.com/arnavsinghal09/medtrack-server/internal/ledger"
	"github.com/arnavsinghal09/medtrack-server/internal/observability"
	"github.com/arnavsinghal09/medtrack-server/internal/repo"
	"github.com/arnavsinghal09/medtrack-server/internal/services"
	"github.com/arnavsinghal09/medtrack-server/internal/state"
	"github.com/arnavsinghal09/medtrack-server/internal/ws"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; in production the environment is the
	// source of truth and the file simply does not exist.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	setupLogger(cfg)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Submission journal
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open journal database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("journal migration failed")
	}
	journal := repo.NewSubmissionJournal(db)

	// Ledger client
	var client ledger.Client
	if cfg.Ledger.Enabled {
		ethClient, err := ledger.DialEth(ctx, ledger.EthConfig{
			RPCURL:          cfg.Ledger.RPCURL,
			ContractAddress: cfg.Ledger.ContractAddress,
			PrivateKeyHex:   cfg.Ledger.PrivateKey,
			ChainID:         cfg.Ledger.ChainID,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("ledger dial failed")
		}
		defer ethClient.Close()
		client = ethClient
		log.Info().Int64("chain_id", cfg.Ledger.ChainID).Msg("ledger client connected")
	} else {
		client = ledger.NopClient{}
		log.Warn().Msg("ledger disabled; submissions confirm locally")
	}

	pipeline := ledger.NewPipeline(client, journal, log.Logger)
	pipeline.ConfirmTimeout = cfg.Ledger.ConfirmTimeout

	// State, services, fanout
	cache := state.New()
	svc := services.NewTrackingService(cache, nil, pipeline)
	hub := ws.NewHub(svc, log.Logger)
	svc.Hub = hub
	go hub.Run(ctx)

	// HTTP transport
	r := gin.New()
	httpapi.RegisterRoutes(r, svc, hub, journal, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Let in-flight ledger submissions reach a terminal outcome so the
	// journal is complete before the process exits.
	pipeline.Wait()
	log.Info().Msg("server stopped")
}

// setupLogger configures the global zerolog logger from config.
func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
