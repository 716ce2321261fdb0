package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tulumbak/courierhook/internal/auth"
	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/database"
	"github.com/tulumbak/courierhook/internal/ledger"
	"github.com/tulumbak/courierhook/internal/orders"
	"github.com/tulumbak/courierhook/internal/pipeline"
	"github.com/tulumbak/courierhook/internal/processor"
	"github.com/tulumbak/courierhook/internal/ratelimit"
	"github.com/tulumbak/courierhook/internal/registry"
	"github.com/tulumbak/courierhook/internal/server"
	"github.com/tulumbak/courierhook/internal/vault"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook ingestion service",
	Long: `Start the HTTP server that receives courier platform webhooks.

The vault master key must be supplied out-of-band, e.g.:
  COURIERHOOK_VAULT_MASTER_KEY=$(courierhook keygen) courierhook serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	setupLogging(cfg.Logging.Level, cfg.Logging.Format)

	// A missing or short master key is a fatal startup error, never a
	// degraded mode.
	v, err := vault.New(cfg.Vault.MasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Vault master key rejected; set COURIERHOOK_VAULT_MASTER_KEY")
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	sources := registry.NewService(registry.NewStore(db), v, cfg.Vault.MinSecretLength)
	ledgerStore := ledger.NewStore(db)
	orderStore := orders.NewStore(db)

	if cfg.Bootstrap.SourcesFile != "" {
		if err := sources.ImportFile(cmd.Context(), cfg.Bootstrap.SourcesFile); err != nil {
			log.Fatal().Err(err).Str("file", cfg.Bootstrap.SourcesFile).Msg("Failed to seed webhook sources")
		}
		log.Info().Str("file", cfg.Bootstrap.SourcesFile).Msg("Webhook sources seeded")
	}

	perOrigin := ratelimit.NewLimiter(cfg.RateLimit.PerOrigin)
	defer perOrigin.Stop()
	failures := ratelimit.NewFailureTracker(cfg.RateLimit.Security.Max, cfg.RateLimit.Security.Window)
	defer failures.Stop()
	adminLimiter := ratelimit.NewLimiter(cfg.RateLimit.Admin)
	defer adminLimiter.Stop()

	p := pipeline.New(sources, ledgerStore, processor.New(orderStore), perOrigin, failures, cfg)

	pruner, err := ledger.NewPruner(ledgerStore, &cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ledger prune schedule")
	}
	pruner.Start()
	defer pruner.Stop()

	srv := server.New(cfg, db, server.Deps{
		Pipeline:     p,
		Sources:      sources,
		Ledger:       ledgerStore,
		JWTService:   auth.NewJWTService(cfg.Admin),
		AdminLimiter: adminLimiter,
	}, Version())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	return srv.Start(ctx)
}
