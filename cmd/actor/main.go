package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cartridge/unity-actor/internal/actor"
	"github.com/cartridge/unity-actor/internal/config"
	"github.com/cartridge/unity-actor/internal/events"
	httpServer "github.com/cartridge/unity-actor/internal/http"
	"github.com/cartridge/unity-actor/internal/logging"
	"github.com/cartridge/unity-actor/internal/metrics"
	"github.com/cartridge/unity-actor/internal/storage"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "unity-actor",
	Short: "Random-action actor for Unity ML-Agents environments",
	Long: `Actor that drives a Unity ML-Agents environment.

The actor hosts the ML-Agents communicator endpoint, waits for the Unity
Editor or a launched player to connect, speeds up the simulation and plays
episodes with normally distributed random continuous actions.`,
	RunE:          runActor,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "YAML config file")
	config.RegisterFlags(rootCmd.Flags(), config.Default())
}

func runActor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.New(), cmd.Flags(), configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open episode store")
		return err
	}
	defer store.Close()
	collector := metrics.NewCollector(logger)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NatsURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to NATS")
			return err
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info().Str("subject", cfg.NatsSubject).Msg("Publishing events to NATS")
	}

	logger.Info().
		Str("file_name", cfg.FileName).
		Int("worker_id", cfg.WorkerID).
		Float64("time_scale", cfg.TimeScale).
		Int("max_episodes", cfg.MaxEpisodes).
		Msg("Starting actor")

	actorInstance, err := actor.New(ctx, cfg, logger,
		actor.WithStore(store),
		actor.WithMetrics(collector),
		actor.WithPublisher(publisher),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create actor")
		return err
	}
	defer actorInstance.Close()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		// Stop the status server once the episodes are done.
		defer cancelRun()
		return actorInstance.Run(runCtx)
	})
	if cfg.StatusAddr != "" {
		server := httpServer.NewServer(store, actorInstance, collector, logger)
		g.Go(func() error {
			return httpServer.ListenAndServe(runCtx, cfg.StatusAddr, server.Routes(), logger)
		})
	}

	if err := g.Wait(); err != nil {
		if actor.IsShutdown(err) && ctx.Err() != nil {
			logger.Info().Msg("Shutdown signal received, actor stopped")
			return nil
		}
		logger.Error().Err(err).Msg("Actor failed")
		return err
	}

	logger.Info().Msg("Actor stopped gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.DatabaseURL == "" {
		return storage.NewMemoryBackend(uint64(cfg.HistorySize)), nil
	}
	store, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: load %s: %v\n", envFile, err)
			os.Exit(1)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
