package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/veritasvote/veritas-node/credential"
	"github.com/veritasvote/veritas-node/db/metadb"
	"github.com/veritasvote/veritas-node/log"
	"github.com/veritasvote/veritas-node/nullifier"
	"github.com/veritasvote/veritas-node/service"
	"github.com/veritasvote/veritas-node/storage"
	"github.com/veritasvote/veritas-node/submission"
	"github.com/veritasvote/veritas-node/types"
	"github.com/veritasvote/veritas-node/workers"
)

// Services holds all the running services
type Services struct {
	Storage  *storage.Storage
	Executor *workers.KeyedExecutor
	Pipeline *submission.Pipeline
	Anchor   *service.AnchorService
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output)
	log.Infow("starting veritas-node", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", metadb.TypePebble)
	database, err := metadb.New(metadb.TypePebble, cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	streams, err := storage.NewFSStreams(cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record streams: %w", err)
	}
	services.Storage = storage.New(database, streams)

	services.Executor = workers.NewKeyedExecutor(cfg.Workers.Parallelism)
	services.Executor.Start(ctx)

	authority := credential.NewAuthority(services.Storage)
	registry := nullifier.NewRegistry(services.Storage)
	services.Pipeline = submission.NewPipeline(services.Storage, authority, registry, services.Executor)

	services.Anchor = service.NewAnchorService(services.Storage,
		&streamSink{streams: streams}, cfg.Anchor.Interval)
	if err := services.Anchor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start anchor service: %w", err)
	}
	return services, nil
}

// shutdownServices stops services in reverse dependency order.
func shutdownServices(services *Services) {
	if services.Anchor != nil {
		services.Anchor.Stop()
	}
	if services.Executor != nil {
		services.Executor.Stop()
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
	log.Info("services stopped")
}

// streamSink publishes attestations to an append-only record stream under
// the data directory. External witnesses tail the stream; confirmations and
// retries are theirs to manage.
type streamSink struct {
	streams storage.StreamStore
}

var _ service.WitnessSink = (*streamSink)(nil)

func (s *streamSink) Publish(_ context.Context, attestation *types.RootAttestation) error {
	return s.streams.Append("anchors", attestation)
}
