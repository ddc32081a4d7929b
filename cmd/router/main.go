package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swapRouter/internal/api"
	"swapRouter/internal/chain"
	"swapRouter/internal/config"
	"swapRouter/internal/ingest"
	"swapRouter/internal/model"
	"swapRouter/internal/protocol"
	"swapRouter/internal/registry"
	"swapRouter/internal/router"
	"swapRouter/internal/storage"
	"swapRouter/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "router",
		Short:        "NFT swap router quoting service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the swap router",
		RunE:  runRouter,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("factory", "", "trading pool factory address")
	runCmd.Flags().Uint64("deploy-block", 0, "factory deploy block (bootstrap replay start)")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per bootstrap batch")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts for chain calls")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("call-timeout", 10*time.Second, "per chain call timeout")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "live log poll interval")
	runCmd.Flags().String("listen", ":8080", "HTTP listen address")
	runCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path")
	runCmd.Flags().Bool("journal-enabled", true, "enable the event journal")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the event journal (overrides JSONL)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRouter(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Factory) {
		return fmt.Errorf("factory must be a hex address")
	}
	factory := common.HexToAddress(cfg.Factory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	decoder, err := protocol.NewDecoder(factory)
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	reader := protocol.NewChainStateReader(chainClient)
	oracle := protocol.NewChainCurveOracle(chainClient)
	reg := registry.New()

	var journal storage.Journal
	if cfg.JournalEnabled {
		if cfg.PgDSN != "" {
			pgJournal, err := postgres.NewJournal(ctx, cfg.PgDSN)
			if err != nil {
				return fmt.Errorf("connect journal db: %w", err)
			}
			defer pgJournal.Close()
			journal = pgJournal
		} else {
			journal = storage.NewJsonlJournal(cfg.JournalPath)
		}
	}

	synchronizer := ingest.NewSynchronizer(ingest.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		CallTimeout:  cfg.CallTimeout,
	}, reg, reader, journal, chainID.Uint64(), logger)

	bootstrap := ingest.NewBootstrap(ingest.BootstrapConfig{
		Factory:      factory,
		DeployBlock:  cfg.DeployBlock,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, decoder, synchronizer, logger)

	head, err := bootstrap.Run(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	poller := ingest.NewPoller(ingest.PollerConfig{
		Factory:      factory,
		Interval:     cfg.PollInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, decoder, reg, head, logger)

	engine := router.New(reg, oracle, reader, logger)
	server := api.NewServer(engine, reg, logger)

	logger.Info("router start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("factory", factory.Hex()),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Uint64("head", head),
		zap.Int("pools", reg.Len()),
		zap.String("listen", cfg.ListenAddr),
		zap.Bool("journal_enabled", cfg.JournalEnabled),
	)

	events := make(chan model.Event, 256)
	errCh := make(chan error, 3)
	go func() { errCh <- synchronizer.Run(ctx, events) }()
	go func() { errCh <- poller.Run(ctx, events) }()
	go func() { errCh <- server.Run(ctx, cfg.ListenAddr) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
