package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapRouter/internal/protocol"
)

// LogSource provides the chain reads the replay and poll loops need.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// BootstrapConfig holds replay settings.
type BootstrapConfig struct {
	Factory      common.Address
	DeployBlock  uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Bootstrap rebuilds the registry from historical logs before any query is
// served. It replays factory creations first, then every registered pool's
// liquidity and trade history, through the same synchronizer transitions the
// live feed uses.
type Bootstrap struct {
	cfg     BootstrapConfig
	chain   LogSource
	decoder *protocol.Decoder
	sync    *Synchronizer
	logger  *zap.Logger
}

// NewBootstrap builds a Bootstrap with its dependencies.
func NewBootstrap(cfg BootstrapConfig, source LogSource, decoder *protocol.Decoder, sync *Synchronizer, logger *zap.Logger) *Bootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{
		cfg:     cfg,
		chain:   source,
		decoder: decoder,
		sync:    sync,
		logger:  logger,
	}
}

// Run replays history up to the chain head and returns the last replayed
// block, where the live feed picks up.
func (b *Bootstrap) Run(ctx context.Context) (uint64, error) {
	if b.chain == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	if b.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}

	head, err := b.chain.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if head < b.cfg.DeployBlock {
		return head, nil
	}

	ranges, err := SplitRange(b.cfg.DeployBlock, head, b.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	b.logger.Info("bootstrap start",
		zap.String("factory", b.cfg.Factory.Hex()),
		zap.Uint64("from", b.cfg.DeployBlock),
		zap.Uint64("to", head),
	)

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		logs, err := b.filterLogsWithRetry(ctx, blockRange, []common.Address{b.cfg.Factory}, b.decoder.FactoryTopics())
		if err != nil {
			return 0, fmt.Errorf("filter factory logs: %w", err)
		}
		if err := b.applyLogs(ctx, logs); err != nil {
			return 0, err
		}
	}

	pools := b.sync.Registry().Addresses()
	b.logger.Info("bootstrap pools discovered", zap.Int("pools", len(pools)))
	if len(pools) == 0 {
		return head, nil
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		logs, err := b.filterLogsWithRetry(ctx, blockRange, pools, b.decoder.PoolTopics())
		if err != nil {
			return 0, fmt.Errorf("filter pool logs: %w", err)
		}
		if err := b.applyLogs(ctx, logs); err != nil {
			return 0, err
		}

		b.logger.Info("bootstrap batch complete", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Int("logs", len(logs)))
	}

	b.logger.Info("bootstrap complete", zap.Uint64("head", head), zap.Int("pools", b.sync.Registry().Len()))
	return head, nil
}

// applyLogs decodes and applies logs in block order. A log that fails to
// decode or apply is dropped with a warning; one bad log must not abort the
// whole replay.
func (b *Bootstrap) applyLogs(ctx context.Context, logs []types.Log) error {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, log := range logs {
		ev, err := b.decoder.Decode(log)
		if err != nil {
			b.logger.Warn("bootstrap decode failed",
				zap.Uint64("block", log.BlockNumber),
				zap.String("tx", log.TxHash.Hex()),
				zap.Error(err),
			)
			continue
		}
		if err := b.sync.Apply(ctx, ev); err != nil {
			b.logger.Warn("bootstrap apply failed",
				zap.String("type", string(ev.Type)),
				zap.String("pool", ev.Pool.Hex()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (b *Bootstrap) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, b.cfg.MaxRetries, b.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = b.chain.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, topics)
		if err != nil {
			b.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}
