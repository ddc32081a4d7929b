package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapRouter/internal/model"
	"swapRouter/internal/protocol"
	"swapRouter/internal/registry"
)

// PollerConfig holds live feed settings.
type PollerConfig struct {
	Factory      common.Address
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Poller tails new blocks and feeds decoded events into the synchronizer's
// channel in per-pool block order.
type Poller struct {
	cfg      PollerConfig
	chain    LogSource
	decoder  *protocol.Decoder
	registry *registry.Registry
	logger   *zap.Logger
	last     uint64
}

// NewPoller builds a Poller that resumes after the given block.
func NewPoller(cfg PollerConfig, source LogSource, decoder *protocol.Decoder, reg *registry.Registry, fromBlock uint64, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Poller{
		cfg:      cfg,
		chain:    source,
		decoder:  decoder,
		registry: reg,
		logger:   logger,
		last:     fromBlock,
	}
}

// Run polls until the context ends, sending decoded events to out.
func (p *Poller) Run(ctx context.Context, out chan<- model.Event) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollOnce(ctx, out); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("poll round failed", zap.Error(err))
			}
		}
	}
}

// pollOnce scans (last, head] for factory and pool logs. Factory logs are
// scanned first so a pool created in this round has its own logs picked up
// in the same round.
func (p *Poller) pollOnce(ctx context.Context, out chan<- model.Event) error {
	head, err := p.chain.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	if head <= p.last {
		return nil
	}
	from := p.last + 1

	factoryLogs, err := p.filterLogsWithRetry(ctx, from, head, []common.Address{p.cfg.Factory}, p.decoder.FactoryTopics())
	if err != nil {
		return err
	}

	addresses := p.registry.Addresses()
	for _, log := range factoryLogs {
		ev, err := p.decoder.Decode(log)
		if err != nil {
			p.logger.Warn("decode factory log failed", zap.Uint64("block", log.BlockNumber), zap.Error(err))
			continue
		}
		addresses = append(addresses, ev.Pool)
	}

	var poolLogs []types.Log
	if len(addresses) > 0 {
		poolLogs, err = p.filterLogsWithRetry(ctx, from, head, addresses, p.decoder.PoolTopics())
		if err != nil {
			return err
		}
	}

	logs := append(factoryLogs, poolLogs...)
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, log := range logs {
		ev, err := p.decoder.Decode(log)
		if err != nil {
			p.logger.Warn("decode log failed", zap.Uint64("block", log.BlockNumber), zap.String("tx", log.TxHash.Hex()), zap.Error(err))
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- ev:
		}
	}

	p.last = head
	return nil
}

func (p *Poller) filterLogsWithRetry(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = p.chain.FilterLogs(ctx, from, to, addresses, topics)
		if err != nil {
			p.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", from), zap.Uint64("to", to))
		}
		return err
	})
	return logs, err
}
