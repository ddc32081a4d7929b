package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapRouter/internal/index"
	"swapRouter/internal/model"
	"swapRouter/internal/protocol"
	"swapRouter/internal/registry"
	"swapRouter/internal/storage"
)

// Config holds retry and timeout settings for outbound chain calls made
// while applying events.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
}

// Synchronizer applies decoded protocol events to the pool registry. Every
// transition refetches authoritative state before touching an index, and the
// remove+reinsert pair runs as one step under the pool's write lock, so a
// concurrent snapshot never sees a half-applied refresh. Events are applied
// in arrival order by a single consumer.
type Synchronizer struct {
	cfg      Config
	registry *registry.Registry
	reader   protocol.StateReader
	journal  storage.Journal
	chainID  uint64
	logger   *zap.Logger
}

// NewSynchronizer builds a Synchronizer with its dependencies. journal may
// be nil to disable the audit trail.
func NewSynchronizer(cfg Config, reg *registry.Registry, reader protocol.StateReader, journal storage.Journal, chainID uint64, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Synchronizer{
		cfg:      cfg,
		registry: reg,
		reader:   reader,
		journal:  journal,
		chainID:  chainID,
		logger:   logger,
	}
}

// Registry returns the registry the synchronizer mutates.
func (s *Synchronizer) Registry() *registry.Registry {
	return s.registry
}

// Run consumes events until the channel closes or the context ends. A failed
// event is logged and dropped rather than blocking the stream; the cache
// goes stale for that position, never corrupt.
func (s *Synchronizer) Run(ctx context.Context, events <-chan model.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Apply(ctx, ev); err != nil {
				s.logger.Warn("event dropped",
					zap.String("type", string(ev.Type)),
					zap.String("pool", ev.Pool.Hex()),
					zap.Uint64("lp_id", ev.LpID),
					zap.Uint64("block", ev.BlockNumber),
					zap.Error(err),
				)
			}
		}
	}
}

// Apply performs the state transition for one event. Duplicate or
// out-of-order deliveries are no-ops by precondition checks.
func (s *Synchronizer) Apply(ctx context.Context, ev model.Event) error {
	var err error
	switch ev.Type {
	case model.EventPoolCreated:
		err = s.applyPoolCreated(ctx, ev)
	case model.EventLiquidityAdded:
		err = s.applyLiquidityAdded(ctx, ev)
	case model.EventLiquidityRemoved:
		err = s.applyLiquidityRemoved(ev)
	case model.EventLiquidityEdited:
		err = s.refreshPosition(ctx, ev.Pool, ev.LpID)
	case model.EventBuy, model.EventSell:
		err = s.applyTrade(ctx, ev)
	default:
		err = fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err != nil {
		return err
	}

	s.appendJournal(ctx, ev)
	return nil
}

func (s *Synchronizer) applyPoolCreated(ctx context.Context, ev model.Event) error {
	pool, err := s.registry.CreatePool(ev.Pool)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicatePool) {
			s.logger.Debug("pool already registered", zap.String("pool", ev.Pool.Hex()))
			return nil
		}
		return err
	}

	// The protocol fee is informational; a fetch failure does not fail the
	// transition.
	feeCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	if fee, err := s.reader.PoolFee(feeCtx, ev.Pool); err == nil {
		pool.SetFeeBps(fee)
	} else {
		s.logger.Warn("pool fee fetch failed", zap.String("pool", ev.Pool.Hex()), zap.Error(err))
	}

	s.logger.Info("pool registered", zap.String("pool", ev.Pool.Hex()), zap.Uint64("block", ev.BlockNumber))
	return nil
}

func (s *Synchronizer) applyLiquidityAdded(ctx context.Context, ev model.Event) error {
	pool, ok := s.registry.Get(ev.Pool)
	if !ok {
		return fmt.Errorf("unknown pool %s", ev.Pool.Hex())
	}

	pos, err := s.fetchPosition(ctx, ev.Pool, ev.LpID)
	if err != nil {
		return fmt.Errorf("fetch position %d: %w", ev.LpID, err)
	}

	return pool.Update(func(ix *index.DualPriceIndex) error {
		if ix.Contains(ev.LpID) {
			s.logger.Debug("position already cached", zap.String("pool", ev.Pool.Hex()), zap.Uint64("lp_id", ev.LpID))
			return nil
		}
		ix.Insert(pos)
		return nil
	})
}

func (s *Synchronizer) applyLiquidityRemoved(ev model.Event) error {
	pool, ok := s.registry.Get(ev.Pool)
	if !ok {
		return fmt.Errorf("unknown pool %s", ev.Pool.Hex())
	}

	return pool.Update(func(ix *index.DualPriceIndex) error {
		removed, err := ix.RemoveByID(ev.LpID)
		if err != nil {
			s.logger.Error("index inconsistency detected",
				zap.String("pool", ev.Pool.Hex()),
				zap.Uint64("lp_id", ev.LpID),
				zap.Error(err),
			)
			return err
		}
		if !removed {
			s.logger.Debug("position already removed", zap.String("pool", ev.Pool.Hex()), zap.Uint64("lp_id", ev.LpID))
		}
		return nil
	})
}

// refreshPosition replaces a cached position with freshly fetched state. The
// fetch completes before the lock is taken; on fetch failure the prior state
// stays untouched.
func (s *Synchronizer) refreshPosition(ctx context.Context, poolAddr common.Address, lpID uint64) error {
	pool, ok := s.registry.Get(poolAddr)
	if !ok {
		return fmt.Errorf("unknown pool %s", poolAddr.Hex())
	}

	pos, err := s.fetchPosition(ctx, poolAddr, lpID)
	if err != nil {
		return fmt.Errorf("fetch position %d: %w", lpID, err)
	}

	return pool.Update(func(ix *index.DualPriceIndex) error {
		removed, err := ix.RemoveByID(lpID)
		if err != nil {
			s.logger.Error("index inconsistency detected",
				zap.String("pool", poolAddr.Hex()),
				zap.Uint64("lp_id", lpID),
				zap.Error(err),
			)
			return err
		}
		if !removed {
			s.logger.Debug("refresh for uncached position skipped", zap.String("pool", poolAddr.Hex()), zap.Uint64("lp_id", lpID))
			return nil
		}
		ix.Insert(pos)
		return nil
	})
}

// applyTrade refreshes every position whose inventory or balance a trade
// touched. A user sell moves NFTs into the pool, so the on-chain mapping
// resolves them; a user buy moves them out, so only the cached inventory
// still knows the owner. Both lookups are intentional, not redundant.
func (s *Synchronizer) applyTrade(ctx context.Context, ev model.Event) error {
	pool, ok := s.registry.Get(ev.Pool)
	if !ok {
		return fmt.Errorf("unknown pool %s", ev.Pool.Hex())
	}

	affected := make(map[uint64]struct{})
	for _, nftID := range ev.NFTIDs {
		switch ev.Type {
		case model.EventSell:
			var lpID uint64
			err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
				defer cancel()
				var err error
				lpID, err = s.reader.LpOfNFT(callCtx, ev.Pool, nftID)
				return err
			})
			if err != nil {
				return fmt.Errorf("resolve nft %s: %w", nftID, err)
			}
			affected[lpID] = struct{}{}
		case model.EventBuy:
			if lpID, ok := pool.FindLpByNFT(nftID); ok {
				affected[lpID] = struct{}{}
			} else {
				s.logger.Debug("traded nft not in cached inventory", zap.String("pool", ev.Pool.Hex()), zap.String("nft", nftID.String()))
			}
		}
	}

	for lpID := range affected {
		if err := s.refreshPosition(ctx, ev.Pool, lpID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) fetchPosition(ctx context.Context, pool common.Address, lpID uint64) (*model.LiquidityPosition, error) {
	var pos *model.LiquidityPosition
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		var err error
		pos, err = s.reader.GetPosition(callCtx, pool, lpID)
		if err != nil {
			s.logger.Warn("position fetch failed", zap.String("pool", pool.Hex()), zap.Uint64("lp_id", lpID), zap.Error(err))
		}
		return err
	})
	return pos, err
}

func (s *Synchronizer) appendJournal(ctx context.Context, ev model.Event) {
	if s.journal == nil {
		return
	}

	rec := model.JournalRecord{
		ChainID:     s.chainID,
		Pool:        ev.Pool.Hex(),
		EventType:   string(ev.Type),
		LpID:        ev.LpID,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		AppliedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, nftID := range ev.NFTIDs {
		rec.NFTIDs = append(rec.NFTIDs, nftID.String())
	}

	if err := s.journal.Append(ctx, rec); err != nil {
		s.logger.Warn("journal append failed", zap.String("pool", ev.Pool.Hex()), zap.Error(err))
	}
}
