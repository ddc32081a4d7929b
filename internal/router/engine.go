package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapRouter/internal/index"
	"swapRouter/internal/model"
	"swapRouter/internal/protocol"
	"swapRouter/internal/registry"
)

// ValidationError reports rejected query input. It never reflects missing
// liquidity, which yields an empty quote instead.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Engine answers best-price quote queries by simulating fills against a
// cloned pool index. The canonical cache is read once per query, under a
// brief read lock, and never mutated; every oracle call during simulation
// runs against the detached clone.
type Engine struct {
	registry *registry.Registry
	oracle   protocol.CurveOracle
	reader   protocol.StateReader
	logger   *zap.Logger
}

// New builds an Engine with its dependencies.
func New(reg *registry.Registry, oracle protocol.CurveOracle, reader protocol.StateReader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: reg,
		oracle:   oracle,
		reader:   reader,
		logger:   logger,
	}
}

// QuoteBuy prices buying up to amount NFTs from the pool, cheapest first.
// Each accepted fill advances the filling position along its curve and
// pushes it back, so one position may fill several units and the best
// candidate is re-evaluated at every step. Insufficient liquidity returns a
// partial fill, not an error.
func (e *Engine) QuoteBuy(ctx context.Context, poolAddr common.Address, amount uint64) (*model.BuyQuote, error) {
	quote := &model.BuyQuote{
		LPs:         []uint64{},
		Price:       new(big.Int),
		ExampleNFTs: []*big.Int{},
	}

	pool, ok := e.registry.Get(poolAddr)
	if !ok {
		return quote, nil
	}
	clone := pool.Snapshot()

	var firstPrice *big.Int
	for filled := uint64(0); filled < amount; {
		pos, ok := clone.PopBest(index.Buy)
		if !ok {
			break
		}
		nft, ok := pos.PopNFT()
		if !ok {
			// Sold out; drop it from the simulation without counting the
			// iteration.
			continue
		}

		if firstPrice == nil {
			firstPrice = new(big.Int).Set(pos.BuyPrice)
		}
		quote.LPs = append(quote.LPs, pos.ID)
		quote.Price.Add(quote.Price, pos.BuyPrice)
		quote.ExampleNFTs = append(quote.ExampleNFTs, new(big.Int).Set(nft))

		next, err := e.oracle.PriceAfterBuy(ctx, pos.Curve, pos.BasePrice, pos.Delta)
		if err != nil {
			return nil, fmt.Errorf("price after buy for lp %d: %w", pos.ID, err)
		}
		pos.BasePrice = next
		pos.RefreshPrices()
		clone.Push(index.Buy, pos)
		filled++
	}

	lastPrice := new(big.Int)
	if top, ok := clone.PeekBest(index.Buy); ok {
		lastPrice.Set(top.BuyPrice)
	}
	if firstPrice != nil {
		quote.PriceImpact = ratioBps(new(big.Int).Sub(lastPrice, firstPrice), firstPrice)
	}
	return quote, nil
}

// QuoteSell prices selling up to amount NFTs into the pool, best bid first.
// A position is eligible only while its token balance covers its own sell
// price; an underfunded position is dropped without counting the iteration.
func (e *Engine) QuoteSell(ctx context.Context, poolAddr common.Address, amount uint64) (*model.SellQuote, error) {
	quote := &model.SellQuote{
		LPs:   []uint64{},
		Price: new(big.Int),
	}

	pool, ok := e.registry.Get(poolAddr)
	if !ok {
		return quote, nil
	}
	clone := pool.Snapshot()

	var firstPrice *big.Int
	for filled := uint64(0); filled < amount; {
		pos, ok := clone.PopBest(index.Sell)
		if !ok {
			break
		}
		if pos.TokenAmount.Cmp(pos.SellPrice) < 0 {
			continue
		}

		if firstPrice == nil {
			firstPrice = new(big.Int).Set(pos.SellPrice)
		}
		quote.LPs = append(quote.LPs, pos.ID)
		quote.Price.Add(quote.Price, pos.SellPrice)
		pos.TokenAmount.Sub(pos.TokenAmount, pos.SellPrice)

		next, err := e.oracle.PriceAfterSell(ctx, pos.Curve, pos.BasePrice, pos.Delta)
		if err != nil {
			return nil, fmt.Errorf("price after sell for lp %d: %w", pos.ID, err)
		}
		pos.BasePrice = next
		pos.RefreshPrices()
		clone.Push(index.Sell, pos)
		filled++
	}

	lastPrice := new(big.Int)
	if top, ok := clone.PeekBest(index.Sell); ok {
		lastPrice.Set(top.SellPrice)
	}
	if firstPrice != nil {
		quote.PriceImpact = ratioBps(new(big.Int).Sub(firstPrice, lastPrice), firstPrice)
	}
	return quote, nil
}

// QuoteSwap composes an independent sell simulation and buy simulation over
// two distinct pools. There is no cross-pool interaction.
func (e *Engine) QuoteSwap(ctx context.Context, sellPool, buyPool common.Address, sellAmount, buyAmount uint64) (*model.SwapQuote, error) {
	if sellAmount == 0 || buyAmount == 0 {
		return nil, &ValidationError{Msg: "swap amounts must be greater than zero"}
	}
	if sellPool == buyPool {
		return nil, &ValidationError{Msg: "swap pools must differ"}
	}

	sellQuote, err := e.QuoteSell(ctx, sellPool, sellAmount)
	if err != nil {
		return nil, err
	}
	buyQuote, err := e.QuoteBuy(ctx, buyPool, buyAmount)
	if err != nil {
		return nil, err
	}

	return &model.SwapQuote{
		SellLPs:         sellQuote.LPs,
		SellPrice:       sellQuote.Price,
		SellPriceImpact: sellQuote.PriceImpact,
		BuyLPs:          buyQuote.LPs,
		BuyPrice:        buyQuote.Price,
		BuyPriceImpact:  buyQuote.PriceImpact,
		ExampleBuyNFTs:  buyQuote.ExampleNFTs,
	}, nil
}

// QuoteBuyExact prices buying a caller-specified set of NFTs. This is not a
// best-first search, so the heap is never consulted: each NFT resolves to
// its owning position and the position's price walks the curve once per
// requested NFT, including repeats within one request.
func (e *Engine) QuoteBuyExact(ctx context.Context, poolAddr common.Address, nftIDs []*big.Int) (*model.ExactQuote, error) {
	return e.quoteExact(ctx, poolAddr, nftIDs, index.Buy)
}

// QuoteSellExact prices selling a caller-specified set of NFTs.
func (e *Engine) QuoteSellExact(ctx context.Context, poolAddr common.Address, nftIDs []*big.Int) (*model.ExactQuote, error) {
	return e.quoteExact(ctx, poolAddr, nftIDs, index.Sell)
}

func (e *Engine) quoteExact(ctx context.Context, poolAddr common.Address, nftIDs []*big.Int, side index.Side) (*model.ExactQuote, error) {
	quote := &model.ExactQuote{
		LPs:   []uint64{},
		Price: new(big.Int),
	}

	pool, ok := e.registry.Get(poolAddr)
	if !ok {
		return quote, nil
	}

	// Working copies accumulate the curve walk, so two NFTs owned by one
	// position price the second at the advanced price, not the cached one.
	working := make(map[uint64]*model.LiquidityPosition)

	for _, nftID := range nftIDs {
		lpID, err := e.reader.LpOfNFT(ctx, poolAddr, nftID)
		if err != nil {
			return nil, fmt.Errorf("resolve nft %s: %w", nftID, err)
		}

		pos, ok := working[lpID]
		if !ok {
			pos, ok = pool.Position(lpID)
			if !ok {
				pos, err = e.reader.GetPosition(ctx, poolAddr, lpID)
				if err != nil {
					return nil, fmt.Errorf("fetch position %d: %w", lpID, err)
				}
			}
			working[lpID] = pos
		}

		quote.LPs = append(quote.LPs, lpID)

		var next *big.Int
		switch side {
		case index.Buy:
			quote.Price.Add(quote.Price, pos.BuyPrice)
			next, err = e.oracle.PriceAfterBuy(ctx, pos.Curve, pos.BasePrice, pos.Delta)
		case index.Sell:
			quote.Price.Add(quote.Price, pos.SellPrice)
			next, err = e.oracle.PriceAfterSell(ctx, pos.Curve, pos.BasePrice, pos.Delta)
		}
		if err != nil {
			return nil, fmt.Errorf("advance price for lp %d: %w", lpID, err)
		}
		pos.BasePrice = next
		pos.RefreshPrices()
	}

	return quote, nil
}

// ratioBps returns floor(diff*10000/base) in basis points. base is the
// price of the first accepted unit; a quote with no fills, or a zero
// reference price, has zero impact.
func ratioBps(diff, base *big.Int) int64 {
	if diff == nil || base == nil || base.Sign() <= 0 {
		return 0
	}
	q := new(big.Int).Mul(diff, big.NewInt(model.FeeDenominator))
	q.Div(q, base)
	return q.Int64()
}
