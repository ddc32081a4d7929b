package router

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapRouter/internal/index"
	"swapRouter/internal/model"
	"swapRouter/internal/registry"
)

var (
	poolA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// fakeOracle walks a linear curve: +delta per buy, -delta per sell.
type fakeOracle struct {
	err error
}

func (o *fakeOracle) PriceAfterBuy(_ context.Context, _ common.Address, price, delta *big.Int) (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	return new(big.Int).Add(price, delta), nil
}

func (o *fakeOracle) PriceAfterSell(_ context.Context, _ common.Address, price, delta *big.Int) (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	next := new(big.Int).Sub(price, delta)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	return next, nil
}

type fakeReader struct {
	nftToLp   map[string]uint64
	positions map[uint64]*model.LiquidityPosition
	err       error
}

func (r *fakeReader) GetPosition(_ context.Context, _ common.Address, lpID uint64) (*model.LiquidityPosition, error) {
	if r.err != nil {
		return nil, r.err
	}
	pos, ok := r.positions[lpID]
	if !ok {
		return nil, errors.New("position not found")
	}
	return pos.Clone(), nil
}

func (r *fakeReader) LpOfNFT(_ context.Context, _ common.Address, nftID *big.Int) (uint64, error) {
	if r.err != nil {
		return 0, r.err
	}
	lpID, ok := r.nftToLp[nftID.String()]
	if !ok {
		return 0, errors.New("nft not found")
	}
	return lpID, nil
}

func (r *fakeReader) PoolFee(_ context.Context, _ common.Address) (uint64, error) {
	return 0, r.err
}

func newPosition(id uint64, basePrice, delta, tokenAmount int64, nfts ...int64) *model.LiquidityPosition {
	p := &model.LiquidityPosition{
		ID:          id,
		BasePrice:   big.NewInt(basePrice),
		Delta:       big.NewInt(delta),
		TokenAmount: big.NewInt(tokenAmount),
	}
	for _, n := range nfts {
		p.NFTs = append(p.NFTs, big.NewInt(n))
	}
	p.RefreshPrices()
	return p
}

func setupPool(t *testing.T, addr common.Address, reg *registry.Registry, positions ...*model.LiquidityPosition) {
	t.Helper()
	pool, err := reg.CreatePool(addr)
	require.NoError(t, err)
	err = pool.Update(func(ix *index.DualPriceIndex) error {
		for _, p := range positions {
			ix.Insert(p)
		}
		return nil
	})
	require.NoError(t, err)
}

func newEngine(reg *registry.Registry, reader *fakeReader) *Engine {
	if reader == nil {
		reader = &fakeReader{}
	}
	return New(reg, &fakeOracle{}, reader, nil)
}

func TestQuoteBuyReevaluatesBestEachStep(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg,
		newPosition(1, 100, 10, 0, 1, 2),
		newPosition(2, 105, 5, 0, 3),
	)
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteBuy(context.Background(), poolA, 3)
	require.NoError(t, err)

	// The engine must pick the best candidate at every step, not drain one
	// position first: 100 (lp1), then 105 (lp2), then lp1 again at 110.
	require.Equal(t, []uint64{1, 2, 1}, quote.LPs)
	require.Equal(t, big.NewInt(315), quote.Price)
	require.Equal(t, []*big.Int{big.NewInt(2), big.NewInt(3), big.NewInt(1)}, quote.ExampleNFTs)
	// First unit cost 100; lp1 remains on top at 120 after its second fill.
	require.Equal(t, int64(2000), quote.PriceImpact)
}

func TestQuoteBuyMonotonicPrices(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg,
		newPosition(1, 100, 30, 0, 1, 2, 3),
		newPosition(2, 110, 7, 0, 4, 5),
		newPosition(3, 120, 1, 0, 6),
	)
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteBuy(context.Background(), poolA, 6)
	require.NoError(t, err)
	require.Len(t, quote.LPs, 6)

	prices := fillPrices(t, reg, quote)
	for i := 1; i < len(prices); i++ {
		require.True(t, prices[i].Cmp(prices[i-1]) >= 0,
			"fill %d price %s below previous %s", i, prices[i], prices[i-1])
	}
}

// fillPrices replays a quote's fill order against fresh copies of the
// canonical positions to recover each step's price.
func fillPrices(t *testing.T, reg *registry.Registry, quote *model.BuyQuote) []*big.Int {
	t.Helper()
	pool, ok := reg.Get(poolA)
	require.True(t, ok)

	working := make(map[uint64]*model.LiquidityPosition)
	prices := make([]*big.Int, 0, len(quote.LPs))
	for _, lpID := range quote.LPs {
		pos, ok := working[lpID]
		if !ok {
			pos, ok = pool.Position(lpID)
			require.True(t, ok)
			working[lpID] = pos
		}
		prices = append(prices, new(big.Int).Set(pos.BuyPrice))
		pos.BasePrice.Add(pos.BasePrice, pos.Delta)
		pos.RefreshPrices()
	}
	return prices
}

func TestQuoteBuyPartialFill(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 0, 1, 2))
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteBuy(context.Background(), poolA, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 1}, quote.LPs)
	require.Equal(t, big.NewInt(210), quote.Price)
}

func TestQuoteBuyUnknownPool(t *testing.T) {
	engine := newEngine(registry.New(), nil)

	quote, err := engine.QuoteBuy(context.Background(), poolA, 5)
	require.NoError(t, err)
	require.Empty(t, quote.LPs)
	require.Zero(t, quote.Price.Sign())
	require.Zero(t, quote.PriceImpact)
}

func TestQuoteBuyDoesNotMutateCanonicalState(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg,
		newPosition(1, 100, 10, 0, 1, 2),
		newPosition(2, 105, 5, 0, 3),
	)
	engine := newEngine(reg, nil)

	_, err := engine.QuoteBuy(context.Background(), poolA, 3)
	require.NoError(t, err)

	pool, ok := reg.Get(poolA)
	require.True(t, ok)
	pos, ok := pool.Position(1)
	require.True(t, ok)
	require.Equal(t, big.NewInt(100), pos.BasePrice)
	require.Len(t, pos.NFTs, 2)
	pos, ok = pool.Position(2)
	require.True(t, ok)
	require.Equal(t, big.NewInt(105), pos.BasePrice)
	require.Len(t, pos.NFTs, 1)
}

func TestQuoteBuyWithFee(t *testing.T) {
	reg := registry.New()
	pos := newPosition(1, 100, 10, 0, 1)
	pos.FeeBps = 250
	pos.RefreshPrices()
	setupPool(t, poolA, reg, pos)
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteBuy(context.Background(), poolA, 1)
	require.NoError(t, err)
	// 100 * 10250 / 10000, truncated.
	require.Equal(t, big.NewInt(102), quote.Price)
}

func TestQuoteSellSkipsUnderfundedPositions(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg,
		newPosition(1, 300, 10, 0),   // best price but cannot pay
		newPosition(2, 200, 20, 500), // funds two fills, then runs dry
	)
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteSell(context.Background(), poolA, 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 2}, quote.LPs)
	// 200 then 180; the third fill needs 160 but only 120 remains.
	require.Equal(t, big.NewInt(380), quote.Price)
	// first=200, last=0 once every candidate is dropped.
	require.Equal(t, int64(10000), quote.PriceImpact)
}

func TestQuoteSellPriceImpact(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 200, 20, 1000))
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteSell(context.Background(), poolA, 2)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(380), quote.Price)
	// first=200, remaining top quotes 160.
	require.Equal(t, int64(2000), quote.PriceImpact)
}

func TestQuoteSwapValidation(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 1000, 1))
	engine := newEngine(reg, nil)

	var validationErr *ValidationError

	_, err := engine.QuoteSwap(context.Background(), poolA, poolA, 1, 1)
	require.ErrorAs(t, err, &validationErr)

	_, err = engine.QuoteSwap(context.Background(), poolA, poolB, 0, 1)
	require.ErrorAs(t, err, &validationErr)

	_, err = engine.QuoteSwap(context.Background(), poolA, poolB, 1, 0)
	require.ErrorAs(t, err, &validationErr)

	// Validation failures leave the canonical state untouched.
	pool, ok := reg.Get(poolA)
	require.True(t, ok)
	require.Equal(t, 1, pool.LpCount())
}

func TestQuoteSwapComposesIndependentSimulations(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 200, 20, 1000))
	setupPool(t, poolB, reg, newPosition(2, 100, 10, 0, 7))
	engine := newEngine(reg, nil)

	quote, err := engine.QuoteSwap(context.Background(), poolA, poolB, 1, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, quote.SellLPs)
	require.Equal(t, big.NewInt(200), quote.SellPrice)
	require.Equal(t, []uint64{2}, quote.BuyLPs)
	require.Equal(t, big.NewInt(100), quote.BuyPrice)
	require.Equal(t, []*big.Int{big.NewInt(7)}, quote.ExampleBuyNFTs)
}

func TestQuoteBuyExactAdvancesRepeatedLp(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 0, 7, 8))
	reader := &fakeReader{
		nftToLp: map[string]uint64{"7": 1, "8": 1},
	}
	engine := newEngine(reg, reader)

	quote, err := engine.QuoteBuyExact(context.Background(), poolA, []*big.Int{big.NewInt(7), big.NewInt(8)})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 1}, quote.LPs)
	// Second NFT prices at the oracle-advanced 110, not the cached 100.
	require.Equal(t, big.NewInt(210), quote.Price)
}

func TestQuoteBuyExactRepeatedNFTID(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 0, 7))
	reader := &fakeReader{nftToLp: map[string]uint64{"7": 1}}
	engine := newEngine(reg, reader)

	quote, err := engine.QuoteBuyExact(context.Background(), poolA, []*big.Int{big.NewInt(7), big.NewInt(7)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(210), quote.Price)
}

func TestQuoteSellExact(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 1000))
	reader := &fakeReader{nftToLp: map[string]uint64{"7": 1, "8": 1}}
	engine := newEngine(reg, reader)

	quote, err := engine.QuoteSellExact(context.Background(), poolA, []*big.Int{big.NewInt(7), big.NewInt(8)})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 1}, quote.LPs)
	// 100 then the advanced 90.
	require.Equal(t, big.NewInt(190), quote.Price)
}

func TestQuoteExactResolutionFailure(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 0, 7))
	reader := &fakeReader{err: errors.New("rpc down")}
	engine := newEngine(reg, reader)

	_, err := engine.QuoteBuyExact(context.Background(), poolA, []*big.Int{big.NewInt(7)})
	require.Error(t, err)
}

func TestQuoteBuyOracleFailure(t *testing.T) {
	reg := registry.New()
	setupPool(t, poolA, reg, newPosition(1, 100, 10, 0, 1))
	engine := New(reg, &fakeOracle{err: errors.New("rpc down")}, &fakeReader{}, nil)

	_, err := engine.QuoteBuy(context.Background(), poolA, 1)
	require.Error(t, err)
}
