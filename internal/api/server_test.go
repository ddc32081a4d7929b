package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapRouter/internal/index"
	"swapRouter/internal/model"
	"swapRouter/internal/registry"
	"swapRouter/internal/router"
)

var (
	poolA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	poolB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type linearOracle struct{}

func (linearOracle) PriceAfterBuy(_ context.Context, _ common.Address, price, delta *big.Int) (*big.Int, error) {
	return new(big.Int).Add(price, delta), nil
}

func (linearOracle) PriceAfterSell(_ context.Context, _ common.Address, price, delta *big.Int) (*big.Int, error) {
	next := new(big.Int).Sub(price, delta)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	return next, nil
}

type mapReader struct {
	nftToLp map[string]uint64
	err     error
}

func (r *mapReader) GetPosition(_ context.Context, _ common.Address, lpID uint64) (*model.LiquidityPosition, error) {
	return nil, errors.New("position not cached")
}

func (r *mapReader) LpOfNFT(_ context.Context, _ common.Address, nftID *big.Int) (uint64, error) {
	if r.err != nil {
		return 0, r.err
	}
	lpID, ok := r.nftToLp[nftID.String()]
	if !ok {
		return 0, errors.New("nft not found")
	}
	return lpID, nil
}

func (r *mapReader) PoolFee(_ context.Context, _ common.Address) (uint64, error) {
	return 0, nil
}

func newTestServer(t *testing.T, reader *mapReader) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()

	pool, err := reg.CreatePool(poolA)
	require.NoError(t, err)
	err = pool.Update(func(ix *index.DualPriceIndex) error {
		pos := &model.LiquidityPosition{
			ID:          1,
			BasePrice:   big.NewInt(100),
			Delta:       big.NewInt(10),
			TokenAmount: big.NewInt(1000),
			NFTs:        []*big.Int{big.NewInt(5), big.NewInt(6)},
		}
		pos.RefreshPrices()
		ix.Insert(pos)
		return nil
	})
	require.NoError(t, err)

	_, err = reg.CreatePool(poolB)
	require.NoError(t, err)

	engine := router.New(reg, linearOracle{}, reader, nil)
	return NewServer(engine, reg, nil), reg
}

func doRequest(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})
	rec := doRequest(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
		Pools  int    `json:"pools"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 2, body.Pools)
}

func TestPools(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})
	rec := doRequest(t, s, "/pools")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pools []poolInfo `json:"pools"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Pools, 2)
	require.Equal(t, poolA.Hex(), body.Pools[0].Address)
	require.Equal(t, 1, body.Pools[0].LpCount)
}

func TestBuyQuote(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})
	rec := doRequest(t, s, "/buy?pool="+poolA.Hex()+"&amount=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body buyResponse
	decodeBody(t, rec, &body)
	require.Equal(t, []uint64{1, 1}, body.LPs)
	require.Equal(t, "210", body.Price)
	require.Equal(t, []string{"6", "5"}, body.ExampleNFTs)
}

func TestBuyQuoteUnknownPoolIsEmpty(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})
	rec := doRequest(t, s, "/buy?pool=0x00000000000000000000000000000000000000cc&amount=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var body buyResponse
	decodeBody(t, rec, &body)
	require.Empty(t, body.LPs)
	require.Equal(t, "0", body.Price)
	require.NotNil(t, body.ExampleNFTs)
}

func TestBuyQuoteBadInput(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})

	rec := doRequest(t, s, "/buy?pool=not-an-address&amount=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, "/buy?pool="+poolA.Hex()+"&amount=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSellQuote(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})
	rec := doRequest(t, s, "/sell?pool="+poolA.Hex()+"&amount=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body sellResponse
	decodeBody(t, rec, &body)
	require.Equal(t, []uint64{1}, body.LPs)
	require.Equal(t, "100", body.Price)
}

func TestSwapQuoteValidation(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})

	rec := doRequest(t, s, "/swap?sellPool="+poolA.Hex()+"&buyPool="+poolA.Hex()+"&sellAmount=1&buyAmount=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, "/swap?sellPool="+poolA.Hex()+"&buyPool="+poolB.Hex()+"&sellAmount=0&buyAmount=1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwapQuote(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})
	rec := doRequest(t, s, "/swap?sellPool="+poolB.Hex()+"&buyPool="+poolA.Hex()+"&sellAmount=1&buyAmount=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body swapResponse
	decodeBody(t, rec, &body)
	require.Empty(t, body.SellLPs)
	require.Equal(t, "0", body.SellPrice)
	require.Equal(t, []uint64{1}, body.BuyLPs)
	require.Equal(t, "100", body.BuyPrice)
}

func TestBuyExactQuote(t *testing.T) {
	reader := &mapReader{nftToLp: map[string]uint64{"5": 1, "6": 1}}
	s, _ := newTestServer(t, reader)
	rec := doRequest(t, s, "/buyExact?pool="+poolA.Hex()+"&nfts=5,6")
	require.Equal(t, http.StatusOK, rec.Code)

	var body exactResponse
	decodeBody(t, rec, &body)
	require.Equal(t, []uint64{1, 1}, body.LPs)
	require.Equal(t, "210", body.Price)
}

func TestBuyExactQuoteBadList(t *testing.T) {
	s, _ := newTestServer(t, &mapReader{})

	rec := doRequest(t, s, "/buyExact?pool="+poolA.Hex()+"&nfts=")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, "/buyExact?pool="+poolA.Hex()+"&nfts=1,abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteFailureIsInternalError(t *testing.T) {
	reader := &mapReader{err: errors.New("rpc down")}
	s, _ := newTestServer(t, reader)
	rec := doRequest(t, s, "/buyExact?pool="+poolA.Hex()+"&nfts=5")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
