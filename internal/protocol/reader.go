package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"swapRouter/internal/chain"
	"swapRouter/internal/model"
)

// StateReader reads authoritative position state from the chain. The cache
// never derives prices for creation, removal, or edits itself; it always
// refetches through this interface.
type StateReader interface {
	GetPosition(ctx context.Context, pool common.Address, lpID uint64) (*model.LiquidityPosition, error)
	LpOfNFT(ctx context.Context, pool common.Address, nftID *big.Int) (uint64, error)
	PoolFee(ctx context.Context, pool common.Address) (uint64, error)
}

// lpData mirrors the getLP tuple layout.
type lpData struct {
	NftIds      []*big.Int
	TokenAmount *big.Int
	SpotPrice   *big.Int
	Curve       common.Address
	Delta       *big.Int
	Fee         *big.Int
}

// ChainStateReader resolves positions via eth_call against the pool
// contracts.
type ChainStateReader struct {
	chain *chain.Client
}

// NewChainStateReader builds a reader over the chain client.
func NewChainStateReader(chainClient *chain.Client) *ChainStateReader {
	return &ChainStateReader{chain: chainClient}
}

// GetPosition fetches the full position record and derives its buy and sell
// prices.
func (r *ChainStateReader) GetPosition(ctx context.Context, pool common.Address, lpID uint64) (*model.LiquidityPosition, error) {
	pABI, err := TradingPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, pABI, "getLP", new(big.Int).SetUint64(lpID))
	if err != nil {
		return nil, err
	}
	if len(values) < 1 {
		return nil, fmt.Errorf("getLP: empty result")
	}

	lp := abi.ConvertType(values[0], new(lpData)).(*lpData)
	if lp.Fee == nil || !lp.Fee.IsUint64() || lp.Fee.Uint64() > model.FeeDenominator {
		return nil, fmt.Errorf("getLP: fee out of range: %v", lp.Fee)
	}

	pos := &model.LiquidityPosition{
		ID:          lpID,
		Curve:       lp.Curve,
		BasePrice:   lp.SpotPrice,
		Delta:       lp.Delta,
		FeeBps:      lp.Fee.Uint64(),
		TokenAmount: lp.TokenAmount,
		NFTs:        lp.NftIds,
	}
	pos.RefreshPrices()
	return pos, nil
}

// LpOfNFT resolves a token id to its owning position via the pool's
// on-chain mapping.
func (r *ChainStateReader) LpOfNFT(ctx context.Context, pool common.Address, nftID *big.Int) (uint64, error) {
	pABI, err := TradingPoolABI()
	if err != nil {
		return 0, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, pABI, "nftToLp", nftID)
	if err != nil {
		return 0, err
	}
	lpID, err := asBigInt(values, "nftToLp")
	if err != nil {
		return 0, err
	}
	if !lpID.IsUint64() {
		return 0, fmt.Errorf("nftToLp: lpId does not fit in uint64: %s", lpID)
	}
	return lpID.Uint64(), nil
}

// PoolFee returns the pool-level protocol fee in basis points.
func (r *ChainStateReader) PoolFee(ctx context.Context, pool common.Address) (uint64, error) {
	pABI, err := TradingPoolABI()
	if err != nil {
		return 0, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, pABI, "getFee")
	if err != nil {
		return 0, err
	}
	fee, err := asBigInt(values, "getFee")
	if err != nil {
		return 0, err
	}
	if !fee.IsUint64() || fee.Uint64() > model.FeeDenominator {
		return 0, fmt.Errorf("getFee: fee out of range: %s", fee)
	}
	return fee.Uint64(), nil
}

func (r *ChainStateReader) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := r.chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asBigInt(values []interface{}, method string) (*big.Int, error) {
	if len(values) < 1 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return value, nil
}
