package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"swapRouter/internal/chain"
)

// CurveOracle evolves a position's base price along its bonding curve. The
// curve itself is an external pure function; the router only consumes its
// result.
type CurveOracle interface {
	PriceAfterBuy(ctx context.Context, curve common.Address, price, delta *big.Int) (*big.Int, error)
	PriceAfterSell(ctx context.Context, curve common.Address, price, delta *big.Int) (*big.Int, error)
}

// ChainCurveOracle calls the deployed curve contracts.
type ChainCurveOracle struct {
	chain *chain.Client
}

// NewChainCurveOracle builds an oracle over the chain client.
func NewChainCurveOracle(chainClient *chain.Client) *ChainCurveOracle {
	return &ChainCurveOracle{chain: chainClient}
}

// PriceAfterBuy returns the base price after one unit is bought from the
// position.
func (o *ChainCurveOracle) PriceAfterBuy(ctx context.Context, curve common.Address, price, delta *big.Int) (*big.Int, error) {
	return o.callCurve(ctx, curve, "priceAfterBuy", price, delta)
}

// PriceAfterSell returns the base price after one unit is sold into the
// position.
func (o *ChainCurveOracle) PriceAfterSell(ctx context.Context, curve common.Address, price, delta *big.Int) (*big.Int, error) {
	return o.callCurve(ctx, curve, "priceAfterSell", price, delta)
}

func (o *ChainCurveOracle) callCurve(ctx context.Context, curve common.Address, method string, price, delta *big.Int) (*big.Int, error) {
	cABI, err := CurveABI()
	if err != nil {
		return nil, fmt.Errorf("parse curve abi: %w", err)
	}
	data, err := cABI.Pack(method, price, delta)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &curve, Data: data}
	resp, err := o.chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := cABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return asBigInt(values, method)
}
