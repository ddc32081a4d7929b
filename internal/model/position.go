package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeDenominator is the basis-point scale used for all fee and impact math.
const FeeDenominator = 10000

// LiquidityPosition is one priced, curve-governed position inside a trading
// pool. BasePrice is the raw quote before fees; BuyPrice and SellPrice are
// derived once whenever the position is refreshed from chain state and are
// never recomputed at query time.
type LiquidityPosition struct {
	ID          uint64         `json:"id"`
	Curve       common.Address `json:"curve"`
	BasePrice   *big.Int       `json:"base_price"`
	Delta       *big.Int       `json:"delta"`
	FeeBps      uint64         `json:"fee_bps"`
	TokenAmount *big.Int       `json:"token_amount"`
	NFTs        []*big.Int     `json:"nfts"`

	SellPrice *big.Int `json:"sell_price"`
	BuyPrice  *big.Int `json:"buy_price"`
}

// RefreshPrices recomputes SellPrice and BuyPrice from BasePrice and FeeBps
// using truncating integer division, matching the protocol's own convention.
func (p *LiquidityPosition) RefreshPrices() {
	base := p.BasePrice
	if base == nil {
		base = new(big.Int)
	}
	den := big.NewInt(FeeDenominator)

	sell := new(big.Int).Mul(base, big.NewInt(FeeDenominator-int64(p.FeeBps)))
	p.SellPrice = sell.Div(sell, den)

	buy := new(big.Int).Mul(base, big.NewInt(FeeDenominator+int64(p.FeeBps)))
	p.BuyPrice = buy.Div(buy, den)
}

// Clone returns a deep copy. The copy shares nothing mutable with the
// original, so simulation over a clone never leaks into cached state.
func (p *LiquidityPosition) Clone() *LiquidityPosition {
	cp := &LiquidityPosition{
		ID:     p.ID,
		Curve:  p.Curve,
		FeeBps: p.FeeBps,
	}
	if p.BasePrice != nil {
		cp.BasePrice = new(big.Int).Set(p.BasePrice)
	}
	if p.Delta != nil {
		cp.Delta = new(big.Int).Set(p.Delta)
	}
	if p.TokenAmount != nil {
		cp.TokenAmount = new(big.Int).Set(p.TokenAmount)
	}
	if p.SellPrice != nil {
		cp.SellPrice = new(big.Int).Set(p.SellPrice)
	}
	if p.BuyPrice != nil {
		cp.BuyPrice = new(big.Int).Set(p.BuyPrice)
	}
	if p.NFTs != nil {
		cp.NFTs = make([]*big.Int, len(p.NFTs))
		for i, id := range p.NFTs {
			cp.NFTs[i] = new(big.Int).Set(id)
		}
	}
	return cp
}

// LastNFT returns the last element of the inventory, matching the on-chain
// withdrawal order. The second return is false for an empty inventory.
func (p *LiquidityPosition) LastNFT() (*big.Int, bool) {
	if len(p.NFTs) == 0 {
		return nil, false
	}
	return p.NFTs[len(p.NFTs)-1], true
}

// PopNFT removes and returns the last element of the inventory.
func (p *LiquidityPosition) PopNFT() (*big.Int, bool) {
	if len(p.NFTs) == 0 {
		return nil, false
	}
	last := p.NFTs[len(p.NFTs)-1]
	p.NFTs = p.NFTs[:len(p.NFTs)-1]
	return last, true
}

// HoldsNFT reports whether the inventory contains the given token id.
func (p *LiquidityPosition) HoldsNFT(nftID *big.Int) bool {
	for _, id := range p.NFTs {
		if id.Cmp(nftID) == 0 {
			return true
		}
	}
	return false
}
