package model

import "math/big"

// BuyQuote is the result of simulating a multi-unit buy against one pool.
// LPs lists the filled position ids in fill order; a position that fills more
// than one unit appears once per unit.
type BuyQuote struct {
	LPs         []uint64   `json:"lps"`
	Price       *big.Int   `json:"price"`
	PriceImpact int64      `json:"priceImpact"`
	ExampleNFTs []*big.Int `json:"exampleNFTs"`
}

// SellQuote is the result of simulating a multi-unit sell against one pool.
type SellQuote struct {
	LPs         []uint64 `json:"lps"`
	Price       *big.Int `json:"price"`
	PriceImpact int64    `json:"priceImpact"`
}

// SwapQuote composes an independent sell simulation and buy simulation over
// two distinct pools.
type SwapQuote struct {
	SellLPs         []uint64   `json:"sellLps"`
	SellPrice       *big.Int   `json:"sellPrice"`
	SellPriceImpact int64      `json:"sellPriceImpact"`
	BuyLPs          []uint64   `json:"buyLps"`
	BuyPrice        *big.Int   `json:"buyPrice"`
	BuyPriceImpact  int64      `json:"buyPriceImpact"`
	ExampleBuyNFTs  []*big.Int `json:"exampleBuyNFTs"`
}

// ExactQuote prices a caller-specified set of NFTs.
type ExactQuote struct {
	LPs   []uint64 `json:"lps"`
	Price *big.Int `json:"price"`
}
