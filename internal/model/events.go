package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a decoded protocol event.
type EventType string

const (
	EventPoolCreated      EventType = "CreateTradingPool"
	EventLiquidityAdded   EventType = "AddLiquidity"
	EventLiquidityRemoved EventType = "RemoveLiquidity"
	EventLiquidityEdited  EventType = "EditLiquidity"
	EventBuy              EventType = "Buy"
	EventSell             EventType = "Sell"
)

// Event is a decoded trading pool event enriched with log metadata.
// LpID is set for liquidity events, NFTIDs for trade events.
type Event struct {
	Type        EventType      `json:"type"`
	Pool        common.Address `json:"pool"`
	LpID        uint64         `json:"lp_id,omitempty"`
	NFTIDs      []*big.Int     `json:"nft_ids,omitempty"`
	BlockNumber uint64         `json:"block_number"`
	TxHash      string         `json:"tx_hash"`
	LogIndex    uint64         `json:"log_index"`
}
