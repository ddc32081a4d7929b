package protocol

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swapRouter/internal/model"
)

// Decoder turns raw trading pool and factory logs into typed events.
type Decoder struct {
	factory     common.Address
	topicToType map[common.Hash]model.EventType
	createTopic common.Hash
}

// NewDecoder builds a decoder bound to one factory address.
func NewDecoder(factory common.Address) (*Decoder, error) {
	fABI, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	pABI, err := TradingPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	createTopic := fABI.Events["CreateTradingPool"].ID

	return &Decoder{
		factory:     factory,
		createTopic: createTopic,
		topicToType: map[common.Hash]model.EventType{
			createTopic: model.EventPoolCreated,
			pABI.Events["AddLiquidity"].ID:    model.EventLiquidityAdded,
			pABI.Events["RemoveLiquidity"].ID: model.EventLiquidityRemoved,
			pABI.Events["EditLiquidity"].ID:   model.EventLiquidityEdited,
			pABI.Events["Buy"].ID:             model.EventBuy,
			pABI.Events["Sell"].ID:            model.EventSell,
		},
	}, nil
}

// FactoryTopics returns the topic0 filter for factory logs.
func (d *Decoder) FactoryTopics() []common.Hash {
	return []common.Hash{d.createTopic}
}

// PoolTopics returns the topic0 filter for trading pool logs.
func (d *Decoder) PoolTopics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToType)-1)
	for topic, eventType := range d.topicToType {
		if eventType == model.EventPoolCreated {
			continue
		}
		out = append(out, topic)
	}
	return out
}

// CanDecode checks whether the log carries a supported topic0.
func (d *Decoder) CanDecode(log types.Log) bool {
	if len(log.Topics) == 0 {
		return false
	}
	_, ok := d.topicToType[log.Topics[0]]
	return ok
}

// Decode converts a raw log into a typed event.
func (d *Decoder) Decode(log types.Log) (model.Event, error) {
	if len(log.Topics) == 0 {
		return model.Event{}, fmt.Errorf("missing topics")
	}
	eventType, ok := d.topicToType[log.Topics[0]]
	if !ok {
		return model.Event{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	ev := model.Event{
		Type:        eventType,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
	}

	switch eventType {
	case model.EventPoolCreated:
		if log.Address != d.factory {
			return model.Event{}, fmt.Errorf("create event from non-factory address %s", log.Address.Hex())
		}
		if len(log.Topics) < 2 {
			return model.Event{}, fmt.Errorf("create event missing pool topic")
		}
		ev.Pool = common.BytesToAddress(log.Topics[1].Bytes())

	case model.EventLiquidityAdded, model.EventLiquidityRemoved, model.EventLiquidityEdited:
		if len(log.Topics) < 3 {
			return model.Event{}, fmt.Errorf("%s event missing lpId topic", eventType)
		}
		lpID := new(big.Int).SetBytes(log.Topics[2].Bytes())
		if !lpID.IsUint64() {
			return model.Event{}, fmt.Errorf("lpId does not fit in uint64: %s", lpID)
		}
		ev.Pool = log.Address
		ev.LpID = lpID.Uint64()

	case model.EventBuy, model.EventSell:
		nftIDs, err := decodeTradeNFTs(string(eventType), log.Data)
		if err != nil {
			return model.Event{}, err
		}
		ev.Pool = log.Address
		ev.NFTIDs = nftIDs
	}

	return ev, nil
}

func decodeTradeNFTs(eventName string, data []byte) ([]*big.Int, error) {
	pABI, err := TradingPoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := pABI.Unpack(eventName, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", eventName, err)
	}
	if len(values) < 1 {
		return nil, fmt.Errorf("unpack %s: missing nftIds", eventName)
	}
	nftIDs, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: nftIds has unexpected type %T", eventName, values[0])
	}
	return nftIDs, nil
}
