package protocol

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const factoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "nft", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"}
    ],
    "name": "CreateTradingPool",
    "type": "event"
  }
]`

const tradingPoolABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "lpId", "type": "uint256"}
    ],
    "name": "AddLiquidity",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "lpId", "type": "uint256"}
    ],
    "name": "RemoveLiquidity",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "lpId", "type": "uint256"}
    ],
    "name": "EditLiquidity",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "nftIds", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "Buy",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "nftIds", "type": "uint256[]"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "Sell",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "lpId", "type": "uint256"}],
    "name": "getLP",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256[]", "name": "nftIds", "type": "uint256[]"},
          {"internalType": "uint256", "name": "tokenAmount", "type": "uint256"},
          {"internalType": "uint256", "name": "spotPrice", "type": "uint256"},
          {"internalType": "address", "name": "curve", "type": "address"},
          {"internalType": "uint256", "name": "delta", "type": "uint256"},
          {"internalType": "uint256", "name": "fee", "type": "uint256"}
        ],
        "internalType": "struct DataTypes.LiquidityPair",
        "name": "",
        "type": "tuple"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "nftId", "type": "uint256"}],
    "name": "nftToLp",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getFee",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const curveABIJSON = `[
  {
    "inputs": [
      {"internalType": "uint256", "name": "price", "type": "uint256"},
      {"internalType": "uint256", "name": "delta", "type": "uint256"}
    ],
    "name": "priceAfterBuy",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "pure",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "price", "type": "uint256"},
      {"internalType": "uint256", "name": "delta", "type": "uint256"}
    ],
    "name": "priceAfterSell",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "pure",
    "type": "function"
  }
]`

var (
	factoryABI     abi.ABI
	factoryABIErr  error
	factoryABIOnce sync.Once

	tradingPoolABI     abi.ABI
	tradingPoolABIErr  error
	tradingPoolABIOnce sync.Once

	curveABI     abi.ABI
	curveABIErr  error
	curveABIOnce sync.Once
)

// FactoryABI returns the parsed TradingPoolFactory ABI.
func FactoryABI() (abi.ABI, error) {
	factoryABIOnce.Do(func() {
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	return factoryABI, factoryABIErr
}

// TradingPoolABI returns the parsed TradingPool ABI.
func TradingPoolABI() (abi.ABI, error) {
	tradingPoolABIOnce.Do(func() {
		tradingPoolABI, tradingPoolABIErr = abi.JSON(strings.NewReader(tradingPoolABIJSON))
	})
	return tradingPoolABI, tradingPoolABIErr
}

// CurveABI returns the parsed pricing curve ABI.
func CurveABI() (abi.ABI, error) {
	curveABIOnce.Do(func() {
		curveABI, curveABIErr = abi.JSON(strings.NewReader(curveABIJSON))
	})
	return curveABI, curveABIErr
}
