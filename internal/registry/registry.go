package registry

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"swapRouter/internal/index"
	"swapRouter/internal/model"
)

var (
	// ErrDuplicatePool is returned when creating a pool that already exists.
	ErrDuplicatePool = errors.New("trading pool already registered")
)

// TradingPool is one pool's cached liquidity under a per-pool lock. All
// mutation goes through Update so a concurrent Snapshot never observes a
// position removed but not yet reinserted.
type TradingPool struct {
	address common.Address

	mu     sync.RWMutex
	index  *index.DualPriceIndex
	feeBps uint64
}

// Address returns the pool's contract address.
func (p *TradingPool) Address() common.Address {
	return p.address
}

// Snapshot returns an independent clone of the pool's index. The read lock
// is held only for the copy; callers then simulate against the clone without
// blocking ingestion.
func (p *TradingPool) Snapshot() *index.DualPriceIndex {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.Clone()
}

// Update runs fn against the live index under the pool's write lock. The
// whole fn is one atomic step with respect to Snapshot.
func (p *TradingPool) Update(fn func(ix *index.DualPriceIndex) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.index)
}

// Position returns a deep copy of the cached position for an id.
func (p *TradingPool) Position(id uint64) (*model.LiquidityPosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.index.Lookup(id)
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// FindLpByNFT scans cached inventories for the position holding a token id.
// Used on the buy direction, where the chain mapping is already cleared by
// the time the event is observed.
func (p *TradingPool) FindLpByNFT(nftID *big.Int) (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pos := range p.index.Positions() {
		if pos.HoldsNFT(nftID) {
			return pos.ID, true
		}
	}
	return 0, false
}

// LpCount returns the number of cached positions.
func (p *TradingPool) LpCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.Len(index.Sell)
}

// FeeBps returns the pool-level protocol fee in basis points.
func (p *TradingPool) FeeBps() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeBps
}

// SetFeeBps records the pool-level protocol fee.
func (p *TradingPool) SetFeeBps(fee uint64) {
	p.mu.Lock()
	p.feeBps = fee
	p.mu.Unlock()
}

// Registry maps pool addresses to their cached state. Pools are only ever
// added; entries are mutated in place for the life of the process.
type Registry struct {
	mu    sync.RWMutex
	pools map[common.Address]*TradingPool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{pools: make(map[common.Address]*TradingPool)}
}

// CreatePool installs an empty pool for the address. A second creation for
// the same address fails with ErrDuplicatePool.
func (r *Registry) CreatePool(addr common.Address) (*TradingPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[addr]; ok {
		return nil, ErrDuplicatePool
	}
	pool := &TradingPool{
		address: addr,
		index:   index.New(),
	}
	r.pools[addr] = pool
	return pool, nil
}

// Get returns the pool for an address. Routing treats a missing pool as
// empty liquidity, never as an error.
func (r *Registry) Get(addr common.Address) (*TradingPool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[addr]
	return pool, ok
}

// Addresses returns all registered pool addresses in stable order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.pools))
	for addr := range r.pools {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}

// Len returns the number of registered pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
