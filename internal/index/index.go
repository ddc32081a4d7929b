package index

import (
	"container/heap"
	"errors"
	"fmt"

	"swapRouter/internal/model"
)

// Side selects one of the two price orderings.
type Side int

const (
	// Sell orders positions by SellPrice descending: the position paying the
	// most for an incoming NFT is popped first.
	Sell Side = iota
	// Buy orders positions by BuyPrice ascending: the cheapest position to
	// buy from is popped first.
	Buy
)

func (s Side) String() string {
	switch s {
	case Sell:
		return "sell"
	case Buy:
		return "buy"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ErrInconsistent reports a position found on one side of the index but not
// the other. It indicates a violated update invariant and is never repaired
// silently.
var ErrInconsistent = errors.New("position present on one index side only")

type entry struct {
	pos *model.LiquidityPosition
	seq uint64
}

// sellHeap pops the highest SellPrice first. Equal prices break toward the
// most recently inserted entry.
type sellHeap []*entry

func (h sellHeap) Len() int { return len(h) }
func (h sellHeap) Less(i, j int) bool {
	c := h[i].pos.SellPrice.Cmp(h[j].pos.SellPrice)
	if c != 0 {
		return c > 0
	}
	return h[i].seq > h[j].seq
}
func (h sellHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sellHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *sellHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// buyHeap pops the lowest BuyPrice first, with the same recency tie-break.
type buyHeap []*entry

func (h buyHeap) Len() int { return len(h) }
func (h buyHeap) Less(i, j int) bool {
	c := h[i].pos.BuyPrice.Cmp(h[j].pos.BuyPrice)
	if c != 0 {
		return c < 0
	}
	return h[i].seq > h[j].seq
}
func (h buyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *buyHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *buyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// DualPriceIndex keeps one position set under two priority orderings. Both
// sides always hold the same ids; Insert and RemoveByID touch both sides as
// one step. PopBest and Push operate on a single side and exist for
// simulation over a Clone, where the other side is never consulted.
//
// The index is not safe for concurrent use; callers serialize access.
type DualPriceIndex struct {
	sell sellHeap
	buy  buyHeap
	seq  uint64
}

// New returns an empty index.
func New() *DualPriceIndex {
	return &DualPriceIndex{}
}

// Insert adds a position to both orderings. Both sides share the same
// position record, so a later Lookup observes one consistent state.
func (ix *DualPriceIndex) Insert(p *model.LiquidityPosition) {
	ix.seq++
	heap.Push(&ix.sell, &entry{pos: p, seq: ix.seq})
	heap.Push(&ix.buy, &entry{pos: p, seq: ix.seq})
}

// Push adds a position to a single side. Intended for reinserting an
// oracle-advanced position during simulation on a cloned index.
func (ix *DualPriceIndex) Push(side Side, p *model.LiquidityPosition) {
	ix.seq++
	e := &entry{pos: p, seq: ix.seq}
	switch side {
	case Sell:
		heap.Push(&ix.sell, e)
	case Buy:
		heap.Push(&ix.buy, e)
	}
}

// PeekBest returns the best position on a side without removing it.
func (ix *DualPriceIndex) PeekBest(side Side) (*model.LiquidityPosition, bool) {
	switch side {
	case Sell:
		if len(ix.sell) == 0 {
			return nil, false
		}
		return ix.sell[0].pos, true
	case Buy:
		if len(ix.buy) == 0 {
			return nil, false
		}
		return ix.buy[0].pos, true
	}
	return nil, false
}

// PopBest removes and returns the best position on a side.
func (ix *DualPriceIndex) PopBest(side Side) (*model.LiquidityPosition, bool) {
	switch side {
	case Sell:
		if len(ix.sell) == 0 {
			return nil, false
		}
		return heap.Pop(&ix.sell).(*entry).pos, true
	case Buy:
		if len(ix.buy) == 0 {
			return nil, false
		}
		return heap.Pop(&ix.buy).(*entry).pos, true
	}
	return nil, false
}

// RemoveByID removes a position from both orderings. Removal is a linear
// scan; positions churn far less than they are queried. An absent id is a
// no-op so a duplicate or late event cannot corrupt state. If the id is
// found on exactly one side, the index is inconsistent and ErrInconsistent
// is returned with the sided removal already applied.
func (ix *DualPriceIndex) RemoveByID(id uint64) (bool, error) {
	removedSell := removeFrom(&ix.sell, id)
	removedBuy := removeFrom(&ix.buy, id)
	if removedSell != removedBuy {
		return true, fmt.Errorf("%w: id %d sell=%t buy=%t", ErrInconsistent, id, removedSell, removedBuy)
	}
	return removedSell, nil
}

func removeFrom(h heap.Interface, id uint64) bool {
	var entries []*entry
	switch typed := h.(type) {
	case *sellHeap:
		entries = *typed
	case *buyHeap:
		entries = *typed
	}
	for i, e := range entries {
		if e.pos.ID == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}

// Contains reports whether the id is present. The sell side is
// authoritative; both sides hold the same set.
func (ix *DualPriceIndex) Contains(id uint64) bool {
	_, ok := ix.Lookup(id)
	return ok
}

// Lookup returns the live position record for an id.
func (ix *DualPriceIndex) Lookup(id uint64) (*model.LiquidityPosition, bool) {
	for _, e := range ix.sell {
		if e.pos.ID == id {
			return e.pos, true
		}
	}
	return nil, false
}

// Positions returns the live position records in unspecified order.
func (ix *DualPriceIndex) Positions() []*model.LiquidityPosition {
	out := make([]*model.LiquidityPosition, 0, len(ix.sell))
	for _, e := range ix.sell {
		out = append(out, e.pos)
	}
	return out
}

// IDs returns the id set of one side, in unspecified order.
func (ix *DualPriceIndex) IDs(side Side) []uint64 {
	var entries []*entry
	switch side {
	case Sell:
		entries = ix.sell
	case Buy:
		entries = ix.buy
	}
	out := make([]uint64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.pos.ID)
	}
	return out
}

// Len returns the number of entries on a side.
func (ix *DualPriceIndex) Len(side Side) int {
	switch side {
	case Sell:
		return len(ix.sell)
	case Buy:
		return len(ix.buy)
	}
	return 0
}

// Clone returns an independent deep copy. Entries that share a position
// record in the original share a single copied record in the clone, so the
// clone behaves exactly like the original under mutation.
func (ix *DualPriceIndex) Clone() *DualPriceIndex {
	copies := make(map[uint64]*model.LiquidityPosition, len(ix.sell))
	clonePos := func(p *model.LiquidityPosition) *model.LiquidityPosition {
		if cp, ok := copies[p.ID]; ok {
			return cp
		}
		cp := p.Clone()
		copies[p.ID] = cp
		return cp
	}

	out := &DualPriceIndex{
		sell: make(sellHeap, len(ix.sell)),
		buy:  make(buyHeap, len(ix.buy)),
		seq:  ix.seq,
	}
	for i, e := range ix.sell {
		out.sell[i] = &entry{pos: clonePos(e.pos), seq: e.seq}
	}
	for i, e := range ix.buy {
		out.buy[i] = &entry{pos: clonePos(e.pos), seq: e.seq}
	}
	return out
}
