package retention

import "sync"

// Guard releases a single pin on the height it was issued for.
// Releasing twice is a safe no-op.
type Guard struct {
	pins     *PinSet
	height   uint64
	released bool
}

// Release unpins the guarded height, once its last outstanding guard
// for that height is released.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.pins.release(g.height)
}

// PinSet is the union of currently-held pins a long-lived reader
// (e.g. a proof query holding a historical root open) registers
// against a height, preventing a concurrent GC pass from pruning it
// out from under them. Refcounted so overlapping readers of the same
// height compose correctly.
type PinSet struct {
	mu    sync.Mutex
	count map[uint64]int
}

// NewPinSet returns an empty pin set.
func NewPinSet() *PinSet {
	return &PinSet{count: make(map[uint64]int)}
}

// Pin registers one hold against height and returns the Guard that
// releases it.
func (p *PinSet) Pin(height uint64) *Guard {
	p.mu.Lock()
	p.count[height]++
	p.mu.Unlock()
	return &Guard{pins: p, height: height}
}

func (p *PinSet) release(height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.count[height] - 1
	if n <= 0 {
		delete(p.count, height)
		return
	}
	p.count[height] = n
}

// Snapshot returns the set of currently pinned heights.
func (p *PinSet) Snapshot() map[uint64]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uint64]struct{}, len(p.count))
	for h := range p.count {
		out[h] = struct{}{}
	}
	return out
}
