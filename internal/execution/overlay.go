package execution

import (
	"bytes"
	"sort"

	"github.com/certen/kernel/internal/commitment"
	"github.com/certen/kernel/internal/txmodel"
)

// Overlay buffers writes against an inner view so a unit of work (a
// transaction, or a whole block) can be discarded wholesale on
// failure instead of partially mutating whatever it wraps. Reads fall
// through to inner for any key the overlay has not itself touched.
// Overlays nest: wrapping one Overlay in another gives a transaction
// its own rollback scope within a block-wide overlay.
type Overlay struct {
	inner   txmodel.View
	written map[string][]byte
	deleted map[string]struct{}
}

// NewOverlay returns an empty overlay over inner.
func NewOverlay(inner txmodel.View) *Overlay {
	return &Overlay{
		inner:   inner,
		written: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *Overlay) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if v, ok := o.written[k]; ok {
		return v, true
	}
	if _, ok := o.deleted[k]; ok {
		return nil, false
	}
	return o.inner.Get(key)
}

func (o *Overlay) Insert(key, value []byte) {
	k := string(key)
	o.written[k] = value
	delete(o.deleted, k)
}

func (o *Overlay) Delete(key []byte) {
	k := string(key)
	delete(o.written, k)
	o.deleted[k] = struct{}{}
}

func (o *Overlay) BatchGet(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := o.Get(k); ok {
			out[i] = v
		}
	}
	return out
}

func (o *Overlay) BatchSet(entries []commitment.Leaf) {
	for _, e := range entries {
		o.Insert(e.Key, e.Value)
	}
}

func (o *Overlay) BatchApply(inserts []commitment.Leaf, deletes [][]byte) {
	for _, k := range deletes {
		o.Delete(k)
	}
	for _, e := range inserts {
		o.Insert(e.Key, e.Value)
	}
}

func (o *Overlay) PrefixScan(prefix []byte) []commitment.Leaf {
	seen := make(map[string]bool, len(o.written))
	var out []commitment.Leaf
	for k, v := range o.written {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, commitment.Leaf{Key: []byte(k), Value: v})
		}
		seen[k] = true
	}
	for _, leaf := range o.inner.PrefixScan(prefix) {
		k := string(leaf.Key)
		if seen[k] {
			continue
		}
		if _, del := o.deleted[k]; del {
			continue
		}
		out = append(out, leaf)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

// Flush applies every buffered write and delete to inner, then clears
// the overlay's own buffers.
func (o *Overlay) Flush() {
	for k := range o.deleted {
		o.inner.Delete([]byte(k))
	}
	for k, v := range o.written {
		o.inner.Insert([]byte(k), v)
	}
	o.written = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
}

// Discard drops every buffered mutation without touching inner.
func (o *Overlay) Discard() {
	o.written = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
}

var _ txmodel.View = (*Overlay)(nil)
