package txmodel

import (
	"bytes"

	"github.com/certen/kernel/internal/commitment"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// NamespacedView confines a service's writes to its own
// _service_data::<id>:: prefix, while still letting it read a short
// allow-list of system prefixes (e.g. the validator set, another
// service's published state) that it was granted at registration
// time.
type NamespacedView struct {
	inner       View
	prefix      []byte
	allowedRead [][]byte
}

// NewNamespacedView wraps inner, confining serviceId to its own
// namespace prefix plus the given read-only escape-hatch prefixes.
func NewNamespacedView(inner View, serviceId string, allowedSystemPrefixes [][]byte) *NamespacedView {
	return &NamespacedView{
		inner:       inner,
		prefix:      types.ServiceNamespacePrefix(serviceId),
		allowedRead: allowedSystemPrefixes,
	}
}

func (v *NamespacedView) inNamespace(key []byte) bool {
	return bytes.HasPrefix(key, v.prefix)
}

func (v *NamespacedView) readable(key []byte) bool {
	if v.inNamespace(key) {
		return true
	}
	for _, p := range v.allowedRead {
		if bytes.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Get allows reads of the service's own namespace plus its granted
// escape-hatch prefixes; any other key reads as absent.
func (v *NamespacedView) Get(key []byte) ([]byte, bool) {
	if !v.readable(key) {
		return nil, false
	}
	return v.inner.Get(key)
}

// Insert panics via a recorded error path if key escapes the
// namespace; callers should use InsertChecked in contexts that can
// propagate an error instead of a panic.
func (v *NamespacedView) Insert(key, value []byte) {
	if err := v.checkWrite(key); err != nil {
		panic(err)
	}
	v.inner.Insert(key, value)
}

// InsertChecked is the error-returning counterpart of Insert, used by
// the execution machine when dispatching HandleServiceCall.
func (v *NamespacedView) InsertChecked(key, value []byte) error {
	if err := v.checkWrite(key); err != nil {
		return err
	}
	v.inner.Insert(key, value)
	return nil
}

func (v *NamespacedView) Delete(key []byte) {
	if err := v.checkWrite(key); err != nil {
		panic(err)
	}
	v.inner.Delete(key)
}

func (v *NamespacedView) checkWrite(key []byte) error {
	if !v.inNamespace(key) {
		return kernerr.New(kernerr.KindPermission, "service write outside its namespace")
	}
	return nil
}

func (v *NamespacedView) BatchGet(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		val, ok := v.Get(k)
		if ok {
			out[i] = val
		}
	}
	return out
}

func (v *NamespacedView) BatchSet(entries []commitment.Leaf) {
	for _, e := range entries {
		v.Insert(e.Key, e.Value)
	}
}

func (v *NamespacedView) BatchApply(inserts []commitment.Leaf, deletes [][]byte) {
	for _, k := range deletes {
		v.Delete(k)
	}
	for _, e := range inserts {
		v.Insert(e.Key, e.Value)
	}
}

// PrefixScan restricts results to keys the caller may read: it scans
// the inner view for prefix as given, then drops every key outside
// the namespace and the allowed read prefixes.
func (v *NamespacedView) PrefixScan(prefix []byte) []commitment.Leaf {
	all := v.inner.PrefixScan(prefix)
	out := make([]commitment.Leaf, 0, len(all))
	for _, leaf := range all {
		if v.readable(leaf.Key) {
			out = append(out, leaf)
		}
	}
	return out
}

var _ View = (*NamespacedView)(nil)

// ReadOnlyView wraps a View and rejects every write with a panic,
// mirroring NamespacedView's panic-on-violation idiom. Used to enforce
// that a decorator's ValidateAnte pass never mutates state.
type ReadOnlyView struct {
	inner View
}

// NewReadOnlyView wraps inner so all writes through the result panic.
func NewReadOnlyView(inner View) *ReadOnlyView {
	return &ReadOnlyView{inner: inner}
}

func (v *ReadOnlyView) Get(key []byte) ([]byte, bool) { return v.inner.Get(key) }

func (v *ReadOnlyView) Insert(key, value []byte) {
	panic(kernerr.New(kernerr.KindPermission, "read-only view: write attempted"))
}

func (v *ReadOnlyView) Delete(key []byte) {
	panic(kernerr.New(kernerr.KindPermission, "read-only view: write attempted"))
}

func (v *ReadOnlyView) BatchGet(keys [][]byte) [][]byte { return v.inner.BatchGet(keys) }

func (v *ReadOnlyView) BatchSet(entries []commitment.Leaf) {
	panic(kernerr.New(kernerr.KindPermission, "read-only view: write attempted"))
}

func (v *ReadOnlyView) BatchApply(inserts []commitment.Leaf, deletes [][]byte) {
	panic(kernerr.New(kernerr.KindPermission, "read-only view: write attempted"))
}

func (v *ReadOnlyView) PrefixScan(prefix []byte) []commitment.Leaf { return v.inner.PrefixScan(prefix) }

var _ View = (*ReadOnlyView)(nil)
