package execution

import (
	"sort"

	"github.com/certen/kernel/internal/txmodel"
)

// ServiceDirectory is the read path the execution machine needs over
// the registered service set: lookup by id, and the full set in the
// deterministic service-id byte order that decorator dispatch and
// end-of-block invocation rely on.
type ServiceDirectory interface {
	Lookup(id string) (txmodel.ServiceHandler, bool)
	InOrder() []txmodel.ServiceHandler
}

// Registry is a ServiceDirectory backed by a plain map, presenting its
// services sorted by id wherever order matters.
type Registry struct {
	byID map[string]txmodel.ServiceHandler
	ids  []string
}

// NewRegistry builds a Registry from a fixed set of handlers, keyed by
// their own reported Id().
func NewRegistry(handlers ...txmodel.ServiceHandler) *Registry {
	r := &Registry{byID: make(map[string]txmodel.ServiceHandler, len(handlers))}
	for _, h := range handlers {
		r.byID[h.Id()] = h
		r.ids = append(r.ids, h.Id())
	}
	sort.Strings(r.ids)
	return r
}

func (r *Registry) Lookup(id string) (txmodel.ServiceHandler, bool) {
	h, ok := r.byID[id]
	return h, ok
}

func (r *Registry) InOrder() []txmodel.ServiceHandler {
	out := make([]txmodel.ServiceHandler, len(r.ids))
	for i, id := range r.ids {
		out[i] = r.byID[id]
	}
	return out
}

var _ ServiceDirectory = (*Registry)(nil)
