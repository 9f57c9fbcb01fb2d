package engine

import (
	"crest_go/internal/connmgr"
)

// LinkRegistry adapts the connection manager's link set to the Registry
// interface. Shared by the node bootstrap and the integration binary.
type LinkRegistry struct {
	mgr *connmgr.Manager
}

// NewLinkRegistry wraps a connection manager as a maker registry.
func NewLinkRegistry(mgr *connmgr.Manager) *LinkRegistry {
	return &LinkRegistry{mgr: mgr}
}

// Candidates returns the ready links for a pair as engine makers.
func (r *LinkRegistry) Candidates(pair string) []Maker {
	links := r.mgr.Candidates(pair)
	out := make([]Maker, len(links))
	for i, l := range links {
		out[i] = l
	}
	return out
}
