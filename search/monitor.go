package search

import "github.com/poiesic/embedsync/vectorstore"

// SearchMonitor provides hooks to observe the search process.
type SearchMonitor interface {
	Start(query string)
	AfterVectorQuery(hits []vectorstore.Hit)
	VerbatimHit(hit vectorstore.Hit)
	Finish(results []Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                        {}
func (n *noopMonitor) AfterVectorQuery(_ []vectorstore.Hit) {}
func (n *noopMonitor) VerbatimHit(_ vectorstore.Hit)        {}
func (n *noopMonitor) Finish(_ []Result)                    {}
