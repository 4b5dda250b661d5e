package story

import "sync"

// BalanceMeta is author-declared balance metadata. It is only consumed
// by the static validator and reporting tools, never enforced at play
// time.
type BalanceMeta struct {
	PathCount int
	AvgNet    int
	MinNet    int
	MaxNet    int
}

// Story is a registered branching narrative template. Statically
// authored stories are read-only once registered; incrementally
// generated stories are owned by a single session and spliced node by
// node as the player reaches new layers.
type Story struct {
	ID    string
	Title string
	Emoji string
	Start string
	Meta  BalanceMeta

	// Generated marks a story built on demand by the incremental
	// generator. It is unregistered when its sole session ends.
	Generated bool

	mu    sync.RWMutex
	nodes map[string]*Node
}

// New builds a story from its node list, indexing nodes by id.
func New(id, title, emoji, start string, nodes []*Node) *Story {
	m := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return &Story{ID: id, Title: title, Emoji: emoji, Start: start, nodes: m}
}

// Node returns the node with the given id.
func (s *Story) Node(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// Add inserts or replaces a node. Used by the incremental generator to
// splice a layer into a live graph.
func (s *Story) Add(nodes ...*Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
}

// Nodes returns a snapshot of the node set.
func (s *Story) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// Len returns the number of nodes, pending slots included.
func (s *Story) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
