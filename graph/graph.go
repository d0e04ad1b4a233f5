package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Graph is an id-indexed table of Nodes and Scopes plus the VariableSpace
// used to execute it.
//
// Nodes and scopes reference each other by id only. A Graph is built once
// and read-only during execution; it can be executed again after Reset.
//
// Example:
//
//	g := graph.NewGraph()
//	_ = g.SetInput(100, tensor.FromFloats(1, 2, 3))
//	_ = g.SetInput(101, tensor.ScalarBool(false))
//	_ = g.AddNode(&graph.Node{ID: 1, Op: graph.OpSwitch,
//	    Inputs: []graph.Input{graph.From(100), graph.From(101)}, Outputs: 2})
//	_ = g.AddNode(&graph.Node{ID: 2, Op: "identity", Inputs: []graph.Input{graph.FromSlot(1, 0)}})
type Graph struct {
	mu     sync.RWMutex
	nodes  map[int]*Node
	order  []int
	scopes map[int]*Scope
	space  *VariableSpace
}

// NewGraph creates an empty Graph with a fresh VariableSpace.
func NewGraph() *Graph {
	return &Graph{
		nodes:  make(map[int]*Node),
		scopes: make(map[int]*Scope),
		space:  NewVariableSpace(),
	}
}

// AddNode registers n. The graph keeps its own copy, so later changes to n
// have no effect.
//
// Returns error if:
//   - n is nil
//   - n.Op is empty
//   - a node with n.ID already exists (ErrDuplicate)
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return &EngineError{Message: "node cannot be nil", Code: "INVALID_NODE"}
	}
	if n.Op == "" {
		return &EngineError{Message: fmt.Sprintf("node %d has no operator", n.ID), Code: "INVALID_NODE"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: node %d", ErrDuplicate, n.ID)
	}

	cp := *n
	cp.Inputs = append([]Input(nil), n.Inputs...)
	cp.IArgs = append([]int64(nil), n.IArgs...)
	cp.BArgs = append([]bool(nil), n.BArgs...)
	cp.SArgs = append([]string(nil), n.SArgs...)
	g.nodes[n.ID] = &cp
	g.order = append(g.order, n.ID)
	return nil
}

// AddScope registers s. Membership is checked by Validate, so scopes may be
// added before their nodes.
func (g *Graph) AddScope(s *Scope) error {
	if s == nil {
		return &EngineError{Message: "scope cannot be nil", Code: "INVALID_SCOPE"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.scopes[s.ID]; exists {
		return fmt.Errorf("%w: scope %d", ErrDuplicate, s.ID)
	}
	cp := *s
	cp.Nodes = append([]int(nil), s.Nodes...)
	g.scopes[s.ID] = &cp
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrLookup, id)
	}
	return n, nil
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Scope returns the scope with the given id, or ErrUnresolvedScope.
func (g *Graph) Scope(id int) (*Scope, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.scopes[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnresolvedScope, id)
	}
	return s, nil
}

// HasScope reports whether id is a scope of the graph.
func (g *Graph) HasScope(id int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.scopes[id]
	return ok
}

// Nodes returns the node ids in the order they were added.
func (g *Graph) Nodes() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]int(nil), g.order...)
}

// Space returns the graph's VariableSpace.
func (g *Graph) Space() *VariableSpace { return g.space }

// SetInput stores a caller-supplied value under (node, 0). node must not be
// produced by the graph itself.
func (g *Graph) SetInput(node int, v Value) error {
	if g.HasNode(node) {
		return fmt.Errorf("%w: node %d is produced by the graph", ErrDuplicate, node)
	}
	_, err := g.space.Put(VarID{Node: node}, v)
	return err
}

// Reset discards all execution state so the graph can run again.
// Caller inputs are discarded too and must be set again.
func (g *Graph) Reset() {
	g.space.Reset()
}

// Validate checks the graph's structural integrity:
//   - every scope reference resolves (ErrUnresolvedScope)
//   - every scope is non-empty and its members exist (ErrLookup)
//   - no node belongs to two scopes (ErrDuplicate)
//   - scope members only read earlier members of their own scope, and
//     scopes do not reference themselves (ErrCycle)
//   - top-level dependencies are acyclic (ErrCycle)
func (g *Graph) Validate() error {
	_, err := g.plan()
	return err
}

// plan is the dependency structure derived from a validated graph.
type plan struct {
	// topLevel lists the nodes scheduled by the driver, in declaration order.
	topLevel []int
	position map[int]int

	// owner maps a scope member to its scope.
	owner map[int]int

	// owners maps a scope to the nodes that reference it.
	owners map[int][]int

	deps       map[int][]int
	dependents map[int][]int

	// external lists plain value references, in first-use order.
	external []externalRef
}

// externalRef is a caller-supplied variable and the first node reading it.
type externalRef struct {
	id       VarID
	consumer int
}

func (g *Graph) plan() (*plan, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p := &plan{
		position:   make(map[int]int),
		owner:      make(map[int]int),
		owners:     make(map[int][]int),
		deps:       make(map[int][]int),
		dependents: make(map[int][]int),
	}

	scopeIDs := make([]int, 0, len(g.scopes))
	for id := range g.scopes {
		scopeIDs = append(scopeIDs, id)
	}
	sort.Ints(scopeIDs)

	for _, sid := range scopeIDs {
		s := g.scopes[sid]
		if len(s.Nodes) == 0 {
			return nil, &EngineError{Message: fmt.Sprintf("scope %d has no nodes", sid), Code: "EMPTY_SCOPE"}
		}
		for _, m := range s.Nodes {
			if _, ok := g.nodes[m]; !ok {
				return nil, fmt.Errorf("%w: scope %d member node %d", ErrLookup, sid, m)
			}
			if prev, dup := p.owner[m]; dup {
				return nil, fmt.Errorf("%w: node %d belongs to scopes %d and %d", ErrDuplicate, m, prev, sid)
			}
			p.owner[m] = sid
		}
	}

	seenExternal := make(map[VarID]bool)
	for _, id := range g.order {
		n := g.nodes[id]
		for _, in := range n.Inputs {
			switch {
			case in.IsScope():
				if _, ok := g.scopes[in.Scope]; !ok {
					return nil, nodeError(id, "invalid input", fmt.Errorf("%w %d", ErrUnresolvedScope, in.Scope))
				}
				p.owners[in.Scope] = append(p.owners[in.Scope], id)
			case g.nodes[in.Node] == nil:
				if !seenExternal[in.VarID()] {
					seenExternal[in.VarID()] = true
					p.external = append(p.external, externalRef{id: in.VarID(), consumer: id})
				}
			default:
				if in.Slot < 0 || in.Slot >= g.nodes[in.Node].Arity() {
					return nil, nodeError(id, "invalid input",
						fmt.Errorf("%w: node %d has no output slot %d", ErrLookup, in.Node, in.Slot))
				}
			}
		}
		if _, member := p.owner[id]; !member {
			p.position[id] = len(p.topLevel)
			p.topLevel = append(p.topLevel, id)
		}
	}

	if err := g.checkScopes(p, scopeIDs); err != nil {
		return nil, err
	}

	for _, id := range p.topLevel {
		set := make(map[int]bool)
		p.collect(g, g.nodes[id], set, map[int]bool{})
		deps := make([]int, 0, len(set))
		for d := range set {
			deps = append(deps, d)
		}
		sort.Slice(deps, func(i, j int) bool { return p.position[deps[i]] < p.position[deps[j]] })
		p.deps[id] = deps
		for _, d := range deps {
			p.dependents[d] = append(p.dependents[d], id)
		}
	}

	if err := p.checkAcyclic(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkScopes rejects forward reads inside a scope and scopes that reach
// themselves through their members' scope inputs. Caller holds g.mu.
func (g *Graph) checkScopes(p *plan, scopeIDs []int) error {
	for _, sid := range scopeIDs {
		s := g.scopes[sid]
		index := make(map[int]int, len(s.Nodes))
		for i, m := range s.Nodes {
			index[m] = i
		}
		for i, m := range s.Nodes {
			for _, in := range g.nodes[m].Inputs {
				if in.IsScope() {
					continue
				}
				if j, same := index[in.Node]; same && j >= i {
					return fmt.Errorf("%w: scope %d node %d reads later member %d", ErrCycle, sid, m, in.Node)
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[int]int)
	var visit func(sid int) error
	visit = func(sid int) error {
		switch state[sid] {
		case visiting:
			return fmt.Errorf("%w: scope %d executes itself", ErrCycle, sid)
		case done:
			return nil
		}
		state[sid] = visiting
		for _, m := range g.scopes[sid].Nodes {
			for _, in := range g.nodes[m].Inputs {
				if in.IsScope() {
					if err := visit(in.Scope); err != nil {
						return err
					}
				}
			}
		}
		state[sid] = done
		return nil
	}
	for _, sid := range scopeIDs {
		if err := visit(sid); err != nil {
			return err
		}
	}
	return nil
}

// collect adds to set the top-level producers n depends on. active holds
// the scopes already being expanded: their members run as part of the
// node that owns them, so reads of them are not dependencies.
func (p *plan) collect(g *Graph, n *Node, set map[int]bool, active map[int]bool) {
	var added []int
	for _, in := range n.Inputs {
		if in.IsScope() && !active[in.Scope] {
			active[in.Scope] = true
			added = append(added, in.Scope)
		}
	}
	for _, sid := range added {
		for _, m := range g.scopes[sid].Nodes {
			p.collect(g, g.nodes[m], set, active)
		}
	}
	for _, in := range n.Inputs {
		if in.IsScope() {
			continue
		}
		if _, ok := g.nodes[in.Node]; ok {
			p.addProducer(in.Node, set, active)
		}
	}
	for _, sid := range added {
		delete(active, sid)
	}
}

// addProducer records the top-level node that makes id's output available:
// id itself, or the owners of the scope id belongs to.
func (p *plan) addProducer(id int, set map[int]bool, active map[int]bool) {
	sid, member := p.owner[id]
	if !member {
		set[id] = true
		return
	}
	if active[sid] {
		return
	}
	active[sid] = true
	for _, o := range p.owners[sid] {
		p.addProducer(o, set, active)
	}
	delete(active, sid)
}

// checkAcyclic runs Kahn's algorithm over the top-level nodes.
func (p *plan) checkAcyclic() error {
	pending := make(map[int]int, len(p.topLevel))
	ready := make([]int, 0, len(p.topLevel))
	for _, id := range p.topLevel {
		pending[id] = len(p.deps[id])
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	visited := 0
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		visited++
		for _, d := range p.dependents[id] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if visited == len(p.topLevel) {
		return nil
	}
	var stuck []int
	for _, id := range p.topLevel {
		if pending[id] > 0 {
			stuck = append(stuck, id)
		}
	}
	return fmt.Errorf("%w among nodes %v", ErrCycle, stuck)
}
