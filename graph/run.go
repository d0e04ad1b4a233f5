package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/dataflow-go/graph/emit"
)

// run is the state of one execution of one graph.
type run struct {
	e     *Engine
	g     *Graph
	p     *plan
	id    string
	space *VariableSpace
	flow  *FlowPath

	frontier  *Frontier
	pending   map[int]*atomic.Int32
	remaining atomic.Int64
	inflight  atomic.Int64
	stop      context.CancelFunc

	mu       sync.Mutex
	step     int
	executed []int
	done     map[int]bool
	pruned   []int
	states   map[int]SwitchState
	scopes   map[int]*scopeRun
}

// scopeRun executes one scope at most once per execution.
type scopeRun struct {
	once    sync.Once
	started atomic.Bool
	err     error
}

func newRun(e *Engine, g *Graph, p *plan, id string) *run {
	r := &run{
		e:       e,
		g:       g,
		p:       p,
		id:      id,
		space:   g.space,
		flow:    g.space.FlowPath(),
		pending: make(map[int]*atomic.Int32, len(p.topLevel)),
		done:    make(map[int]bool),
		states:  make(map[int]SwitchState),
		scopes:  make(map[int]*scopeRun),
		stop:    func() {},
	}
	for _, id := range p.topLevel {
		c := new(atomic.Int32)
		c.Store(int32(len(p.deps[id])))
		r.pending[id] = c
	}
	return r
}

// loop schedules every top-level node. Ready nodes wait in the Frontier;
// up to MaxConcurrentNodes of them execute at once in an errgroup. Each
// resolved node (executed or pruned) releases its dependents.
func (r *run) loop(ctx context.Context) error {
	workers := r.e.opts.MaxConcurrentNodes
	if workers < 1 {
		workers = 1
	}
	capacity := r.e.opts.QueueDepth
	if capacity < len(r.p.topLevel) {
		capacity = len(r.p.topLevel)
	}
	r.frontier = NewFrontier(capacity)

	eg, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	defer stop()
	r.stop = stop

	r.remaining.Store(int64(len(r.p.topLevel)))
	if len(r.p.topLevel) == 0 {
		stop()
	}
	for _, id := range r.p.topLevel {
		if r.pending[id].Load() != 0 {
			continue
		}
		n, err := r.g.Node(id)
		if err != nil {
			return nodeError(id, "schedule", err)
		}
		if r.isDead(n) {
			r.prune(n, "input never produced")
			if err := r.resolve(gctx, id); err != nil {
				return err
			}
			continue
		}
		if err := r.enqueue(gctx, id); err != nil {
			return err
		}
	}

	slots := make(chan struct{}, workers)
	for {
		select {
		case slots <- struct{}{}:
		case <-loopCtx.Done():
		}
		if loopCtx.Err() != nil {
			break
		}

		item, err := r.frontier.Dequeue(loopCtx)
		if err != nil {
			break
		}
		r.e.opts.Metrics.UpdateQueueDepth(r.frontier.Len())

		nodeID := item.NodeID
		eg.Go(func() error {
			defer func() { <-slots }()
			return r.stepNode(gctx, nodeID)
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := r.remaining.Load(); n > 0 {
		return fmt.Errorf("%w: %d nodes unresolved", ErrNoProgress, n)
	}
	return nil
}

func (r *run) enqueue(ctx context.Context, id int) error {
	err := r.frontier.Enqueue(ctx, WorkItem{NodeID: id, OrderKey: uint64(r.p.position[id])})
	if err != nil {
		return err
	}
	r.e.opts.Metrics.UpdateQueueDepth(r.frontier.Len())
	return nil
}

// stepNode executes one top-level node and resolves it.
func (r *run) stepNode(ctx context.Context, id int) error {
	r.e.opts.Metrics.UpdateInflightNodes(int(r.inflight.Add(1)))
	err := r.execNode(ctx, id)
	r.e.opts.Metrics.UpdateInflightNodes(int(r.inflight.Add(-1)))
	if err != nil {
		return err
	}
	return r.resolve(ctx, id)
}

// resolve releases the dependents of id. A dependent whose last producer
// resolved is pruned if its inputs are dead, and enqueued otherwise.
func (r *run) resolve(ctx context.Context, id int) error {
	for _, d := range r.p.dependents[id] {
		if r.pending[d].Add(-1) != 0 {
			continue
		}
		n, err := r.g.Node(d)
		if err != nil {
			return nodeError(d, "resolve", err)
		}
		if r.isDead(n) {
			r.prune(n, "input on untaken branch")
			if err := r.resolve(ctx, d); err != nil {
				return err
			}
			continue
		}
		if err := r.enqueue(ctx, d); err != nil {
			return err
		}
	}
	if r.remaining.Add(-1) == 0 {
		r.stop()
	}
	return nil
}

// isDead reports whether n must not be evaluated. A Merge is dead only when
// every input is dead, a Conditional when its condition scope is dead or
// both bodies are, and any other node when one input is. A scope input is
// dead when the scope's terminal node could only read the untaken branch.
func (r *run) isDead(n *Node) bool {
	return deadByInputs(n, func(in Input) bool {
		if in.IsScope() {
			return r.scopeDead(in.Scope, map[int]bool{})
		}
		return r.inputDead(n, in)
	})
}

// deadByInputs applies n's liveness rule to the per-input verdict dead.
func deadByInputs(n *Node, dead func(Input) bool) bool {
	switch n.Op {
	case OpMerge:
		if len(n.Inputs) == 0 {
			return false
		}
		for _, in := range n.Inputs {
			if !dead(in) {
				return false
			}
		}
		return true
	case OpConditional:
		if len(n.Inputs) != 3 {
			return false
		}
		return dead(n.Inputs[0]) || (dead(n.Inputs[1]) && dead(n.Inputs[2]))
	}
	for _, in := range n.Inputs {
		if dead(in) {
			return true
		}
	}
	return false
}

// scopeDead reports whether scope sid can only produce a result on the
// untaken branch. Members are judged in declared order: a read of an
// earlier member follows that member's verdict, a read of a nested scope
// recurses, and any other read is judged by inputDead. Reads whose
// liveness is only decided later, such as members of a scope that has not
// started, count as live.
func (r *run) scopeDead(sid int, seen map[int]bool) bool {
	if seen[sid] {
		return false
	}
	seen[sid] = true
	s, err := r.g.Scope(sid)
	if err != nil || len(s.Nodes) == 0 {
		return false
	}

	dead := make(map[int]bool, len(s.Nodes))
	for _, m := range s.Nodes {
		n, err := r.g.Node(m)
		if err != nil {
			continue
		}
		if !r.flow.IsActive(m) {
			dead[m] = true
			continue
		}
		dead[m] = deadByInputs(n, func(in Input) bool {
			switch {
			case in.IsScope():
				return r.scopeDead(in.Scope, seen)
			case s.Contains(in.Node):
				return dead[in.Node]
			default:
				if owner, member := r.p.owner[in.Node]; member && !r.scopeStarted(owner) {
					return false
				}
				return r.inputDead(n, in)
			}
		})
	}
	return dead[s.Terminal()]
}

// inputDead reports whether in can never hold a value in this execution:
// its producer was pruned, its producer is a Switch that took the other
// branch, or its producer belongs to a scope that did not execute.
func (r *run) inputDead(n *Node, in Input) bool {
	if in.IsScope() {
		return false
	}
	src, err := r.g.Node(in.Node)
	if err != nil {
		return false
	}
	if sid, member := r.p.owner[src.ID]; member && !r.runsScope(n, sid, map[int]bool{}) {
		if !r.scopeStarted(sid) {
			return true
		}
	}
	if !r.flow.IsActive(src.ID) {
		return true
	}
	if src.Op == OpSwitch {
		if b, ok := r.flow.BranchOf(src.ID); ok && b != in.Slot {
			return true
		}
	}
	return false
}

// runsScope reports whether evaluating n executes scope sid, directly or
// through a nested scope.
func (r *run) runsScope(n *Node, sid int, seen map[int]bool) bool {
	for _, in := range n.Inputs {
		if !in.IsScope() || seen[in.Scope] {
			continue
		}
		if in.Scope == sid {
			return true
		}
		seen[in.Scope] = true
		s, err := r.g.Scope(in.Scope)
		if err != nil {
			continue
		}
		for _, m := range s.Nodes {
			if mn, err := r.g.Node(m); err == nil && r.runsScope(mn, sid, seen) {
				return true
			}
		}
	}
	return false
}

func (r *run) scopeState(sid int) *scopeRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	sr, ok := r.scopes[sid]
	if !ok {
		sr = &scopeRun{}
		r.scopes[sid] = sr
	}
	return sr
}

func (r *run) scopeStarted(sid int) bool {
	return r.scopeState(sid).started.Load()
}

// prune marks n inactive. It is never invoked and allocates no Variable.
func (r *run) prune(n *Node, reason string) {
	r.flow.MarkInactive(n.ID)
	r.mu.Lock()
	r.pruned = append(r.pruned, n.ID)
	r.mu.Unlock()

	r.e.opts.Metrics.IncrementPruned(n.Op)
	r.emit(n.ID, "node_pruned", map[string]interface{}{"op": n.Op, "reason": reason})
	r.e.logger.Debug().Str("run_id", r.id).Int("node", n.ID).Str("reason", reason).Msg("node pruned")
}

// pruneUnexecutedScopes marks the members of scopes that never executed
// as pruned.
func (r *run) pruneUnexecutedScopes() {
	members := make([]int, 0, len(r.p.owner))
	for m := range r.p.owner {
		members = append(members, m)
	}
	sort.Ints(members)

	for _, m := range members {
		r.mu.Lock()
		ran := r.done[m]
		r.mu.Unlock()
		if ran || !r.flow.IsActive(m) {
			continue
		}
		if n, err := r.g.Node(m); err == nil {
			r.prune(n, "scope not executed")
		}
	}
}

// execNode evaluates one node: control-flow tags are handled by the
// engine, everything else is dispatched to the catalog.
func (r *run) execNode(ctx context.Context, id int) error {
	n, err := r.g.Node(id)
	if err != nil {
		return nodeError(id, "execute", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.emit(id, "node_start", map[string]interface{}{"op": n.Op})
	start := time.Now()

	switch n.Op {
	case OpSwitch:
		err = r.evalSwitch(ctx, n)
	case OpMerge:
		err = r.evalMerge(ctx, n)
	case OpConditional:
		err = r.evalConditional(ctx, n)
	default:
		err = r.invoke(ctx, n)
	}

	latency := time.Since(start)
	if errors.Is(err, errDeadResult) {
		if _, marked := r.flow.BranchOf(id); !marked {
			r.setState(id, Unevaluated)
		}
		r.prune(n, "scope result on untaken branch")
		return nil
	}
	if err != nil {
		status := "error"
		if codeOf(err) == "NODE_TIMEOUT" {
			status = "timeout"
		}
		r.e.opts.Metrics.RecordNodeLatency(n.Op, latency, status)
		return nodeError(id, n.label()+" failed", err)
	}
	r.e.opts.Metrics.RecordNodeLatency(n.Op, latency, "success")

	r.mu.Lock()
	r.executed = append(r.executed, id)
	r.done[id] = true
	r.mu.Unlock()

	r.emit(id, "node_end", map[string]interface{}{
		"op":          n.Op,
		"duration_ms": latency.Milliseconds(),
	})
	return nil
}

// invoke dispatches n to its operator and commits the outputs.
func (r *run) invoke(ctx context.Context, n *Node) error {
	op, ok := r.e.catalog.Lookup(n.Op)
	if !ok {
		return fmt.Errorf("%w: operator %q", ErrLookup, n.Op)
	}

	outs, err := invokeWithTimeout(ctx, op, newContext(n, r.space), r.e.opts.DefaultNodeTimeout)
	if err != nil {
		return err
	}
	if len(outs) != n.Arity() {
		return fmt.Errorf("%w: operator %q returned %d outputs, node declares %d",
			ErrTypeMismatch, n.Op, len(outs), n.Arity())
	}
	for i, v := range outs {
		if v == nil {
			return fmt.Errorf("%w: operator %q returned nil output %d", ErrTypeMismatch, n.Op, i)
		}
	}
	return r.commit(ctx, n.ID, outs)
}

// commit stores outs slot by slot. Nothing more is written once ctx ends.
func (r *run) commit(ctx context.Context, id int, outs []Value) error {
	for i, v := range outs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.space.Put(VarID{Node: id, Slot: i}, v); err != nil {
			return err
		}
	}
	return nil
}

// runScope executes scope sid once per execution and returns it. Later
// calls wait for the first to finish and share its outcome.
func (r *run) runScope(ctx context.Context, sid int) (*Scope, error) {
	s, err := r.g.Scope(sid)
	if err != nil {
		return nil, err
	}
	sr := r.scopeState(sid)
	sr.once.Do(func() {
		sr.started.Store(true)
		sr.err = r.executeScope(ctx, s)
	})
	return s, sr.err
}

func (r *run) executeScope(ctx context.Context, s *Scope) error {
	r.emit(-1, "scope_start", map[string]interface{}{"scope": s.ID, "nodes": len(s.Nodes)})
	r.e.logger.Debug().Str("run_id", r.id).Int("scope", s.ID).Msg("executing scope")

	for _, m := range s.Nodes {
		n, err := r.g.Node(m)
		if err != nil {
			return nodeError(m, "execute scope", err)
		}
		if r.isDead(n) {
			r.prune(n, "input on untaken branch")
			continue
		}
		if err := r.execNode(ctx, m); err != nil {
			return err
		}
	}

	r.emit(-1, "scope_end", map[string]interface{}{"scope": s.ID, "result": s.Terminal()})
	return nil
}

// errDeadResult reports that a scope's terminal node was pruned while the
// scope ran. The node consuming the result is pruned instead of failing.
var errDeadResult = errors.New("scope result on untaken branch")

// scopeResult returns the value of the scope's terminal node, or
// errDeadResult if the terminal was pruned.
func (r *run) scopeResult(s *Scope) (Value, error) {
	if !r.flow.IsActive(s.Terminal()) {
		return nil, fmt.Errorf("%w: scope %d", errDeadResult, s.ID)
	}
	return r.space.Value(VarID{Node: s.Terminal()})
}

func (r *run) setState(id int, st SwitchState) {
	r.mu.Lock()
	r.states[id] = st
	r.mu.Unlock()
}

// branchTaken reports a control-flow decision.
func (r *run) branchTaken(n *Node, branch int) {
	r.e.opts.Metrics.IncrementBranch(n.Op, branch)
	r.emit(n.ID, "branch_taken", map[string]interface{}{"op": n.Op, "branch": branch})
	r.e.logger.Debug().Str("run_id", r.id).Int("node", n.ID).Str("op", n.Op).
		Int("branch", branch).Msg("branch taken")
}

func (r *run) emit(nodeID int, msg string, meta map[string]interface{}) {
	r.mu.Lock()
	r.step++
	step := r.step
	r.mu.Unlock()
	r.e.emitter.Emit(emit.Event{
		RunID:  r.id,
		Step:   step,
		NodeID: nodeID,
		Msg:    msg,
		Meta:   meta,
	})
}

// fill copies the execution outcome into res.
func (r *run) fill(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.Executed = append([]int(nil), r.executed...)
	res.Pruned = append([]int(nil), r.pruned...)
	sort.Ints(res.Pruned)
	res.Branches = r.flow.Branches()
	res.States = make(map[int]SwitchState, len(r.states))
	for id, st := range r.states {
		res.States[id] = st
	}
}
