package graph

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/dataflow-go/graph/emit"
	"github.com/dshills/dataflow-go/graph/store"
)

// Engine executes Graphs.
//
// The Engine is the dataflow driver that:
//   - Schedules nodes once all of their producers have resolved
//   - Dispatches ordinary nodes to the operator Catalog
//   - Evaluates the control-flow operators Switch, Merge and Conditional
//   - Prunes nodes whose inputs live on an untaken branch
//   - Emits observability events via the emitter
//   - Optionally persists a record of each execution via the store
//
// An Engine holds no per-execution state and may execute several graphs
// concurrently. One Graph must not be executed concurrently with itself.
//
// Example:
//
//	catalog := graph.NewCatalog()
//	_ = ops.Register(catalog)
//
//	engine, err := graph.New(catalog, store.NewMemStore(), emit.NewNullEmitter())
//	if err != nil {
//	    return err
//	}
//	result, err := engine.Execute(ctx, "run-001", g)
type Engine struct {
	// catalog dispatches ordinary operator tags
	catalog *Catalog

	// store persists run records when Options.Persist is set
	store store.Store

	// emitter receives observability events
	emitter emit.Emitter

	// opts contains execution configuration
	opts Options

	logger zerolog.Logger
}

// New creates an Engine.
//
// Parameters:
//   - catalog: operator catalog for ordinary nodes (required)
//   - st: persistence backend (optional unless WithPersistence is used)
//   - emitter: observability event receiver (optional, can be nil)
//   - options: functional options
func New(catalog *Catalog, st store.Store, emitter emit.Emitter, options ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, &EngineError{Message: "catalog is required", Code: "MISSING_CATALOG"}
	}

	cfg := &engineConfig{
		opts: Options{
			QueueDepth: 1024,
			Logger:     zerolog.Nop(),
		},
	}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.opts.Persist && st == nil {
		return nil, &EngineError{Message: "persistence requires a store", Code: "MISSING_STORE"}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	return &Engine{
		catalog: catalog,
		store:   st,
		emitter: emitter,
		opts:    cfg.opts,
		logger:  cfg.opts.Logger,
	}, nil
}

// Status is the outcome of one execution.
type Status string

const (
	// StatusOK means every scheduled node either executed or was pruned.
	StatusOK Status = "ok"

	// StatusFailed means a node or the graph itself failed.
	StatusFailed Status = "failed"

	// StatusCancelled means the caller's context ended, or the run
	// exceeded its wall-clock budget.
	StatusCancelled Status = "cancelled"
)

// Result describes one execution.
type Result struct {
	RunID  string
	Status Status

	// Executed lists the nodes that ran, in completion order. Scope
	// members appear when their scope executed.
	Executed []int

	// Pruned lists the nodes that were never evaluated, ascending.
	Pruned []int

	// Branches maps each resolved control-flow node to its branch index.
	Branches map[int]int

	// States holds the final state of every control-flow node the
	// execution reached.
	States map[int]SwitchState

	Duration time.Duration
}

// Execute runs g to completion against its VariableSpace.
//
// The space must be fresh: an execution against a space that an earlier
// execution used fails with ErrDirtySpace until Graph.Reset is called.
// Caller inputs referenced by the graph must be stored beforehand (see
// Graph.SetInput), or Execute fails with ErrLookup.
//
// An empty runID is replaced with a generated UUID.
//
// Failures are returned as *ExecError carrying the failing node id, with a
// Result whose Status is StatusFailed or StatusCancelled. Nothing is
// retried.
func (e *Engine) Execute(ctx context.Context, runID string, g *Graph) (*Result, error) {
	if g == nil {
		return nil, &EngineError{Message: "graph cannot be nil", Code: "MISSING_GRAPH"}
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	start := time.Now()
	res := &Result{RunID: runID, Status: StatusFailed}

	p, err := g.plan()
	if err != nil {
		return e.abort(res, start, err)
	}
	if err := g.space.begin(); err != nil {
		return e.abort(res, start, err)
	}
	for _, ext := range p.external {
		if _, err := g.space.Value(ext.id); err != nil {
			return e.abort(res, start, nodeError(ext.consumer, "missing input", err))
		}
	}

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	r := newRun(e, g, p, runID)
	r.emit(-1, "execution_start", map[string]interface{}{
		"nodes":  len(p.topLevel),
		"scopes": len(p.owners),
	})

	err = r.loop(ctx)
	if err == nil {
		r.pruneUnexecutedScopes()
	}

	r.fill(res)
	res.Duration = time.Since(start)
	switch {
	case err == nil:
		res.Status = StatusOK
	case ctx.Err() != nil:
		res.Status = StatusCancelled
	default:
		res.Status = StatusFailed
	}

	if e.opts.Persist {
		if perr := e.persist(ctx, res, g.space, err); perr != nil && err == nil {
			err = perr
		}
	}

	e.opts.Metrics.IncrementExecutions(res.Status)
	e.opts.Metrics.UpdateInflightNodes(0)
	e.opts.Metrics.UpdateQueueDepth(0)

	if err != nil {
		r.emit(-1, "execution_failed", map[string]interface{}{
			"status":      string(res.Status),
			"error":       err.Error(),
			"duration_ms": res.Duration.Milliseconds(),
		})
		e.logger.Debug().Str("run_id", runID).Err(err).Msg("execution failed")
		return res, err
	}

	r.emit(-1, "execution_end", map[string]interface{}{
		"executed":    len(res.Executed),
		"pruned":      len(res.Pruned),
		"duration_ms": res.Duration.Milliseconds(),
	})
	e.logger.Debug().Str("run_id", runID).Int("executed", len(res.Executed)).
		Int("pruned", len(res.Pruned)).Msg("execution finished")
	return res, nil
}

// abort reports a failure detected before any node ran.
func (e *Engine) abort(res *Result, start time.Time, err error) (*Result, error) {
	res.Duration = time.Since(start)
	e.opts.Metrics.IncrementExecutions(res.Status)
	e.emitter.Emit(emit.Event{
		RunID:  res.RunID,
		NodeID: -1,
		Msg:    "execution_failed",
		Meta:   map[string]interface{}{"error": err.Error()},
	})
	return res, err
}

// ExecuteNode evaluates a single node against g's current VariableSpace,
// without scheduling anything else. The node's inputs must already be
// present.
//
// The space is marked used, so a later Execute requires Graph.Reset.
// Evaluating a control-flow node that already took a branch fails with
// ErrReentrantMark and leaves its outputs unchanged.
func (e *Engine) ExecuteNode(ctx context.Context, runID string, g *Graph, nodeID int) error {
	if g == nil {
		return &EngineError{Message: "graph cannot be nil", Code: "MISSING_GRAPH"}
	}
	p, err := g.plan()
	if err != nil {
		return err
	}
	if !g.HasNode(nodeID) {
		return nodeError(nodeID, "execute node", ErrLookup)
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	g.space.touch()

	r := newRun(e, g, p, runID)
	return r.execNode(ctx, nodeID)
}

// persist saves a record of the execution under a context detached from
// ctx's cancellation.
func (e *Engine) persist(ctx context.Context, res *Result, space *VariableSpace, runErr error) error {
	rec, err := buildRecord(res, space, runErr)
	if err != nil {
		return &EngineError{Message: "failed to encode run record: " + err.Error(), Code: "STORE_ERROR"}
	}
	if err := e.store.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		if errors.Is(err, store.ErrIdempotencyViolation) {
			return err
		}
		return &EngineError{Message: "failed to save run: " + err.Error(), Code: "STORE_ERROR"}
	}
	return nil
}
