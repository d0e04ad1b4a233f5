package graph

import (
	"time"

	"github.com/rs/zerolog"
)

// Options configures Engine execution behavior.
//
// Zero values are valid - the Engine will use sensible defaults.
type Options struct {
	// MaxConcurrentNodes limits how many independent nodes execute at once.
	// 0 or 1 evaluates nodes one at a time in declaration order.
	MaxConcurrentNodes int

	// QueueDepth is the minimum capacity of the execution frontier. The
	// frontier always holds at least one slot per scheduled node.
	QueueDepth int

	// DefaultNodeTimeout bounds each operator invocation unless the node's
	// Policy sets its own Timeout. 0 disables the bound.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds a whole Execute call. 0 disables the bound.
	RunWallClockBudget time.Duration

	// Metrics receives Prometheus metrics. Nil disables metrics.
	Metrics *PrometheusMetrics

	// Logger receives debug tracing of branch decisions and scope
	// execution. The zero value discards output.
	Logger zerolog.Logger

	// Persist saves a store.Record after every execution.
	Persist bool
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.New(
//	    catalog,
//	    store.NewMemStore(),
//	    emit.NewLogEmitter(os.Stdout, false),
//	    graph.WithMaxConcurrent(8),
//	    graph.WithDefaultNodeTimeout(10*time.Second),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	opts Options
}

// WithMaxConcurrent sets the maximum number of nodes executing concurrently.
//
// Default: 0 (one node at a time, in declaration order).
//
// Independent nodes write disjoint (node, slot) variables, so raising the
// limit never changes results, only the order in which nodes complete.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max concurrent nodes cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.opts.MaxConcurrentNodes = n
		return nil
	}
}

// WithQueueDepth sets the minimum capacity of the execution frontier queue.
//
// Default: 1024.
func WithQueueDepth(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "queue depth cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.opts.QueueDepth = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the maximum execution time for operators
// without an explicit Policy.Timeout.
//
// Default: 0 (no timeout).
//
// When exceeded, the operator's context is cancelled and the execution
// fails with code "NODE_TIMEOUT".
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total duration of Execute.
//
// Default: 0 (no budget). When exceeded, Execute returns
// context.DeadlineExceeded with StatusCancelled.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(catalog, st, emitter, graph.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithLogger sets the zerolog logger used for debug tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Logger = logger
		return nil
	}
}

// WithPersistence saves a run record to the Engine's store after every
// execution, successful or not.
func WithPersistence(enabled bool) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Persist = enabled
		return nil
	}
}
