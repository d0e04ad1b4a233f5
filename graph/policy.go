package graph

import "time"

// NodePolicy overrides Engine settings for one node.
//
// Example:
//
//	node := &graph.Node{
//	    ID: 7, Op: "fetch",
//	    Policy: &graph.NodePolicy{Timeout: 2 * time.Second},
//	}
type NodePolicy struct {
	// Timeout bounds the operator invocation. Zero falls back to
	// Options.DefaultNodeTimeout.
	Timeout time.Duration
}
