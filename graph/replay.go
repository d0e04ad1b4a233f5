package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/dataflow-go/graph/store"
)

// ValueDecoder turns a persisted variable value back into a Value.
//
// Example:
//
//	decode := func(data json.RawMessage) (graph.Value, error) {
//	    t := new(tensor.Tensor)
//	    return t, json.Unmarshal(data, t)
//	}
type ValueDecoder func(data json.RawMessage) (Value, error)

// Restore loads the record saved for runID and rebuilds g's VariableSpace
// and FlowPath from it, so a finished execution can be inspected after the
// process that ran it is gone.
//
// The record's digest is recomputed before anything is written; a record
// whose variables do not hash to its digest fails with ErrReplayMismatch
// and leaves g untouched. Otherwise g is Reset and repopulated: populated
// variables are decoded with decode, variables recorded as sharing a value
// get the same decoded instance, placeholders are re-registered, pin
// flags and branch marks are restored and pruned nodes are marked
// inactive. The space is left marked used, so executing g again requires
// Reset.
func (e *Engine) Restore(ctx context.Context, runID string, g *Graph, decode ValueDecoder) (*Result, error) {
	if g == nil {
		return nil, &EngineError{Message: "graph cannot be nil", Code: "MISSING_GRAPH"}
	}
	if decode == nil {
		return nil, &EngineError{Message: "value decoder is required", Code: "MISSING_DECODER"}
	}
	if e.store == nil {
		return nil, &EngineError{Message: "restore requires a store", Code: "MISSING_STORE"}
	}

	rec, err := e.store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := verifyDigest(rec); err != nil {
		return nil, err
	}

	values := make([]Value, len(rec.Variables))
	decoded := make(map[VarID]Value, len(rec.Variables))
	for i, vr := range rec.Variables {
		if vr.Placeholder {
			continue
		}
		if ref := vr.SharedWith; ref != nil {
			val, ok := decoded[VarID{Node: ref.Node, Slot: ref.Slot}]
			if !ok {
				return nil, fmt.Errorf("%w: variable %d:%d shares unknown variable %d:%d",
					ErrReplayMismatch, vr.Node, vr.Slot, ref.Node, ref.Slot)
			}
			values[i] = val
			continue
		}
		val, err := decode(vr.Value)
		if err != nil {
			return nil, fmt.Errorf("decode variable %d:%d: %w", vr.Node, vr.Slot, err)
		}
		if val == nil {
			return nil, fmt.Errorf("%w: decoded variable %d:%d is nil", ErrTypeMismatch, vr.Node, vr.Slot)
		}
		values[i] = val
		decoded[VarID{Node: vr.Node, Slot: vr.Slot}] = val
	}

	g.Reset()
	space := g.space
	for i, vr := range rec.Variables {
		id := VarID{Node: vr.Node, Slot: vr.Slot}
		if vr.Placeholder {
			space.Placeholder(id).MarkRemovable(vr.Removable)
			continue
		}
		var opts []PutOption
		if !vr.Removable {
			opts = append(opts, Pinned())
		}
		if _, err := space.Put(id, values[i], opts...); err != nil {
			return nil, err
		}
	}

	flow := space.FlowPath()
	for node, branch := range rec.Branches {
		if err := flow.MarkBranch(node, branch); err != nil {
			return nil, err
		}
	}
	for _, node := range rec.Pruned {
		flow.MarkInactive(node)
	}
	space.touch()

	e.logger.Debug().Str("run_id", runID).Int("variables", len(rec.Variables)).Msg("run restored")

	return &Result{
		RunID:    rec.RunID,
		Status:   Status(rec.Status),
		Executed: append([]int(nil), rec.Executed...),
		Pruned:   append([]int(nil), rec.Pruned...),
		Branches: flow.Branches(),
	}, nil
}

// verifyDigest checks that rec's variables hash to rec.Digest.
func verifyDigest(rec store.Record) error {
	if got := computeDigest(rec.Variables); got != rec.Digest {
		return fmt.Errorf("%w: run %s expected %s, got %s", ErrReplayMismatch, rec.RunID, rec.Digest, got)
	}
	return nil
}
