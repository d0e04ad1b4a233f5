package graph

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"lukechampine.com/blake3"

	"github.com/dshills/dataflow-go/graph/store"
)

// buildRecord captures the outcome of an execution for persistence.
func buildRecord(res *Result, space *VariableSpace, runErr error) (store.Record, error) {
	rec := store.Record{
		RunID:      res.RunID,
		Status:     string(res.Status),
		FailedNode: -1,
		Branches:   res.Branches,
		Executed:   res.Executed,
		Pruned:     res.Pruned,
		Timestamp:  time.Now().UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		var ee *ExecError
		if errors.As(runErr, &ee) {
			rec.FailedNode = ee.NodeID
		}
	}

	var written []*Variable
	for _, v := range space.Snapshot() {
		vr := store.VariableRecord{
			Node:        v.ID().Node,
			Slot:        v.ID().Slot,
			Removable:   v.Removable(),
			Placeholder: v.IsPlaceholder(),
		}
		if val := v.Value(); val != nil {
			if owner := sharedOwner(written, val); owner != nil {
				vr.SharedWith = &store.VarRef{Node: owner.ID().Node, Slot: owner.ID().Slot}
				rec.Variables = append(rec.Variables, vr)
				continue
			}
			written = append(written, v)
			data, err := sonic.ConfigStd.Marshal(val)
			if err != nil {
				return store.Record{}, fmt.Errorf("encode variable %s: %w", v.ID(), err)
			}
			vr.Value = data
		}
		rec.Variables = append(rec.Variables, vr)
	}

	rec.Digest = computeDigest(rec.Variables)
	rec.IdempotencyKey = computeIdempotencyKey(rec)
	return rec, nil
}

// sharedOwner returns the first of written holding val by identity.
func sharedOwner(written []*Variable, val Value) *Variable {
	for _, w := range written {
		if sameValue(w.Value(), val) {
			return w
		}
	}
	return nil
}

// computeDigest hashes the variables in (node, slot) order.
func computeDigest(vars []store.VariableRecord) string {
	h := blake3.New(32, nil)
	buf := make([]byte, 8)
	for _, v := range vars {
		binary.BigEndian.PutUint64(buf, uint64(int64(v.Node)))
		h.Write(buf)
		binary.BigEndian.PutUint64(buf, uint64(int64(v.Slot)))
		h.Write(buf)
		switch {
		case v.Placeholder:
			h.Write([]byte{0})
		case v.SharedWith != nil:
			h.Write([]byte{2})
			binary.BigEndian.PutUint64(buf, uint64(int64(v.SharedWith.Node)))
			h.Write(buf)
			binary.BigEndian.PutUint64(buf, uint64(int64(v.SharedWith.Slot)))
			h.Write(buf)
		default:
			h.Write([]byte{1})
		}
		binary.BigEndian.PutUint64(buf, uint64(len(v.Value)))
		h.Write(buf)
		h.Write(v.Value)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}

// computeIdempotencyKey derives a key identifying this outcome of this run:
// the run id, the status, every branch decision in node order, the
// executed node set and the variable digest. Saving the same outcome twice
// yields the same key.
func computeIdempotencyKey(rec store.Record) string {
	h := blake3.New(32, nil)
	buf := make([]byte, 8)

	h.Write([]byte(rec.RunID))
	h.Write([]byte{0})
	h.Write([]byte(rec.Status))
	h.Write([]byte{0})

	nodes := make([]int, 0, len(rec.Branches))
	for id := range rec.Branches {
		nodes = append(nodes, id)
	}
	sort.Ints(nodes)
	for _, id := range nodes {
		binary.BigEndian.PutUint64(buf, uint64(int64(id)))
		h.Write(buf)
		binary.BigEndian.PutUint64(buf, uint64(int64(rec.Branches[id])))
		h.Write(buf)
	}

	executed := append([]int(nil), rec.Executed...)
	sort.Ints(executed)
	for _, id := range executed {
		binary.BigEndian.PutUint64(buf, uint64(int64(id)))
		h.Write(buf)
	}

	h.Write([]byte(rec.Digest))
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}
