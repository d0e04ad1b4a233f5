package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dshills/dataflow-go/graph/emit"
	"github.com/dshills/dataflow-go/graph/store"
	"github.com/dshills/dataflow-go/graph/tensor"
)

// invocations counts operator calls per node id.
type invocations struct {
	mu    sync.Mutex
	calls map[int]int
	order []int
}

func (c *invocations) record(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[int]int)
	}
	c.calls[id]++
	c.order = append(c.order, id)
}

func (c *invocations) count(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func (c *invocations) sequence() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.order...)
}

var errBoom = errors.New("boom")

// testCatalog returns a catalog of small operators whose calls are counted:
//   - identity: forwards input 0
//   - const: emits its integer arguments as a float vector, or its first
//     boolean argument as a scalar
//   - pair: emits input 0 on both slots
//   - fail: returns errBoom
//   - block: waits for ctx to end
func testCatalog(t *testing.T) (*Catalog, *invocations) {
	t.Helper()
	calls := &invocations{}
	cat := NewCatalog()

	ops := map[string]OpFunc{
		"identity": func(_ context.Context, c *Context) ([]Value, error) {
			v, err := c.Input(0)
			if err != nil {
				return nil, err
			}
			return []Value{v}, nil
		},
		"const": func(_ context.Context, c *Context) ([]Value, error) {
			n := c.Node()
			if len(n.BArgs) > 0 {
				return []Value{tensor.ScalarBool(n.BArgs[0])}, nil
			}
			data := make([]float64, len(n.IArgs))
			for i, v := range n.IArgs {
				data[i] = float64(v)
			}
			return []Value{tensor.FromFloats(data...)}, nil
		},
		"pair": func(_ context.Context, c *Context) ([]Value, error) {
			v, err := c.Input(0)
			if err != nil {
				return nil, err
			}
			return []Value{v, v}, nil
		},
		"fail": func(context.Context, *Context) ([]Value, error) {
			return nil, errBoom
		},
		"block": func(ctx context.Context, _ *Context) ([]Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	for tag, fn := range ops {
		err := cat.Register(tag, OpFunc(func(ctx context.Context, c *Context) ([]Value, error) {
			calls.record(c.NodeID())
			return fn(ctx, c)
		}))
		if err != nil {
			t.Fatalf("register %s: %v", tag, err)
		}
	}
	return cat, calls
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *invocations, *emit.BufferedEmitter) {
	t.Helper()
	c, calls := testCatalog(t)
	em := emit.NewBufferedEmitter()
	e, err := New(c, store.NewMemStore(), em, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, calls, em
}

func mustAddNodes(t *testing.T, g *Graph, nodes ...*Node) {
	t.Helper()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%d): %v", n.ID, err)
		}
	}
}

func mustAddScopes(t *testing.T, g *Graph, scopes ...*Scope) {
	t.Helper()
	for _, s := range scopes {
		if err := g.AddScope(s); err != nil {
			t.Fatalf("AddScope(%d): %v", s.ID, err)
		}
	}
}

func mustSetInput(t *testing.T, g *Graph, node int, v Value) {
	t.Helper()
	if err := g.SetInput(node, v); err != nil {
		t.Fatalf("SetInput(%d): %v", node, err)
	}
}

// tensorAt returns the populated tensor at (node, slot).
func tensorAt(t *testing.T, s *VariableSpace, node, slot int) *tensor.Tensor {
	t.Helper()
	v, err := s.Value(VarID{Node: node, Slot: slot})
	if err != nil {
		t.Fatalf("Value(%d:%d): %v", node, slot, err)
	}
	tt, ok := v.(*tensor.Tensor)
	if !ok {
		t.Fatalf("Value(%d:%d) is %T, want *tensor.Tensor", node, slot, v)
	}
	return tt
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
