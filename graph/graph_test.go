package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/dataflow-go/graph/tensor"
)

func TestGraphAddNode(t *testing.T) {
	g := NewGraph()

	var ee *EngineError
	if err := g.AddNode(nil); !errors.As(err, &ee) || ee.Code != "INVALID_NODE" {
		t.Errorf("nil node: %v", err)
	}
	if err := g.AddNode(&Node{ID: 1}); !errors.As(err, &ee) || ee.Code != "INVALID_NODE" {
		t.Errorf("node without op: %v", err)
	}

	n := &Node{ID: 1, Op: "identity", Inputs: []Input{From(100)}}
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddNode(&Node{ID: 1, Op: "const"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate id: expected ErrDuplicate, got %v", err)
	}

	n.Inputs[0] = From(200)
	n.Op = "fail"
	got, err := g.Node(1)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if got.Op != "identity" || got.Inputs[0].Node != 100 {
		t.Error("graph shares storage with the caller's node")
	}

	if _, err := g.Node(2); !errors.Is(err, ErrLookup) {
		t.Errorf("missing node: expected ErrLookup, got %v", err)
	}
}

func TestGraphAddScope(t *testing.T) {
	g := NewGraph()
	if err := g.AddScope(&Scope{ID: 1, Nodes: []int{2}}); err != nil {
		t.Fatalf("AddScope: %v", err)
	}
	if err := g.AddScope(&Scope{ID: 1, Nodes: []int{3}}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := g.Scope(9); !errors.Is(err, ErrUnresolvedScope) {
		t.Errorf("expected ErrUnresolvedScope, got %v", err)
	}
	if !g.HasScope(1) || g.HasScope(9) {
		t.Error("HasScope disagrees with AddScope")
	}
}

func TestGraphSetInput(t *testing.T) {
	g := NewGraph()
	mustAddNodes(t, g, &Node{ID: 1, Op: "const"})

	if err := g.SetInput(1, tensor.Scalar(1)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("input over a graph node: expected ErrDuplicate, got %v", err)
	}
	if err := g.SetInput(100, tensor.Scalar(1)); err != nil {
		t.Errorf("SetInput: %v", err)
	}
	if !g.Space().Has(VarID{Node: 100}) {
		t.Error("input not stored at slot 0")
	}
}

func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []*Node
		scopes []*Scope
		want   error
		code   string
	}{
		{
			name: "valid chain",
			nodes: []*Node{
				{ID: 1, Op: "const", IArgs: []int64{1}},
				{ID: 2, Op: "identity", Inputs: []Input{From(1)}},
			},
		},
		{
			name:  "unresolved scope",
			nodes: []*Node{{ID: 1, Op: OpSwitch, Inputs: []Input{FromScope(9), From(100)}, Outputs: 2}},
			want:  ErrUnresolvedScope,
		},
		{
			name:   "empty scope",
			scopes: []*Scope{{ID: 1}},
			code:   "EMPTY_SCOPE",
		},
		{
			name:   "scope member missing",
			scopes: []*Scope{{ID: 1, Nodes: []int{5}}},
			want:   ErrLookup,
		},
		{
			name:   "node in two scopes",
			nodes:  []*Node{{ID: 1, Op: "const"}},
			scopes: []*Scope{{ID: 1, Nodes: []int{1}}, {ID: 2, Nodes: []int{1}}},
			want:   ErrDuplicate,
		},
		{
			name: "slot out of range",
			nodes: []*Node{
				{ID: 1, Op: "const"},
				{ID: 2, Op: "identity", Inputs: []Input{FromSlot(1, 1)}},
			},
			want: ErrLookup,
		},
		{
			name: "top-level cycle",
			nodes: []*Node{
				{ID: 1, Op: "identity", Inputs: []Input{From(2)}},
				{ID: 2, Op: "identity", Inputs: []Input{From(1)}},
			},
			want: ErrCycle,
		},
		{
			name: "scope reads later member",
			nodes: []*Node{
				{ID: 1, Op: "identity", Inputs: []Input{From(2)}},
				{ID: 2, Op: "const"},
			},
			scopes: []*Scope{{ID: 1, Nodes: []int{1, 2}}},
			want:   ErrCycle,
		},
		{
			name: "scope executes itself",
			nodes: []*Node{
				{ID: 1, Op: OpSwitch, Inputs: []Input{FromScope(1), From(100)}, Outputs: 2},
			},
			scopes: []*Scope{{ID: 1, Nodes: []int{1}}},
			want:   ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			mustAddNodes(t, g, tt.nodes...)
			mustAddScopes(t, g, tt.scopes...)

			err := g.Validate()
			switch {
			case tt.want == nil && tt.code == "":
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
			case tt.code != "":
				var ee *EngineError
				if !errors.As(err, &ee) || ee.Code != tt.code {
					t.Errorf("expected code %s, got %v", tt.code, err)
				}
			default:
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			}
		})
	}
}

// TestGraphPlanScopeDependencies verifies that reading a scope member makes
// the reader depend on the node that runs the scope.
func TestGraphPlanScopeDependencies(t *testing.T) {
	g := NewGraph()
	mustAddNodes(t, g,
		&Node{ID: 1, Op: "const", BArgs: []bool{true}},
		&Node{ID: 2, Op: OpSwitch, Inputs: []Input{FromScope(10), From(1)}, Outputs: 2},
		&Node{ID: 3, Op: "identity", Inputs: []Input{From(1)}},
		&Node{ID: 4, Op: "identity", Inputs: []Input{From(1)}},
	)
	mustAddScopes(t, g, &Scope{ID: 10, Nodes: []int{1}})

	p, err := g.plan()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if contains(p.topLevel, 1) {
		t.Error("scope member scheduled at top level")
	}
	if len(p.deps[2]) != 0 {
		t.Errorf("switch running its own scope depends on %v", p.deps[2])
	}
	for _, id := range []int{3, 4} {
		if len(p.deps[id]) != 1 || p.deps[id][0] != 2 {
			t.Errorf("node %d deps = %v, want [2]", id, p.deps[id])
		}
	}
}

func TestGraphReset(t *testing.T) {
	e, _, _ := newTestEngine(t)
	g := NewGraph()
	mustAddNodes(t, g, &Node{ID: 1, Op: "const", IArgs: []int64{1}})

	if _, err := e.Execute(context.Background(), "first", g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	g.Reset()
	if g.Space().Len() != 0 {
		t.Error("Reset left variables behind")
	}
	if len(g.Nodes()) != 1 {
		t.Error("Reset dropped nodes")
	}
	if _, err := e.Execute(context.Background(), "second", g); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestCatalogRegister(t *testing.T) {
	c := NewCatalog()
	noop := OpFunc(func(context.Context, *Context) ([]Value, error) { return nil, nil })

	var ee *EngineError
	for _, tag := range []string{OpSwitch, OpMerge, OpConditional} {
		if err := c.Register(tag, noop); !errors.As(err, &ee) || ee.Code != "RESERVED_OP" {
			t.Errorf("Register(%s): %v", tag, err)
		}
	}
	if err := c.Register("", noop); !errors.As(err, &ee) || ee.Code != "INVALID_OP" {
		t.Errorf("empty tag: %v", err)
	}
	if err := c.Register("x", nil); !errors.As(err, &ee) || ee.Code != "INVALID_OP" {
		t.Errorf("nil op: %v", err)
	}
	if err := c.Register("x", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register("x", noop); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate tag: %v", err)
	}
	if _, ok := c.Lookup("x"); !ok || c.Len() != 1 {
		t.Error("registered op not found")
	}
}

func TestNodeArity(t *testing.T) {
	tests := []struct {
		outputs, want int
	}{{0, 1}, {-1, 1}, {1, 1}, {2, 2}}
	for _, tt := range tests {
		if got := (&Node{Outputs: tt.outputs}).Arity(); got != tt.want {
			t.Errorf("Arity with Outputs=%d = %d, want %d", tt.outputs, got, tt.want)
		}
	}
}

func TestScopeTerminal(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  int
	}{
		{"declared result", Scope{Nodes: []int{1, 2, 3}, Result: 2}, 2},
		{"result not a member", Scope{Nodes: []int{1, 2, 3}, Result: 9}, 3},
		{"zero result falls back", Scope{Nodes: []int{4, 5}}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInputString(t *testing.T) {
	if got := FromSlot(3, 1).String(); got != "3:1" {
		t.Errorf("FromSlot String() = %q", got)
	}
	if got := FromScope(7).String(); got != "scope(7)" {
		t.Errorf("FromScope String() = %q", got)
	}
}
