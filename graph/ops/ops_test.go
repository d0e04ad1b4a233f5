package ops_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dataflow-go/graph"
	"github.com/dshills/dataflow-go/graph/ops"
	"github.com/dshills/dataflow-go/graph/tensor"
)

func newEngine(t *testing.T) *graph.Engine {
	t.Helper()
	c := graph.NewCatalog()
	require.NoError(t, ops.Register(c))
	e, err := graph.New(c, nil, nil)
	require.NoError(t, err)
	return e
}

// run executes a single node fed by external inputs at ids 100, 101, ...
func run(t *testing.T, n *graph.Node, inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	t.Helper()
	g := graph.NewGraph()
	for i, in := range inputs {
		id := 100 + i
		require.NoError(t, g.SetInput(id, in))
		n.Inputs = append(n.Inputs, graph.From(id))
	}
	require.NoError(t, g.AddNode(n))

	if _, err := newEngine(t).Execute(context.Background(), "", g); err != nil {
		return nil, err
	}
	v, err := g.Space().Value(graph.VarID{Node: n.ID})
	require.NoError(t, err)
	out, ok := v.(*tensor.Tensor)
	require.True(t, ok, "output is %T", v)
	return out, nil
}

func TestRegister(t *testing.T) {
	c := graph.NewCatalog()
	require.NoError(t, ops.Register(c))
	assert.Equal(t, 7, c.Len())

	for _, tag := range []string{ops.Identity, ops.Add, ops.Multiply, ops.Negate, ops.Greater, ops.Cast, ops.Constant} {
		_, ok := c.Lookup(tag)
		assert.True(t, ok, tag)
	}

	assert.ErrorIs(t, ops.Register(c), graph.ErrDuplicate)
}

func TestIdentity(t *testing.T) {
	in := tensor.FromFloats(1, 2, 3)
	out, err := run(t, &graph.Node{ID: 1, Op: ops.Identity}, in)
	require.NoError(t, err)
	assert.Same(t, in, out)
}

func TestAdd(t *testing.T) {
	out, err := run(t, &graph.Node{ID: 1, Op: ops.Add}, tensor.FromFloats(1, 2, 3), tensor.FromFloats(10, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, out.Floats())
}

func TestMultiplyBroadcastsScalar(t *testing.T) {
	out, err := run(t, &graph.Node{ID: 1, Op: ops.Multiply}, tensor.Scalar(2), tensor.FromFloats(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, out.Floats())
	assert.Equal(t, []int{3}, out.Shape())
}

func TestBinaryShapeMismatch(t *testing.T) {
	_, err := run(t, &graph.Node{ID: 1, Op: ops.Add}, tensor.FromFloats(1, 2), tensor.FromFloats(1, 2, 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrTypeMismatch)
}

func TestBinaryRejectsStrings(t *testing.T) {
	_, err := run(t, &graph.Node{ID: 1, Op: ops.Add}, tensor.FromStrings("a"), tensor.Scalar(1))
	assert.ErrorIs(t, err, graph.ErrTypeMismatch)
}

func TestNegate(t *testing.T) {
	out, err := run(t, &graph.Node{ID: 1, Op: ops.Negate}, tensor.FromFloats(1, -2, 0))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2, 0}, out.Floats())
}

func TestGreater(t *testing.T) {
	out, err := run(t, &graph.Node{ID: 1, Op: ops.Greater}, tensor.FromFloats(1, 5, 3), tensor.Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, out.DType())

	want := []bool{false, true, false}
	for i, w := range want {
		b, err := out.BoolAt(i)
		require.NoError(t, err)
		assert.Equal(t, w, b, "element %d", i)
	}
}

func TestCast(t *testing.T) {
	tests := []struct {
		name    string
		sargs   []string
		in      *tensor.Tensor
		want    tensor.DType
		wantErr bool
	}{
		{name: "default bool", in: tensor.FromFloats(0, 2), want: tensor.Bool},
		{name: "to float", sargs: []string{"float64"}, in: tensor.FromBools(true), want: tensor.Float64},
		{name: "unknown dtype", sargs: []string{"complex"}, in: tensor.Scalar(1), wantErr: true},
		{name: "string input", in: tensor.FromStrings("x"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, &graph.Node{ID: 1, Op: ops.Cast, SArgs: tt.sargs}, tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, graph.ErrTypeMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.DType())
		})
	}
}

func TestConstant(t *testing.T) {
	out, err := run(t, &graph.Node{ID: 1, Op: ops.Constant, IArgs: []int64{4, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, out.Floats())

	out, err = run(t, &graph.Node{ID: 1, Op: ops.Constant, BArgs: []bool{true}})
	require.NoError(t, err)
	assert.True(t, out.Equal(tensor.ScalarBool(true)))

	_, err = run(t, &graph.Node{ID: 1, Op: ops.Constant})
	assert.ErrorIs(t, err, graph.ErrLookup)
}

func TestOpsDriveSwitch(t *testing.T) {
	g := graph.NewGraph()
	require.NoError(t, g.SetInput(100, tensor.Scalar(7)))

	// 1: x > 5, 2: switch(x, 1), 3: negate false branch, 4: identity true branch
	for _, n := range []*graph.Node{
		{ID: 10, Op: ops.Constant, IArgs: []int64{5}},
		{ID: 1, Op: ops.Greater, Inputs: []graph.Input{graph.From(100), graph.From(10)}},
		{ID: 2, Op: graph.OpSwitch, Inputs: []graph.Input{graph.From(100), graph.From(1)}, Outputs: 2},
		{ID: 3, Op: ops.Negate, Inputs: []graph.Input{graph.FromSlot(2, 0)}},
		{ID: 4, Op: ops.Identity, Inputs: []graph.Input{graph.FromSlot(2, 1)}},
	} {
		require.NoError(t, g.AddNode(n))
	}

	res, err := newEngine(t).Execute(context.Background(), "switch", g)
	require.NoError(t, err)
	assert.Contains(t, res.Pruned, 3)
	assert.Contains(t, res.Executed, 4)

	v, err := g.Space().Value(graph.VarID{Node: 4})
	require.NoError(t, err)
	assert.True(t, v.(*tensor.Tensor).Equal(tensor.Scalar(7)))
}
