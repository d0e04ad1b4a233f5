// Package ops is a small operator catalog over tensor.Tensor values:
// enough arithmetic and comparison to build predicates and payloads for
// dataflow graphs.
package ops

import (
	"context"
	"fmt"

	"github.com/dshills/dataflow-go/graph"
	"github.com/dshills/dataflow-go/graph/tensor"
)

// Operator tags registered by Register.
const (
	Identity = "identity"
	Add      = "add"
	Multiply = "multiply"
	Negate   = "negate"
	Greater  = "greater"
	Cast     = "cast"
	Constant = "constant"
)

// Register adds every operator of this package to c.
func Register(c *graph.Catalog) error {
	for tag, op := range map[string]graph.Op{
		Identity: graph.OpFunc(identity),
		Add:      binary(func(a, b float64) float64 { return a + b }, tensor.Float64),
		Multiply: binary(func(a, b float64) float64 { return a * b }, tensor.Float64),
		Greater: binary(func(a, b float64) float64 {
			if a > b {
				return 1
			}
			return 0
		}, tensor.Bool),
		Negate:   graph.OpFunc(negate),
		Cast:     graph.OpFunc(cast),
		Constant: graph.OpFunc(constant),
	} {
		if err := c.Register(tag, op); err != nil {
			return err
		}
	}
	return nil
}

func tensorInput(c *graph.Context, i int) (*tensor.Tensor, error) {
	v, err := c.Input(i)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("%w: input %d is %T, not a tensor", graph.ErrTypeMismatch, i, v)
	}
	return t, nil
}

func numericInput(c *graph.Context, i int) (*tensor.Tensor, error) {
	t, err := tensorInput(c, i)
	if err != nil {
		return nil, err
	}
	if t.IsString() {
		return nil, fmt.Errorf("%w: input %d holds strings", graph.ErrTypeMismatch, i)
	}
	return t, nil
}

// identity forwards input 0 unchanged. Tensors are immutable, so sharing
// the pointer is safe.
func identity(_ context.Context, c *graph.Context) ([]graph.Value, error) {
	v, err := c.Input(0)
	if err != nil {
		return nil, err
	}
	return []graph.Value{v}, nil
}

// binary builds an elementwise operator. Operands must have equal length,
// or one of them must hold a single element, which is broadcast.
func binary(f func(a, b float64) float64, out tensor.DType) graph.Op {
	return graph.OpFunc(func(ctx context.Context, c *graph.Context) ([]graph.Value, error) {
		a, err := numericInput(c, 0)
		if err != nil {
			return nil, err
		}
		b, err := numericInput(c, 1)
		if err != nil {
			return nil, err
		}

		shape := a.Shape()
		n := a.Len()
		if b.Len() > n {
			shape, n = b.Shape(), b.Len()
		}
		if (a.Len() != n && a.Len() != 1) || (b.Len() != n && b.Len() != 1) {
			return nil, fmt.Errorf("%w: cannot broadcast %v with %v", graph.ErrTypeMismatch, a.Shape(), b.Shape())
		}

		av, bv := a.Floats(), b.Floats()
		data := make([]float64, n)
		for i := range data {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data[i] = f(av[i%len(av)], bv[i%len(bv)])
		}

		t, err := tensor.New(shape, data)
		if err != nil {
			return nil, err
		}
		if out != tensor.Float64 {
			if t, err = t.WithDType(out); err != nil {
				return nil, err
			}
		}
		return []graph.Value{t}, nil
	})
}

func negate(_ context.Context, c *graph.Context) ([]graph.Value, error) {
	a, err := numericInput(c, 0)
	if err != nil {
		return nil, err
	}
	data := a.Floats()
	for i := range data {
		data[i] = -data[i]
	}
	t, err := tensor.New(a.Shape(), data)
	if err != nil {
		return nil, err
	}
	return []graph.Value{t}, nil
}

// cast converts input 0 to the dtype named by string argument 0
// ("bool" when absent).
func cast(_ context.Context, c *graph.Context) ([]graph.Value, error) {
	a, err := tensorInput(c, 0)
	if err != nil {
		return nil, err
	}
	dtype := tensor.Bool
	if name, err := c.SArg(0); err == nil {
		dtype = tensor.DType(name)
	}
	switch dtype {
	case tensor.Float64, tensor.Bool:
	default:
		return nil, fmt.Errorf("%w: cannot cast to %q", graph.ErrTypeMismatch, dtype)
	}
	t, err := a.WithDType(dtype)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrTypeMismatch, err)
	}
	return []graph.Value{t}, nil
}

// constant emits boolean argument 0 as a scalar when present, otherwise
// the integer arguments as a float64 vector.
func constant(_ context.Context, c *graph.Context) ([]graph.Value, error) {
	n := c.Node()
	if len(n.BArgs) > 0 {
		return []graph.Value{tensor.ScalarBool(n.BArgs[0])}, nil
	}
	if len(n.IArgs) == 0 {
		return nil, fmt.Errorf("%w: constant %d has no arguments", graph.ErrLookup, n.ID)
	}
	data := make([]float64, len(n.IArgs))
	for i, v := range n.IArgs {
		data[i] = float64(v)
	}
	return []graph.Value{tensor.FromFloats(data...)}, nil
}
