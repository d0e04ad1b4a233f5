package tensor_test

import (
	"encoding/json"
	"testing"

	"github.com/dshills/dataflow-go/graph"
	"github.com/dshills/dataflow-go/graph/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ graph.Value = (*tensor.Tensor)(nil)

func TestNewValidatesShape(t *testing.T) {
	_, err := tensor.New([]int{2, 2}, []float64{1, 2, 3})
	require.ErrorIs(t, err, tensor.ErrShape)

	m, err := tensor.New([]int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, m.Shape())
	assert.Equal(t, 4, m.Len())
}

func TestBoolAt(t *testing.T) {
	tests := []struct {
		name    string
		value   *tensor.Tensor
		want    bool
		wantErr error
	}{
		{name: "zero is false", value: tensor.Scalar(0), want: false},
		{name: "non-zero is true", value: tensor.FromFloats(4, 5), want: true},
		{name: "bool true", value: tensor.ScalarBool(true), want: true},
		{name: "bool false", value: tensor.FromBools(false, true), want: false},
		{name: "empty", value: tensor.Empty(), wantErr: tensor.ErrIndex},
		{name: "string", value: tensor.FromStrings("yes"), wantErr: tensor.ErrKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.BoolAt(0)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, tensor.Empty().IsEmpty())
	assert.False(t, tensor.Scalar(1).IsEmpty())
	assert.True(t, tensor.FromStrings("a").IsString())
	assert.False(t, tensor.FromFloats(1).IsString())

	var nilTensor *tensor.Tensor
	assert.True(t, nilTensor.IsEmpty())
	assert.False(t, nilTensor.IsString())
}

func TestDupIsIndependent(t *testing.T) {
	orig := tensor.FromFloats(1, 2, 3)
	dup := orig.Dup()
	require.True(t, orig.Equal(dup))
	assert.NotSame(t, orig, dup)

	floats := dup.Floats()
	floats[0] = 99
	assert.True(t, orig.Equal(dup), "Floats must return a copy")
}

func TestWithDType(t *testing.T) {
	b, err := tensor.FromFloats(0, 2.5, -1).WithDType(tensor.Bool)
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, b.DType())
	assert.Equal(t, []float64{0, 1, 1}, b.Floats())

	_, err = tensor.FromStrings("x").WithDType(tensor.Float64)
	require.ErrorIs(t, err, tensor.ErrKind)
}

func TestJSONRoundTrip(t *testing.T) {
	for _, v := range []*tensor.Tensor{
		tensor.FromFloats(1, 2, 3),
		tensor.ScalarBool(true),
		tensor.FromStrings("a", "b"),
		tensor.Empty(),
	} {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var back tensor.Tensor
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, v.Equal(&back), "round trip of %s gave %s", v, &back)
	}
}

func TestUnmarshalRejectsBadShape(t *testing.T) {
	var v tensor.Tensor
	err := json.Unmarshal([]byte(`{"dtype":"float64","shape":[3],"data":[1]}`), &v)
	require.ErrorIs(t, err, tensor.ErrShape)
}

func TestString(t *testing.T) {
	assert.Equal(t, "float64[3]{1 2 3}", tensor.FromFloats(1, 2, 3).String())
	assert.Equal(t, "string[2]{a b}", tensor.FromStrings("a", "b").String())
}
