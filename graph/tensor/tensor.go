// Package tensor provides a small dense value type for dataflow graphs.
//
// Tensor satisfies graph.Value, the only contract the execution core relies on.
// It carries either numeric data (float64 or bool) or strings, plus a shape.
// Kernels beyond what the bundled operator catalog needs are out of scope.
package tensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DType identifies the element type of a Tensor.
type DType string

const (
	// Float64 is the default numeric element type.
	Float64 DType = "float64"

	// Bool stores elements as 0 or 1.
	Bool DType = "bool"

	// String holds UTF-8 strings.
	String DType = "string"
)

// ErrShape is returned when data length does not match the requested shape.
var ErrShape = errors.New("tensor: data length does not match shape")

// ErrIndex is returned when an element index is out of range.
var ErrIndex = errors.New("tensor: index out of range")

// ErrKind is returned when an element is read as the wrong kind,
// for example a string element read as a bool.
var ErrKind = errors.New("tensor: element kind mismatch")

// Tensor is an immutable dense value. Operators produce new tensors rather
// than mutating their inputs, so a *Tensor can be shared by every consumer
// that references it.
type Tensor struct {
	dtype DType
	shape []int
	nums  []float64
	strs  []string
}

// New creates a float64 tensor with the given shape.
func New(shape []int, data []float64) (*Tensor, error) {
	if numElements(shape) != len(data) {
		return nil, fmt.Errorf("%w: shape %v wants %d elements, got %d", ErrShape, shape, numElements(shape), len(data))
	}
	return &Tensor{dtype: Float64, shape: slices.Clone(shape), nums: slices.Clone(data)}, nil
}

// FromFloats creates a rank-1 float64 tensor.
func FromFloats(vals ...float64) *Tensor {
	return &Tensor{dtype: Float64, shape: []int{len(vals)}, nums: slices.Clone(vals)}
}

// FromBools creates a rank-1 bool tensor.
func FromBools(vals ...bool) *Tensor {
	nums := make([]float64, len(vals))
	for i, v := range vals {
		if v {
			nums[i] = 1
		}
	}
	return &Tensor{dtype: Bool, shape: []int{len(vals)}, nums: nums}
}

// FromStrings creates a rank-1 string tensor.
func FromStrings(vals ...string) *Tensor {
	return &Tensor{dtype: String, shape: []int{len(vals)}, strs: slices.Clone(vals)}
}

// Scalar creates a rank-0 float64 tensor.
func Scalar(v float64) *Tensor {
	return &Tensor{dtype: Float64, shape: []int{}, nums: []float64{v}}
}

// ScalarBool creates a rank-0 bool tensor.
func ScalarBool(v bool) *Tensor {
	t := FromBools(v)
	t.shape = []int{}
	return t
}

// Empty returns a float64 tensor with zero elements.
func Empty() *Tensor {
	return &Tensor{dtype: Float64, shape: []int{0}}
}

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	if t.dtype == String {
		return len(t.strs)
	}
	return len(t.nums)
}

// IsEmpty reports whether the tensor holds no elements.
func (t *Tensor) IsEmpty() bool { return t.Len() == 0 }

// IsString reports whether the tensor holds strings.
func (t *Tensor) IsString() bool { return t != nil && t.dtype == String }

// BoolAt reads element i as a boolean. Numeric elements are true when non-zero.
func (t *Tensor) BoolAt(i int) (bool, error) {
	if t.IsString() {
		return false, fmt.Errorf("%w: string element %d read as bool", ErrKind, i)
	}
	if i < 0 || i >= t.Len() {
		return false, fmt.Errorf("%w: %d of %d", ErrIndex, i, t.Len())
	}
	return t.nums[i] != 0, nil
}

// FloatAt reads element i as a float64.
func (t *Tensor) FloatAt(i int) (float64, error) {
	if t.IsString() {
		return 0, fmt.Errorf("%w: string element %d read as float", ErrKind, i)
	}
	if i < 0 || i >= t.Len() {
		return 0, fmt.Errorf("%w: %d of %d", ErrIndex, i, t.Len())
	}
	return t.nums[i], nil
}

// Floats returns a copy of the numeric data. It is nil for string tensors.
func (t *Tensor) Floats() []float64 { return slices.Clone(t.nums) }

// Strings returns a copy of the string data. It is nil for numeric tensors.
func (t *Tensor) Strings() []string { return slices.Clone(t.strs) }

// Dup returns a deep copy with the same dtype and shape.
func (t *Tensor) Dup() *Tensor {
	return &Tensor{
		dtype: t.dtype,
		shape: slices.Clone(t.shape),
		nums:  slices.Clone(t.nums),
		strs:  slices.Clone(t.strs),
	}
}

// WithDType returns a copy reinterpreted as dtype. Converting numeric data to
// Bool normalizes every element to 0 or 1. String tensors cannot be converted.
func (t *Tensor) WithDType(dtype DType) (*Tensor, error) {
	if t.IsString() != (dtype == String) {
		return nil, fmt.Errorf("%w: cannot convert %s to %s", ErrKind, t.dtype, dtype)
	}
	out := t.Dup()
	out.dtype = dtype
	if dtype == Bool {
		for i, v := range out.nums {
			if v != 0 {
				out.nums[i] = 1
			}
		}
	}
	return out, nil
}

// Equal reports whether two tensors have the same dtype, shape and data.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.dtype == o.dtype &&
		slices.Equal(t.shape, o.shape) &&
		slices.Equal(t.nums, o.nums) &&
		slices.Equal(t.strs, o.strs)
}

// String renders the tensor for debugging, e.g. "float64[3]{1 2 3}".
func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	dims := make([]string, len(t.shape))
	for i, d := range t.shape {
		dims[i] = fmt.Sprint(d)
	}
	var body string
	if t.dtype == String {
		body = strings.Join(t.strs, " ")
	} else {
		parts := make([]string, len(t.nums))
		for i, v := range t.nums {
			parts[i] = fmt.Sprint(v)
		}
		body = strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s[%s]{%s}", t.dtype, strings.Join(dims, ","), body)
}

// wireTensor is the JSON form used when run records are persisted.
type wireTensor struct {
	DType   DType     `json:"dtype"`
	Shape   []int     `json:"shape"`
	Data    []float64 `json:"data,omitempty"`
	Strings []string  `json:"strings,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTensor{DType: t.dtype, Shape: t.shape, Data: t.nums, Strings: t.strs})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tensor) UnmarshalJSON(data []byte) error {
	var w wireTensor
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	n := len(w.Data)
	if w.DType == String {
		n = len(w.Strings)
	}
	if numElements(w.Shape) != n {
		return fmt.Errorf("%w: shape %v with %d elements", ErrShape, w.Shape, n)
	}
	*t = Tensor{dtype: w.DType, shape: w.Shape, nums: w.Data, strs: w.Strings}
	if t.shape == nil {
		t.shape = []int{}
	}
	return nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
