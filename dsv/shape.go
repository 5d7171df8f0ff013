package dsv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Shape is the extent of a dataset along each dimension.  An empty Shape is a
// scalar dataset holding exactly one element.
type Shape []int64

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

func (s Shape) IsScalar() bool {
	return len(s) == 0
}

// NumElements returns the product of the extents, or 1 for a scalar.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// CheckedNumElements is NumElements that reports false if the product of the
// extents does not fit in an int64.
func (s Shape) CheckedNumElements() (int64, bool) {
	for _, d := range s {
		if d == 0 {
			return 0, true
		}
	}
	n := int64(1)
	for _, d := range s {
		if d < 0 || n > math.MaxInt64/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

// Index returns the row-major linear index of a coordinate.  The coordinate
// is assumed to be in bounds and the shape to have passed CheckedNumElements.
func (s Shape) Index(coord []int64) int64 {
	var idx int64
	for dim, c := range coord {
		idx = idx*s[dim] + c
	}
	return idx
}

// Coord returns the coordinate of a row-major linear index.
func (s Shape) Coord(idx int64) []int64 {
	coord := make([]int64, len(s))
	for dim := len(s) - 1; dim >= 0; dim-- {
		if s[dim] == 0 {
			continue
		}
		coord[dim] = idx % s[dim]
		idx /= s[dim]
	}
	return coord
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	if s.IsScalar() {
		return "scalar"
	}
	return fmt.Sprintf("%v", []int64(s))
}

type shapeJSON struct {
	Class string  `json:"class"`
	Dims  []int64 `json:"dims,omitempty"`
}

// MarshalJSON returns the shape object form, e.g. {"class":"H5S_SIMPLE","dims":[10,10]}.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s.IsScalar() {
		return json.Marshal(shapeJSON{Class: "H5S_SCALAR"})
	}
	return json.Marshal(shapeJSON{Class: "H5S_SIMPLE", Dims: []int64(s)})
}

// ParseShape accepts a bare extent (10), a list of extents ([10, 10]), or the
// object form.  A missing or null shape is a scalar.
func ParseShape(raw json.RawMessage) (Shape, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Shape{}, nil
	}
	var dims []int64
	switch raw[0] {
	case '{':
		var obj struct {
			Class string  `json:"class"`
			Dims  []int64 `json:"dims"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, NewError(InvalidSelection, "bad shape %s: %v", raw, err)
		}
		switch obj.Class {
		case "H5S_SCALAR":
			return Shape{}, nil
		case "H5S_SIMPLE", "":
			dims = obj.Dims
		default:
			return nil, NewError(InvalidSelection, "unsupported shape class %q", obj.Class)
		}
	case '[':
		if err := json.Unmarshal(raw, &dims); err != nil {
			return nil, NewError(InvalidSelection, "bad shape %s: %v", raw, err)
		}
	default:
		var extent int64
		if err := json.Unmarshal(raw, &extent); err != nil {
			return nil, NewError(InvalidSelection, "bad shape %s: %v", raw, err)
		}
		dims = []int64{extent}
	}
	for dim, extent := range dims {
		if extent < 0 {
			return nil, NewError(InvalidSelection, "negative extent %d in dimension %d", extent, dim)
		}
	}
	if _, ok := Shape(dims).CheckedNumElements(); !ok {
		return nil, NewError(InvalidSelection, "shape %v has too many elements", dims)
	}
	return Shape(dims), nil
}

// UnmarshalJSON accepts any form ParseShape does.
func (s *Shape) UnmarshalJSON(b []byte) error {
	shape, err := ParseShape(b)
	if err != nil {
		return err
	}
	*s = shape
	return nil
}
