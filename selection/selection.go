/*
Package selection resolves read and write targets within a dataset.

Selection parameters arrive as a flat map.  Hyperslab parameters are keyed
dim{N}_start, dim{N}_stop (or its alias dim{N}_end) and dim{N}_step with N counting
dimensions from 1; a "points" entry instead lists coordinate tuples.  Resolve
validates everything against the dataset shape before any storage is touched.
*/
package selection

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"

	"github.com/janelia-flyem/dsvalue/dsv"
)

// PointsKey is the parameter holding an explicit point list.
const PointsKey = "points"

// Params maps parameter names to string or numeric values.  The "points" entry
// holds a list of coordinate tuples.
type Params map[string]interface{}

// ParamsFromQuery takes the first value of each query key.
func ParamsFromQuery(q url.Values) Params {
	params := make(Params, len(q))
	for key, values := range q {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

// ParamsFromPayload converts write payload bounds into parameters.  Each of start,
// stop and step may be nil, a single number for a rank 1 selection, or a list
// with one number per dimension.
func ParamsFromPayload(start, stop, step, points interface{}) Params {
	params := make(Params)
	for _, bound := range []struct {
		name string
		v    interface{}
	}{{"start", start}, {"stop", stop}, {"step", step}} {
		if bound.v == nil {
			continue
		}
		list, ok := bound.v.([]interface{})
		if !ok {
			list = []interface{}{bound.v}
		}
		for i, v := range list {
			params[fmt.Sprintf("dim%d_%s", i+1, bound.name)] = v
		}
	}
	if points != nil {
		params[PointsKey] = points
	}
	return params
}

// Selection is a validated set of coordinates within a dataset.
type Selection interface {
	// Shape is the shape of the selected values: per-dimension counts for a
	// hyperslab, or the number of points for a point list.
	Shape() dsv.Shape

	NumElements() int64

	IsPoints() bool

	// Iterate calls fn with each selected dataset coordinate in order.  Hyperslabs
	// go row-major, point lists in their given order.  The coord slice is reused
	// between calls.
	Iterate(fn func(coord []int64) error) error
}

// Hyperslab selects start, start+step, ... up to but not including stop in each
// dimension.
type Hyperslab struct {
	Start []int64
	Stop  []int64
	Step  []int64
}

// All returns the full extent of a shape with step 1.
func All(shape dsv.Shape) *Hyperslab {
	h := &Hyperslab{
		Start: make([]int64, len(shape)),
		Stop:  make([]int64, len(shape)),
		Step:  make([]int64, len(shape)),
	}
	for dim, extent := range shape {
		h.Stop[dim] = extent
		h.Step[dim] = 1
	}
	return h
}

// Count returns the number of selected indices in a dimension.
func (h *Hyperslab) Count(dim int) int64 {
	if h.Stop[dim] <= h.Start[dim] {
		return 0
	}
	return 1 + (h.Stop[dim]-h.Start[dim]-1)/h.Step[dim]
}

func (h *Hyperslab) Shape() dsv.Shape {
	shape := make(dsv.Shape, len(h.Start))
	for dim := range shape {
		shape[dim] = h.Count(dim)
	}
	return shape
}

func (h *Hyperslab) NumElements() int64 {
	return h.Shape().NumElements()
}

func (h *Hyperslab) IsPoints() bool {
	return false
}

func (h *Hyperslab) Iterate(fn func(coord []int64) error) error {
	counts := h.Shape()
	if counts.NumElements() == 0 {
		return nil
	}
	rank := len(counts)
	index := make([]int64, rank)
	coord := make([]int64, rank)
	for {
		for dim := range coord {
			coord[dim] = h.Start[dim] + index[dim]*h.Step[dim]
		}
		if err := fn(coord); err != nil {
			return err
		}
		dim := rank - 1
		for ; dim >= 0; dim-- {
			index[dim]++
			if index[dim] < counts[dim] {
				break
			}
			index[dim] = 0
		}
		if dim < 0 {
			return nil
		}
	}
}

func (h *Hyperslab) String() string {
	return fmt.Sprintf("hyperslab start %v stop %v step %v", h.Start, h.Stop, h.Step)
}

// PointList selects individual coordinates in the given order.  Duplicates are kept.
type PointList struct {
	Points [][]int64
}

func (p *PointList) Shape() dsv.Shape {
	return dsv.Shape{int64(len(p.Points))}
}

func (p *PointList) NumElements() int64 {
	return int64(len(p.Points))
}

func (p *PointList) IsPoints() bool {
	return true
}

func (p *PointList) Iterate(fn func(coord []int64) error) error {
	for _, pt := range p.Points {
		if err := fn(pt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PointList) String() string {
	return fmt.Sprintf("%d points", len(p.Points))
}

var dimParam = regexp.MustCompile(`^dim(\d+)_(start|stop|end|step)$`)

func invalid(format string, args ...interface{}) error {
	return dsv.NewError(dsv.InvalidSelection, format, args...)
}

// Resolve validates parameters against a dataset shape.  With no selection
// parameters the result is the full extent.
func Resolve(params Params, shape dsv.Shape) (Selection, error) {
	type bounds struct {
		start, stop, end, step *int64
	}
	rank := shape.Rank()
	dims := make([]bounds, rank)
	haveDims := false
	for key, raw := range params {
		m := dimParam.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		haveDims = true
		dim, err := strconv.Atoi(m[1])
		if err != nil || dim < 1 || dim > rank {
			return nil, invalid("parameter %s names dimension %s but dataset has rank %d", key, m[1], rank)
		}
		v, err := integer(raw)
		if err != nil {
			return nil, invalid("parameter %s: %v", key, err)
		}
		b := &dims[dim-1]
		switch m[2] {
		case "start":
			b.start = &v
		case "stop":
			b.stop = &v
		case "end":
			b.end = &v
		case "step":
			b.step = &v
		}
	}

	if raw, found := params[PointsKey]; found {
		if haveDims {
			return nil, invalid("point selection cannot be combined with hyperslab parameters")
		}
		return resolvePoints(raw, shape)
	}

	h := All(shape)
	for dim, b := range dims {
		extent := shape[dim]
		if b.stop != nil && b.end != nil && *b.stop != *b.end {
			return nil, invalid("dim%d_stop (%d) and dim%d_end (%d) disagree", dim+1, *b.stop, dim+1, *b.end)
		}
		if b.start != nil {
			h.Start[dim] = *b.start
		}
		if b.stop != nil {
			h.Stop[dim] = *b.stop
		} else if b.end != nil {
			h.Stop[dim] = *b.end
		}
		if b.step != nil {
			h.Step[dim] = *b.step
		}
		start, stop, step := h.Start[dim], h.Stop[dim], h.Step[dim]
		switch {
		case step <= 0:
			return nil, invalid("dim%d step must be positive, got %d", dim+1, step)
		case start < 0:
			return nil, invalid("dim%d start %d is negative", dim+1, start)
		case stop > extent:
			return nil, invalid("dim%d stop %d exceeds extent %d", dim+1, stop, extent)
		case start > stop, start == stop && extent != 0:
			return nil, invalid("dim%d start %d must be less than stop %d", dim+1, start, stop)
		}
	}
	return h, nil
}

func resolvePoints(raw interface{}, shape dsv.Shape) (*PointList, error) {
	rank := shape.Rank()
	if rank == 0 {
		return nil, invalid("point selection on a scalar dataset")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, invalid("points must be a list of coordinates, got %T", raw)
	}
	p := &PointList{Points: make([][]int64, len(list))}
	for i, elem := range list {
		tuple, ok := elem.([]interface{})
		if !ok {
			if rank != 1 {
				return nil, invalid("point %d must be a list of %d coordinates", i, rank)
			}
			tuple = []interface{}{elem}
		}
		if len(tuple) != rank {
			return nil, invalid("point %d has %d coordinates, dataset has rank %d", i, len(tuple), rank)
		}
		pt := make([]int64, rank)
		for dim, c := range tuple {
			v, err := integer(c)
			if err != nil {
				return nil, invalid("point %d: %v", i, err)
			}
			if v < 0 || v >= shape[dim] {
				return nil, invalid("point %d coordinate %d is outside [0, %d)", i, v, shape[dim])
			}
			pt[dim] = v
		}
		p.Points[i] = pt
	}
	return p, nil
}

// integer converts a query string or JSON number into an int64.
func integer(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		return i, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s is not an integer", v)
		}
		return i, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("%v is not an integer", raw)
}
