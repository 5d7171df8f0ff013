package value

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
)

// Wire forms of null references, region selection classes and non-finite floats.
const (
	NullRef = "null"

	selPoints     = "H5S_SEL_POINTS"
	selHyperslabs = "H5S_SEL_HYPERSLABS"

	nanString    = "NaN"
	posInfString = "Infinity"
	negInfString = "-Infinity"
)

var refCollections = []string{"/groups/", "/datasets/", "/datatypes/"}

// Codec converts between wire values and Values.  Wire values are the trees produced
// by encoding/json, preferably decoded with UseNumber so large integers are exact.
type Codec struct {
	// MaxDepth bounds the nesting of datatypes the codec accepts.
	MaxDepth int
}

// DefaultCodec bounds type depth at datatype.DefaultMaxDepth.
var DefaultCodec = Codec{MaxDepth: datatype.DefaultMaxDepth}

func (c Codec) checkDepth(dt *datatype.Datatype) error {
	maxDepth := c.MaxDepth
	if maxDepth <= 0 {
		maxDepth = datatype.DefaultMaxDepth
	}
	if depth := dt.Depth(); depth > maxDepth {
		return dsv.NewError(dsv.InvalidTypeDescriptor, "type depth %d exceeds maximum %d", depth, maxDepth)
	}
	return nil
}

// Decode converts a wire value into a Value of the given type.
func (c Codec) Decode(wire interface{}, dt *datatype.Datatype) (Value, error) {
	if err := c.checkDepth(dt); err != nil {
		return nil, err
	}
	return decode(wire, dt)
}

// Encode converts a Value into its wire form.
func (c Codec) Encode(v Value, dt *datatype.Datatype) (interface{}, error) {
	if err := c.checkDepth(dt); err != nil {
		return nil, err
	}
	return encode(v, dt)
}

// Decode uses DefaultCodec.
func Decode(wire interface{}, dt *datatype.Datatype) (Value, error) {
	return DefaultCodec.Decode(wire, dt)
}

// Encode uses DefaultCodec.
func Encode(v Value, dt *datatype.Datatype) (interface{}, error) {
	return DefaultCodec.Encode(v, dt)
}

func mismatch(format string, args ...interface{}) error {
	return dsv.NewError(dsv.TypeMismatch, format, args...)
}

func decode(wire interface{}, dt *datatype.Datatype) (Value, error) {
	switch dt.Class {
	case datatype.Integer:
		return decodeInteger(wire, dt)
	case datatype.Enum:
		return decodeInteger(wire, dt.Base)
	case datatype.Float:
		return decodeFloat(wire, dt)
	case datatype.FixedString, datatype.VarString:
		return decodeString(wire, dt)
	case datatype.Compound:
		list, ok := wire.([]interface{})
		if !ok {
			return nil, mismatch("compound value must be a list of %d fields, got %T", len(dt.Fields), wire)
		}
		if len(list) != len(dt.Fields) {
			return nil, dsv.NewError(dsv.ShapeMismatch, "compound value has %d fields, expected %d", len(list), len(dt.Fields))
		}
		out := make(List, len(list))
		for i, f := range dt.Fields {
			v, err := decode(list[i], f.Type)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case datatype.Array:
		return decodeArray(wire, dt.Base, dt.Dims)
	case datatype.VarLen:
		list, ok := wire.([]interface{})
		if !ok {
			return nil, mismatch("vlen value must be a list, got %T", wire)
		}
		out := make(List, len(list))
		for i, elem := range list {
			v, err := decode(elem, dt.Base)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case datatype.ObjectRef:
		return decodeObjectRef(wire)
	case datatype.RegionRef:
		return decodeRegionRef(wire)
	case datatype.Opaque:
		return nil, dsv.NewError(dsv.UnsupportedEncoding, "opaque values have no wire form")
	}
	return nil, dsv.NewError(dsv.InvalidTypeDescriptor, "cannot decode %s", dt.Class)
}

func decodeArray(wire interface{}, base *datatype.Datatype, dims []int) (Value, error) {
	if len(dims) == 0 {
		return decode(wire, base)
	}
	list, ok := wire.([]interface{})
	if !ok {
		return nil, dsv.NewError(dsv.ShapeMismatch, "expected array level of length %d, got %T", dims[0], wire)
	}
	if len(list) != dims[0] {
		return nil, dsv.NewError(dsv.ShapeMismatch, "array level has length %d, expected %d", len(list), dims[0])
	}
	out := make(List, len(list))
	for i, elem := range list {
		v, err := decodeArray(elem, base, dims[1:])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// numberString returns the decimal text of a numeric wire leaf.
func numberString(wire interface{}) (string, bool) {
	switch n := wire.(type) {
	case json.Number:
		return n.String(), true
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32), true
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	}
	return "", false
}

func decodeInteger(wire interface{}, dt *datatype.Datatype) (Value, error) {
	s, ok := numberString(wire)
	if !ok {
		return nil, mismatch("expected integer for %s, got %T", dt, wire)
	}
	f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return nil, mismatch("bad integer %q: %v", s, err)
	}
	if f.IsInf() || !f.IsInt() {
		return nil, mismatch("expected whole number, got %s", s)
	}
	i, _ := f.Int(nil)
	bits := uint(dt.Size * 8)
	if dt.Signed {
		if !i.IsInt64() || !dt.IntegerFits(i.Int64()) {
			return nil, dsv.NewError(dsv.ValueOutOfRange, "%s does not fit in a signed %d-bit integer", s, bits)
		}
		return Int(i.Int64()), nil
	}
	if !i.IsUint64() {
		return nil, dsv.NewError(dsv.ValueOutOfRange, "%s does not fit in an unsigned %d-bit integer", s, bits)
	}
	u := i.Uint64()
	if bits < 64 && u >= 1<<bits {
		return nil, dsv.NewError(dsv.ValueOutOfRange, "%s does not fit in an unsigned %d-bit integer", s, bits)
	}
	return Uint(u), nil
}

func decodeFloat(wire interface{}, dt *datatype.Datatype) (Value, error) {
	if s, ok := wire.(string); ok {
		switch s {
		case nanString:
			return Float(math.NaN()), nil
		case posInfString:
			return Float(math.Inf(1)), nil
		case negInfString:
			return Float(math.Inf(-1)), nil
		}
		return nil, mismatch("expected number for %s, got string %q", dt, s)
	}
	s, ok := numberString(wire)
	if !ok {
		return nil, mismatch("expected number for %s, got %T", dt, wire)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, dsv.NewError(dsv.ValueOutOfRange, "bad float %q: %v", s, err)
	}
	if dt.Size == 4 {
		if math.Abs(f) > math.MaxFloat32 {
			return nil, dsv.NewError(dsv.ValueOutOfRange, "%s does not fit in a 32-bit float", s)
		}
		f = float64(float32(f))
	}
	return Float(f), nil
}

func decodeString(wire interface{}, dt *datatype.Datatype) (Value, error) {
	s, ok := wire.(string)
	if !ok {
		return nil, mismatch("expected string, got %T", wire)
	}
	if dt.CharSet == datatype.ASCII {
		for i := 0; i < len(s); i++ {
			if s[i] >= utf8.RuneSelf {
				return nil, dsv.NewError(dsv.ValueOutOfRange, "non-ASCII byte at position %d of %q", i, s)
			}
		}
	}
	if dt.Class == datatype.FixedString && len(s) > dt.Size {
		if dt.Pad != datatype.Truncate {
			return nil, dsv.NewError(dsv.StringTooLong, "%d byte string exceeds fixed length %d", len(s), dt.Size)
		}
		s = truncate(s, dt.Size)
	}
	return String(s), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func decodeObjectRef(wire interface{}) (Value, error) {
	s, ok := wire.(string)
	if !ok {
		return nil, mismatch("object reference must be a string, got %T", wire)
	}
	if s == NullRef {
		return ObjectRef{}, nil
	}
	for _, prefix := range refCollections {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) && !strings.Contains(s[len(prefix):], "/") {
			return ObjectRef{Path: s}, nil
		}
	}
	return nil, mismatch("object reference must be %q or a /groups/, /datasets/ or /datatypes/ path, got %q", NullRef, s)
}

func decodeRegionRef(wire interface{}) (Value, error) {
	if s, ok := wire.(string); ok {
		if s == NullRef {
			return RegionRef{}, nil
		}
		return nil, mismatch("region reference string must be %q, got %q", NullRef, s)
	}
	obj, ok := wire.(map[string]interface{})
	if !ok {
		return nil, mismatch("region reference must be %q or an object, got %T", NullRef, wire)
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return nil, mismatch("region reference requires a target id")
	}
	ref := RegionRef{Target: id}
	sel, ok := obj["selection"].([]interface{})
	if !ok {
		return nil, mismatch("region reference requires a selection list")
	}
	rank := -1
	coords := func(w interface{}) ([]uint64, error) {
		list, ok := w.([]interface{})
		if !ok {
			return nil, mismatch("region coordinate must be a list, got %T", w)
		}
		if rank >= 0 && len(list) != rank {
			return nil, dsv.NewError(dsv.ShapeMismatch, "region coordinate has rank %d, expected %d", len(list), rank)
		}
		rank = len(list)
		out := make([]uint64, len(list))
		for i, c := range list {
			v, err := decodeInteger(c, datatype.NewInteger(8, false, datatype.LittleEndian))
			if err != nil {
				return nil, err
			}
			out[i] = uint64(v.(Uint))
		}
		return out, nil
	}

	switch obj["select_type"] {
	case selPoints:
		ref.Class = PointSelection
		for _, w := range sel {
			pt, err := coords(w)
			if err != nil {
				return nil, err
			}
			ref.Points = append(ref.Points, pt)
		}
	case selHyperslabs:
		ref.Class = HyperslabSelection
		for _, w := range sel {
			pair, ok := w.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, mismatch("hyperslab block must be a [start, end] pair")
			}
			start, err := coords(pair[0])
			if err != nil {
				return nil, err
			}
			end, err := coords(pair[1])
			if err != nil {
				return nil, err
			}
			for i := range start {
				if start[i] > end[i] {
					return nil, dsv.NewError(dsv.ValueOutOfRange, "hyperslab block start %v is past end %v", start, end)
				}
			}
			ref.Blocks = append(ref.Blocks, Block{Start: start, End: end})
		}
	default:
		return nil, mismatch("unknown region select_type %v", obj["select_type"])
	}
	return ref, nil
}

func encode(v Value, dt *datatype.Datatype) (interface{}, error) {
	switch dt.Class {
	case datatype.Integer, datatype.Enum:
		switch n := v.(type) {
		case Int:
			return int64(n), nil
		case Uint:
			return uint64(n), nil
		}
	case datatype.Float:
		if f, ok := v.(Float); ok {
			return encodeFloat(float64(f), dt.Size), nil
		}
	case datatype.FixedString:
		if s, ok := v.(String); ok {
			return truncate(string(s), dt.Size), nil
		}
	case datatype.VarString:
		if s, ok := v.(String); ok {
			return string(s), nil
		}
	case datatype.Compound:
		list, ok := v.(List)
		if !ok {
			break
		}
		if len(list) != len(dt.Fields) {
			return nil, dsv.NewError(dsv.ShapeMismatch, "compound value has %d fields, expected %d", len(list), len(dt.Fields))
		}
		out := make([]interface{}, len(list))
		for i, f := range dt.Fields {
			w, err := encode(list[i], f.Type)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case datatype.Array:
		return encodeArray(v, dt.Base, dt.Dims)
	case datatype.VarLen:
		list, ok := v.(List)
		if !ok {
			break
		}
		out := make([]interface{}, len(list))
		for i, elem := range list {
			w, err := encode(elem, dt.Base)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case datatype.ObjectRef:
		if ref, ok := v.(ObjectRef); ok {
			if ref.IsNull() {
				return NullRef, nil
			}
			return ref.Path, nil
		}
	case datatype.RegionRef:
		if ref, ok := v.(RegionRef); ok {
			return encodeRegionRef(ref), nil
		}
	case datatype.Opaque:
		return nil, dsv.NewError(dsv.UnsupportedEncoding, "opaque values have no wire form")
	}
	return nil, mismatch("cannot encode %T as %s", v, dt.Class)
}

func encodeArray(v Value, base *datatype.Datatype, dims []int) (interface{}, error) {
	if len(dims) == 0 {
		return encode(v, base)
	}
	list, ok := v.(List)
	if !ok || len(list) != dims[0] {
		return nil, dsv.NewError(dsv.ShapeMismatch, "array value does not match dimensions %v", dims)
	}
	out := make([]interface{}, len(list))
	for i, elem := range list {
		w, err := encodeArray(elem, base, dims[1:])
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// encodeFloat keeps a fractional part on whole numbers so floats stay floats on
// the wire.
func encodeFloat(f float64, size int) interface{} {
	switch {
	case math.IsNaN(f):
		return nanString
	case math.IsInf(f, 1):
		return posInfString
	case math.IsInf(f, -1):
		return negInfString
	}
	bits := 64
	if size == 4 {
		bits = 32
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return json.Number(s)
}

func encodeRegionRef(ref RegionRef) interface{} {
	if ref.IsNull() {
		return NullRef
	}
	coords := func(c []uint64) []interface{} {
		out := make([]interface{}, len(c))
		for i, v := range c {
			out[i] = v
		}
		return out
	}
	var sel []interface{}
	switch ref.Class {
	case PointSelection:
		sel = make([]interface{}, len(ref.Points))
		for i, pt := range ref.Points {
			sel[i] = coords(pt)
		}
	case HyperslabSelection:
		sel = make([]interface{}, len(ref.Blocks))
		for i, b := range ref.Blocks {
			sel[i] = []interface{}{coords(b.Start), coords(b.End)}
		}
	}
	return map[string]interface{}{
		"select_type": ref.Class.String(),
		"id":          ref.Target,
		"selection":   sel,
	}
}
