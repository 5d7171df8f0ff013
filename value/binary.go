package value

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
)

// Pack appends the storage encoding of v to dst.  Fixed-size types take exactly
// ElementByteSize bytes.  Variable-size parts are prefixed with a uvarint length
// or count so every encoding is self-delimiting.
func Pack(dst []byte, v Value, dt *datatype.Datatype) ([]byte, error) {
	switch dt.Class {
	case datatype.Integer:
		return packInteger(dst, v, dt)
	case datatype.Enum:
		return packInteger(dst, v, dt.Base)
	case datatype.Float:
		f, ok := v.(Float)
		if !ok {
			break
		}
		if dt.Size == 4 {
			return putUint(dst, uint64(math.Float32bits(float32(f))), 4, dt.Order), nil
		}
		return putUint(dst, math.Float64bits(float64(f)), 8, dt.Order), nil
	case datatype.FixedString:
		s, ok := v.(String)
		if !ok {
			break
		}
		str := truncate(string(s), dt.Size)
		dst = append(dst, str...)
		pad := byte(0)
		if dt.Pad == datatype.SpacePad {
			pad = ' '
		}
		for i := len(str); i < dt.Size; i++ {
			dst = append(dst, pad)
		}
		return dst, nil
	case datatype.VarString:
		s, ok := v.(String)
		if !ok {
			break
		}
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		return append(dst, s...), nil
	case datatype.Compound:
		list, ok := v.(List)
		if !ok {
			break
		}
		if len(list) != len(dt.Fields) {
			return nil, dsv.NewError(dsv.ShapeMismatch, "compound value has %d fields, expected %d", len(list), len(dt.Fields))
		}
		if !dt.IsFixedSize() {
			var err error
			for i, f := range dt.Fields {
				if dst, err = Pack(dst, list[i], f.Type); err != nil {
					return nil, err
				}
			}
			return dst, nil
		}
		base := len(dst)
		dst = append(dst, make([]byte, dt.ElementByteSize())...)
		for i, f := range dt.Fields {
			field, err := Pack(nil, list[i], f.Type)
			if err != nil {
				return nil, err
			}
			copy(dst[base+f.Offset:], field)
		}
		return dst, nil
	case datatype.Array:
		return packArray(dst, v, dt.Base, dt.Dims)
	case datatype.VarLen:
		list, ok := v.(List)
		if !ok {
			break
		}
		dst = binary.AppendUvarint(dst, uint64(len(list)))
		var err error
		for _, elem := range list {
			if dst, err = Pack(dst, elem, dt.Base); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case datatype.Opaque:
		b, ok := v.(Opaque)
		if !ok {
			break
		}
		if dt.Size == 0 {
			dst = binary.AppendUvarint(dst, uint64(len(b)))
			return append(dst, b...), nil
		}
		if len(b) != dt.Size {
			return nil, dsv.NewError(dsv.ShapeMismatch, "opaque value has %d bytes, expected %d", len(b), dt.Size)
		}
		return append(dst, b...), nil
	case datatype.ObjectRef:
		ref, ok := v.(ObjectRef)
		if !ok {
			break
		}
		dst = binary.AppendUvarint(dst, uint64(len(ref.Path)))
		return append(dst, ref.Path...), nil
	case datatype.RegionRef:
		ref, ok := v.(RegionRef)
		if !ok {
			break
		}
		return packRegionRef(dst, ref), nil
	}
	return nil, mismatch("cannot pack %T as %s", v, dt.Class)
}

func packInteger(dst []byte, v Value, dt *datatype.Datatype) ([]byte, error) {
	var u uint64
	switch n := v.(type) {
	case Int:
		u = uint64(n)
	case Uint:
		u = uint64(n)
	default:
		return nil, mismatch("cannot pack %T as integer", v)
	}
	return putUint(dst, u, dt.Size, dt.Order), nil
}

func putUint(dst []byte, u uint64, size int, order datatype.ByteOrder) []byte {
	for i := 0; i < size; i++ {
		shift := uint(i) * 8
		if order == datatype.BigEndian {
			shift = uint(size-1-i) * 8
		}
		dst = append(dst, byte(u>>shift))
	}
	return dst
}

func getUint(src []byte, size int, order datatype.ByteOrder) uint64 {
	var u uint64
	for i := 0; i < size; i++ {
		shift := uint(i) * 8
		if order == datatype.BigEndian {
			shift = uint(size-1-i) * 8
		}
		u |= uint64(src[i]) << shift
	}
	return u
}

func packArray(dst []byte, v Value, base *datatype.Datatype, dims []int) ([]byte, error) {
	if len(dims) == 0 {
		return Pack(dst, v, base)
	}
	list, ok := v.(List)
	if !ok || len(list) != dims[0] {
		return nil, dsv.NewError(dsv.ShapeMismatch, "array value does not match dimensions %v", dims)
	}
	var err error
	for _, elem := range list {
		if dst, err = packArray(dst, elem, base, dims[1:]); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func packRegionRef(dst []byte, ref RegionRef) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(ref.Target)))
	if ref.IsNull() {
		return dst
	}
	dst = append(dst, ref.Target...)
	dst = append(dst, byte(ref.Class))
	appendCoords := func(dst []byte, c []uint64) []byte {
		for _, v := range c {
			dst = binary.AppendUvarint(dst, v)
		}
		return dst
	}
	switch ref.Class {
	case PointSelection:
		rank := 0
		if len(ref.Points) > 0 {
			rank = len(ref.Points[0])
		}
		dst = binary.AppendUvarint(dst, uint64(len(ref.Points)))
		dst = binary.AppendUvarint(dst, uint64(rank))
		for _, pt := range ref.Points {
			dst = appendCoords(dst, pt)
		}
	case HyperslabSelection:
		rank := 0
		if len(ref.Blocks) > 0 {
			rank = len(ref.Blocks[0].Start)
		}
		dst = binary.AppendUvarint(dst, uint64(len(ref.Blocks)))
		dst = binary.AppendUvarint(dst, uint64(rank))
		for _, b := range ref.Blocks {
			dst = appendCoords(dst, b.Start)
			dst = appendCoords(dst, b.End)
		}
	}
	return dst
}

// reader tracks position while unpacking and records the first short read.
type reader struct {
	src []byte
	pos int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = dsv.NewError(dsv.StorageFault, "truncated element data at byte %d", r.pos)
	}
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.src) {
		r.fail()
		return nil
	}
	b := r.src[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.src[r.pos:])
	if n <= 0 {
		r.fail()
		return 0
	}
	r.pos += n
	return v
}

// length reads a uvarint that prefixes bytes or items still to come.
func (r *reader) length() int {
	n := r.uvarint()
	if n > uint64(len(r.src)-r.pos) {
		r.fail()
		return 0
	}
	return int(n)
}

// Unpack reads one element of the given type from the front of src and returns
// it along with the number of bytes consumed.
func Unpack(src []byte, dt *datatype.Datatype) (Value, int, error) {
	r := &reader{src: src}
	v := r.unpack(dt)
	if r.err != nil {
		return nil, 0, r.err
	}
	return v, r.pos, nil
}

func (r *reader) unpack(dt *datatype.Datatype) Value {
	switch dt.Class {
	case datatype.Integer:
		return r.integer(dt)
	case datatype.Enum:
		return r.integer(dt.Base)
	case datatype.Float:
		b := r.next(dt.Size)
		if b == nil {
			return nil
		}
		u := getUint(b, dt.Size, dt.Order)
		if dt.Size == 4 {
			return Float(math.Float32frombits(uint32(u)))
		}
		return Float(math.Float64frombits(u))
	case datatype.FixedString:
		b := r.next(dt.Size)
		if b == nil {
			return nil
		}
		switch dt.Pad {
		case datatype.NullTerm:
			if i := bytes.IndexByte(b, 0); i >= 0 {
				b = b[:i]
			}
		case datatype.SpacePad:
			b = bytes.TrimRight(b, " \x00")
		default:
			b = bytes.TrimRight(b, "\x00")
		}
		return String(b)
	case datatype.VarString:
		return String(r.next(r.length()))
	case datatype.Compound:
		out := make(List, len(dt.Fields))
		if !dt.IsFixedSize() {
			for i, f := range dt.Fields {
				out[i] = r.unpack(f.Type)
			}
			return out
		}
		b := r.next(dt.ElementByteSize())
		if b == nil {
			return nil
		}
		for i, f := range dt.Fields {
			sub := &reader{src: b[f.Offset:]}
			out[i] = sub.unpack(f.Type)
			if sub.err != nil {
				r.err = sub.err
				return nil
			}
		}
		return out
	case datatype.Array:
		return r.array(dt.Base, dt.Dims)
	case datatype.VarLen:
		n := r.length()
		out := make(List, n)
		for i := range out {
			out[i] = r.unpack(dt.Base)
		}
		return out
	case datatype.Opaque:
		size := dt.Size
		if size == 0 {
			size = r.length()
		}
		b := r.next(size)
		if b == nil {
			return nil
		}
		return Opaque(append([]byte{}, b...))
	case datatype.ObjectRef:
		return ObjectRef{Path: string(r.next(r.length()))}
	case datatype.RegionRef:
		return r.regionRef()
	}
	r.err = dsv.NewError(dsv.InvalidTypeDescriptor, "cannot unpack %s", dt.Class)
	return nil
}

func (r *reader) integer(dt *datatype.Datatype) Value {
	b := r.next(dt.Size)
	if b == nil {
		return nil
	}
	u := getUint(b, dt.Size, dt.Order)
	if !dt.Signed {
		return Uint(u)
	}
	shift := uint(64 - dt.Size*8)
	return Int(int64(u<<shift) >> shift)
}

func (r *reader) array(base *datatype.Datatype, dims []int) Value {
	if len(dims) == 0 {
		return r.unpack(base)
	}
	out := make(List, dims[0])
	for i := range out {
		out[i] = r.array(base, dims[1:])
	}
	return out
}

func (r *reader) regionRef() Value {
	target := r.next(r.length())
	if len(target) == 0 {
		return RegionRef{}
	}
	ref := RegionRef{Target: string(target)}
	class := r.next(1)
	if class == nil {
		return nil
	}
	ref.Class = SelectClass(class[0])
	n := r.length()
	rank := r.length()
	coords := func() []uint64 {
		c := make([]uint64, rank)
		for i := range c {
			c[i] = r.uvarint()
		}
		return c
	}
	for i := 0; i < n && r.err == nil; i++ {
		switch ref.Class {
		case PointSelection:
			ref.Points = append(ref.Points, coords())
		case HyperslabSelection:
			start := coords()
			ref.Blocks = append(ref.Blocks, Block{Start: start, End: coords()})
		}
	}
	return ref
}

// Zero returns the value read for an element that was never written.
func Zero(dt *datatype.Datatype) Value {
	switch dt.Class {
	case datatype.Integer:
		if dt.Signed {
			return Int(0)
		}
		return Uint(0)
	case datatype.Enum:
		return Zero(dt.Base)
	case datatype.Float:
		return Float(0)
	case datatype.FixedString, datatype.VarString:
		return String("")
	case datatype.Compound:
		out := make(List, len(dt.Fields))
		for i, f := range dt.Fields {
			out[i] = Zero(f.Type)
		}
		return out
	case datatype.Array:
		return zeroArray(dt.Base, dt.Dims)
	case datatype.VarLen:
		return List{}
	case datatype.Opaque:
		return Opaque(make([]byte, dt.Size))
	case datatype.ObjectRef:
		return ObjectRef{}
	case datatype.RegionRef:
		return RegionRef{}
	}
	return nil
}

func zeroArray(base *datatype.Datatype, dims []int) Value {
	if len(dims) == 0 {
		return Zero(base)
	}
	out := make(List, dims[0])
	for i := range out {
		out[i] = zeroArray(base, dims[1:])
	}
	return out
}
