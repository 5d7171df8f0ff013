package datatype

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxDepth bounds the nesting of composite types accepted by Parse.
const DefaultMaxDepth = 32

// Class is the tag of a Datatype.
type Class uint8

const (
	Integer Class = iota
	Float
	FixedString
	VarString
	Compound
	Array
	Enum
	Opaque
	ObjectRef
	RegionRef
	VarLen
)

var classNames = map[Class]string{
	Integer:     "integer",
	Float:       "float",
	FixedString: "fixed-length string",
	VarString:   "variable-length string",
	Compound:    "compound",
	Array:       "array",
	Enum:        "enum",
	Opaque:      "opaque",
	ObjectRef:   "object reference",
	RegionRef:   "region reference",
	VarLen:      "variable-length sequence",
}

func (c Class) String() string {
	if name, found := classNames[c]; found {
		return name
	}
	return fmt.Sprintf("class %d", uint8(c))
}

// ByteOrder is the byte order of atomic types in storage.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// PadPolicy says how a fixed-length string fills its declared length.
type PadPolicy uint8

const (
	NullTerm PadPolicy = iota
	NullPad
	SpacePad
	// Truncate allows over-length strings to be cut to the declared length on decode.
	Truncate
)

type CharSet uint8

const (
	ASCII CharSet = iota
	UTF8
)

// Field is one named member of a Compound.
type Field struct {
	Name   string
	Type   *Datatype
	Offset int
}

// Datatype is a tagged variant.  Which fields are meaningful depends on Class:
//
//	Integer, Float:    Order, Signed (integers), Size in bytes
//	FixedString:       Size in bytes, Pad, CharSet
//	VarString:         Pad, CharSet
//	Compound:          Fields, Size (0 if any member is variable size)
//	Array:             Base, Dims
//	Enum:              Base (an Integer), Mapping
//	Opaque:            Size (0 for variable length), Tag
//	VarLen:            Base
//	ObjectRef, RegionRef: none
type Datatype struct {
	Class   Class
	Order   ByteOrder
	Signed  bool
	Size    int
	Pad     PadPolicy
	CharSet CharSet
	Fields  []Field
	Base    *Datatype
	Dims    []int
	Mapping map[string]int64
	Tag     string
}

// NewInteger returns an integer type of the given byte width.
func NewInteger(size int, signed bool, order ByteOrder) *Datatype {
	return &Datatype{Class: Integer, Size: size, Signed: signed, Order: order}
}

// NewFloat returns a 4 or 8 byte IEEE float type.
func NewFloat(size int, order ByteOrder) *Datatype {
	return &Datatype{Class: Float, Size: size, Order: order}
}

// NewFixedString returns a fixed-length string type.
func NewFixedString(length int, pad PadPolicy) *Datatype {
	return &Datatype{Class: FixedString, Size: length, Pad: pad}
}

// NewVarString returns a variable-length string type.
func NewVarString(cset CharSet) *Datatype {
	return &Datatype{Class: VarString, Pad: NullTerm, CharSet: cset}
}

// NewArray returns an array of base with the given dimensions.
func NewArray(base *Datatype, dims ...int) *Datatype {
	return &Datatype{Class: Array, Base: base, Dims: dims}
}

// NewCompound returns a compound whose fields are packed in order.
func NewCompound(fields ...Field) *Datatype {
	dt := &Datatype{Class: Compound, Fields: fields}
	dt.packFields()
	return dt
}

// packFields assigns consecutive offsets and sets Size for fixed-size members.
func (dt *Datatype) packFields() {
	offset := 0
	for i := range dt.Fields {
		dt.Fields[i].Offset = offset
		offset += dt.Fields[i].Type.ElementByteSize()
	}
	if dt.IsFixedSize() {
		dt.Size = offset
	} else {
		dt.Size = 0
	}
}

// NumElements returns the number of base elements in an Array type.
func (dt *Datatype) NumElements() int {
	n := 1
	for _, d := range dt.Dims {
		n *= d
	}
	return n
}

// IsFixedSize returns true if every element of this type occupies the same number
// of bytes in storage.
func (dt *Datatype) IsFixedSize() bool {
	switch dt.Class {
	case Integer, Float, FixedString:
		return true
	case Enum, Array:
		return dt.Base.IsFixedSize()
	case Opaque:
		return dt.Size > 0
	case Compound:
		for _, f := range dt.Fields {
			if !f.Type.IsFixedSize() {
				return false
			}
		}
		return true
	}
	return false
}

// ElementByteSize returns the storage size of one element, or 0 if the type is
// not fixed size.
func (dt *Datatype) ElementByteSize() int {
	if !dt.IsFixedSize() {
		return 0
	}
	switch dt.Class {
	case Integer, Float, FixedString, Opaque:
		return dt.Size
	case Enum:
		return dt.Base.ElementByteSize()
	case Array:
		return dt.NumElements() * dt.Base.ElementByteSize()
	case Compound:
		size := 0
		for _, f := range dt.Fields {
			if end := f.Offset + f.Type.ElementByteSize(); end > size {
				size = end
			}
		}
		return size
	}
	return 0
}

// ContainsOpaque returns true if an Opaque type appears anywhere in the tree.
func (dt *Datatype) ContainsOpaque() bool {
	switch dt.Class {
	case Opaque:
		return true
	case Array, Enum, VarLen:
		return dt.Base.ContainsOpaque()
	case Compound:
		for _, f := range dt.Fields {
			if f.Type.ContainsOpaque() {
				return true
			}
		}
	}
	return false
}

// Depth returns the number of nesting levels, 1 for a leaf type.
func (dt *Datatype) Depth() int {
	depth := 0
	switch dt.Class {
	case Array, Enum, VarLen:
		depth = dt.Base.Depth()
	case Compound:
		for _, f := range dt.Fields {
			if d := f.Type.Depth(); d > depth {
				depth = d
			}
		}
	}
	return depth + 1
}

// Equal returns true if the two types describe the same schema.
func (dt *Datatype) Equal(other *Datatype) bool {
	if dt == nil || other == nil {
		return dt == other
	}
	if dt.Class != other.Class {
		return false
	}
	switch dt.Class {
	case Integer:
		return dt.Size == other.Size && dt.Signed == other.Signed && dt.Order == other.Order
	case Float:
		return dt.Size == other.Size && dt.Order == other.Order
	case FixedString:
		return dt.Size == other.Size && dt.Pad == other.Pad && dt.CharSet == other.CharSet
	case VarString:
		return dt.CharSet == other.CharSet
	case Opaque:
		return dt.Size == other.Size && dt.Tag == other.Tag
	case VarLen:
		return dt.Base.Equal(other.Base)
	case Array:
		if len(dt.Dims) != len(other.Dims) {
			return false
		}
		for i := range dt.Dims {
			if dt.Dims[i] != other.Dims[i] {
				return false
			}
		}
		return dt.Base.Equal(other.Base)
	case Enum:
		if len(dt.Mapping) != len(other.Mapping) {
			return false
		}
		for name, v := range dt.Mapping {
			if ov, found := other.Mapping[name]; !found || ov != v {
				return false
			}
		}
		return dt.Base.Equal(other.Base)
	case Compound:
		if len(dt.Fields) != len(other.Fields) {
			return false
		}
		for i, f := range dt.Fields {
			of := other.Fields[i]
			if f.Name != of.Name || f.Offset != of.Offset || !f.Type.Equal(of.Type) {
				return false
			}
		}
	}
	return true
}

// String returns the canonical JSON descriptor.
func (dt *Datatype) String() string {
	b, err := json.Marshal(dt)
	if err != nil {
		return fmt.Sprintf("<bad %s datatype: %v>", dt.Class, err)
	}
	return string(b)
}
