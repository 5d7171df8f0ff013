/*
Package value converts dataset elements between their JSON wire form, an in-memory
Value tree and the packed bytes kept in storage.

Every conversion is driven by a *datatype.Datatype.  A Value mirrors the type tree:
integers are Int or Uint depending on signedness, compound fields, array elements
and vlen sequences are Lists, and references are ObjectRef or RegionRef.
*/
package value

import (
	"fmt"
	"reflect"
)

// Value is a decoded dataset element.
type Value interface {
	isValue()
}

type (
	// Int holds signed integers and enums with a signed base.
	Int int64

	// Uint holds unsigned integers and enums with an unsigned base.
	Uint uint64

	Float float64

	String string

	// List holds compound fields in declared order, array elements nested one
	// level per array dimension, or the members of a vlen sequence.
	List []Value

	// Opaque is a raw byte payload.  It has no wire form.
	Opaque []byte
)

// ObjectRef names a group, dataset or committed datatype by path,
// e.g. "/datasets/<id>".  The zero ObjectRef is the null reference.
type ObjectRef struct {
	Path string
}

func (r ObjectRef) IsNull() bool {
	return r.Path == ""
}

// SelectClass is the kind of selection held by a RegionRef.
type SelectClass uint8

const (
	PointSelection SelectClass = iota
	HyperslabSelection
)

func (c SelectClass) String() string {
	switch c {
	case PointSelection:
		return selPoints
	case HyperslabSelection:
		return selHyperslabs
	}
	return fmt.Sprintf("selection class %d", uint8(c))
}

// Block is one contiguous region of a region reference, from Start through End
// inclusive in every dimension.
type Block struct {
	Start []uint64
	End   []uint64
}

// RegionRef names a region of a target dataset.  The zero RegionRef is the null
// reference.  Points is used for PointSelection, Blocks for HyperslabSelection.
type RegionRef struct {
	Target string
	Class  SelectClass
	Points [][]uint64
	Blocks []Block
}

func (r RegionRef) IsNull() bool {
	return r.Target == ""
}

func (Int) isValue()       {}
func (Uint) isValue()      {}
func (Float) isValue()     {}
func (String) isValue()    {}
func (List) isValue()      {}
func (Opaque) isValue()    {}
func (ObjectRef) isValue() {}
func (RegionRef) isValue() {}

// Equal returns true if two values are identical trees.
func Equal(a, b Value) bool {
	return reflect.DeepEqual(a, b)
}
