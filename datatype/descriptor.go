package datatype

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/dsvalue/dsv"
)

// Class names used in type descriptors.
const (
	classInteger   = "H5T_INTEGER"
	classFloat     = "H5T_FLOAT"
	classString    = "H5T_STRING"
	classCompound  = "H5T_COMPOUND"
	classArray     = "H5T_ARRAY"
	classEnum      = "H5T_ENUM"
	classOpaque    = "H5T_OPAQUE"
	classReference = "H5T_REFERENCE"
	classVarLen    = "H5T_VLEN"

	refObjName    = "H5T_STD_REF_OBJ"
	refRegionName = "H5T_STD_REF_DSETREG"
	variableName  = "H5T_VARIABLE"
)

var padNames = map[PadPolicy]string{
	NullTerm: "H5T_STR_NULLTERM",
	NullPad:  "H5T_STR_NULLPAD",
	SpacePad: "H5T_STR_SPACEPAD",
	Truncate: "H5T_STR_TRUNCATE",
}

var charSetNames = map[CharSet]string{
	ASCII: "H5T_CSET_ASCII",
	UTF8:  "H5T_CSET_UTF8",
}

func invalid(format string, args ...interface{}) error {
	return dsv.NewError(dsv.InvalidTypeDescriptor, format, args...)
}

// Parse validates a JSON type descriptor.  A maxDepth <= 0 uses DefaultMaxDepth.
func Parse(raw []byte, maxDepth int) (*Datatype, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return parse(json.RawMessage(raw), 1, maxDepth)
}

// MustParse is like Parse but panics on error.  It is meant for literals in tests
// and static tables.
func MustParse(descriptor string) *Datatype {
	dt, err := Parse([]byte(descriptor), DefaultMaxDepth)
	if err != nil {
		panic(err)
	}
	return dt
}

type rawField struct {
	Name   string          `json:"name"`
	Type   json.RawMessage `json:"type"`
	Offset *int            `json:"offset"`
}

type rawDescriptor struct {
	Class   string          `json:"class"`
	Base    json.RawMessage `json:"base"`
	CharSet string          `json:"charSet"`
	StrPad  string          `json:"strPad"`
	Length  json.RawMessage `json:"length"`
	Size    *int            `json:"size"`
	Tag     string          `json:"tag"`
	Fields  []rawField      `json:"fields"`
	Dims    json.RawMessage `json:"dims"`
	Mapping json.RawMessage `json:"mapping"`
}

func parse(raw json.RawMessage, depth, maxDepth int) (*Datatype, error) {
	if depth > maxDepth {
		return nil, invalid("type nesting exceeds maximum depth %d", maxDepth)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, invalid("missing type descriptor")
	}
	if raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, invalid("bad type name %s: %v", raw, err)
		}
		return parsePredefined(name)
	}
	var desc rawDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, invalid("bad type descriptor %s: %v", raw, err)
	}

	switch desc.Class {
	case classInteger, classFloat:
		name, err := baseName(desc)
		if err != nil {
			return nil, err
		}
		dt, err := parsePredefined(name)
		if err != nil {
			return nil, err
		}
		want := Float
		if desc.Class == classInteger {
			want = Integer
		}
		if dt.Class != want {
			return nil, invalid("base %q does not belong to class %s", name, desc.Class)
		}
		return dt, nil

	case classReference:
		name, err := baseName(desc)
		if err != nil {
			return nil, err
		}
		dt, err := parsePredefined(name)
		if err != nil {
			return nil, err
		}
		if dt.Class != ObjectRef && dt.Class != RegionRef {
			return nil, invalid("base %q is not a reference type", name)
		}
		return dt, nil

	case classString:
		return parseString(desc)

	case classOpaque:
		dt := &Datatype{Class: Opaque, Tag: desc.Tag}
		if desc.Size != nil {
			if *desc.Size < 0 {
				return nil, invalid("opaque size must not be negative, got %d", *desc.Size)
			}
			dt.Size = *desc.Size
		}
		return dt, nil

	case classArray:
		if len(desc.Base) == 0 {
			return nil, invalid("array type requires a base")
		}
		dims, err := parseDims(desc.Dims)
		if err != nil {
			return nil, err
		}
		base, err := parse(desc.Base, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		return NewArray(base, dims...), nil

	case classVarLen:
		if len(desc.Base) == 0 {
			return nil, invalid("vlen type requires a base")
		}
		base, err := parse(desc.Base, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		return &Datatype{Class: VarLen, Base: base}, nil

	case classEnum:
		if len(desc.Base) == 0 {
			return nil, invalid("enum type requires a base")
		}
		base, err := parse(desc.Base, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		if base.Class != Integer {
			return nil, invalid("enum base must be an integer type, got %s", base.Class)
		}
		mapping, err := parseMapping(desc.Mapping, base)
		if err != nil {
			return nil, err
		}
		return &Datatype{Class: Enum, Base: base, Mapping: mapping}, nil

	case classCompound:
		return parseCompound(desc, depth, maxDepth)

	case "":
		return nil, invalid("type descriptor has no class: %s", raw)
	}
	return nil, invalid("unknown type class %q", desc.Class)
}

func baseName(desc rawDescriptor) (string, error) {
	if len(desc.Base) == 0 {
		return "", invalid("%s type requires a base", desc.Class)
	}
	var name string
	if err := json.Unmarshal(desc.Base, &name); err != nil {
		return "", invalid("%s base must be a predefined type name, got %s", desc.Class, desc.Base)
	}
	return name, nil
}

// parsePredefined handles names like H5T_STD_U16BE, H5T_IEEE_F64LE and the
// reference names.
func parsePredefined(name string) (*Datatype, error) {
	switch name {
	case refObjName:
		return &Datatype{Class: ObjectRef}, nil
	case refRegionName:
		return &Datatype{Class: RegionRef}, nil
	}
	var order ByteOrder
	var rest string
	switch {
	case strings.HasSuffix(name, "LE"):
		order, rest = LittleEndian, strings.TrimSuffix(name, "LE")
	case strings.HasSuffix(name, "BE"):
		order, rest = BigEndian, strings.TrimSuffix(name, "BE")
	default:
		return nil, invalid("unknown predefined type %q", name)
	}
	var class Class
	var signed bool
	switch {
	case strings.HasPrefix(rest, "H5T_STD_I"):
		class, signed, rest = Integer, true, strings.TrimPrefix(rest, "H5T_STD_I")
	case strings.HasPrefix(rest, "H5T_STD_U"):
		class, rest = Integer, strings.TrimPrefix(rest, "H5T_STD_U")
	case strings.HasPrefix(rest, "H5T_IEEE_F"):
		class, rest = Float, strings.TrimPrefix(rest, "H5T_IEEE_F")
	default:
		return nil, invalid("unknown predefined type %q", name)
	}
	bits, err := strconv.Atoi(rest)
	if err != nil {
		return nil, invalid("unknown predefined type %q", name)
	}
	switch {
	case class == Integer && (bits == 8 || bits == 16 || bits == 32 || bits == 64):
		return NewInteger(bits/8, signed, order), nil
	case class == Float && (bits == 32 || bits == 64):
		return NewFloat(bits/8, order), nil
	}
	return nil, invalid("unsupported bit width %d in %q", bits, name)
}

func parseString(desc rawDescriptor) (*Datatype, error) {
	dt := &Datatype{Pad: NullTerm, CharSet: ASCII}
	if desc.CharSet != "" {
		found := false
		for cset, name := range charSetNames {
			if name == desc.CharSet {
				dt.CharSet, found = cset, true
			}
		}
		if !found {
			return nil, invalid("unknown character set %q", desc.CharSet)
		}
	}
	if desc.StrPad != "" {
		found := false
		for pad, name := range padNames {
			if name == desc.StrPad {
				dt.Pad, found = pad, true
			}
		}
		if !found {
			return nil, invalid("unknown string padding %q", desc.StrPad)
		}
	}
	length := bytes.TrimSpace(desc.Length)
	if len(length) == 0 {
		return nil, invalid("string type requires a length")
	}
	if length[0] == '"' {
		var s string
		if err := json.Unmarshal(length, &s); err != nil || s != variableName {
			return nil, invalid("string length must be a positive number or %q, got %s", variableName, length)
		}
		dt.Class = VarString
		return dt, nil
	}
	var n int
	if err := json.Unmarshal(length, &n); err != nil || n <= 0 {
		return nil, invalid("string length must be a positive number or %q, got %s", variableName, length)
	}
	dt.Class = FixedString
	dt.Size = n
	return dt, nil
}

func parseDims(raw json.RawMessage) ([]int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, invalid("array type requires dims")
	}
	var dims []int
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &dims); err != nil {
			return nil, invalid("bad array dims %s: %v", raw, err)
		}
	} else {
		var d int
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, invalid("bad array dims %s: %v", raw, err)
		}
		dims = []int{d}
	}
	if len(dims) == 0 {
		return nil, invalid("array type requires at least one dimension")
	}
	for i, d := range dims {
		if d <= 0 {
			return nil, invalid("array dimension %d must be positive, got %d", i, d)
		}
	}
	return dims, nil
}

// parseMapping walks the mapping object token by token so duplicate names,
// which encoding/json would silently merge, can be rejected.
func parseMapping(raw json.RawMessage, base *Datatype) (map[string]int64, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid("enum type requires a mapping")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, invalid("enum mapping must be an object, got %s", raw)
	}
	mapping := make(map[string]int64)
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, invalid("bad enum mapping: %v", err)
		}
		name := tok.(string)
		if _, found := mapping[name]; found {
			return nil, invalid("duplicate enum name %q", name)
		}
		tok, err = dec.Token()
		if err != nil {
			return nil, invalid("bad enum mapping: %v", err)
		}
		num, ok := tok.(json.Number)
		if !ok {
			return nil, invalid("enum value for %q must be an integer, got %v", name, tok)
		}
		v, err := num.Int64()
		if err != nil {
			return nil, invalid("enum value for %q must be an integer, got %s", name, num)
		}
		if !base.IntegerFits(v) {
			return nil, invalid("enum value %d for %q does not fit %s", v, name, base)
		}
		mapping[name] = v
	}
	if len(mapping) == 0 {
		return nil, invalid("enum mapping is empty")
	}
	return mapping, nil
}

func parseCompound(desc rawDescriptor, depth, maxDepth int) (*Datatype, error) {
	if len(desc.Fields) == 0 {
		return nil, invalid("compound type requires at least one field")
	}
	dt := &Datatype{Class: Compound, Fields: make([]Field, len(desc.Fields))}
	names := make(map[string]struct{}, len(desc.Fields))
	explicit := false
	for i, rf := range desc.Fields {
		if rf.Name == "" {
			return nil, invalid("compound field %d has no name", i)
		}
		if _, found := names[rf.Name]; found {
			return nil, invalid("duplicate compound field name %q", rf.Name)
		}
		names[rf.Name] = struct{}{}
		ft, err := parse(rf.Type, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		dt.Fields[i] = Field{Name: rf.Name, Type: ft}
		if rf.Offset != nil {
			explicit = true
		}
	}
	dt.packFields()
	if !explicit || !dt.IsFixedSize() {
		return dt, nil
	}

	for i, rf := range desc.Fields {
		if rf.Offset == nil {
			return nil, invalid("compound field %q needs an offset when other fields have one", rf.Name)
		}
		if *rf.Offset < 0 {
			return nil, invalid("compound field %q has negative offset %d", rf.Name, *rf.Offset)
		}
		dt.Fields[i].Offset = *rf.Offset
	}
	for i, a := range dt.Fields {
		aEnd := a.Offset + a.Type.ElementByteSize()
		for _, b := range dt.Fields[i+1:] {
			bEnd := b.Offset + b.Type.ElementByteSize()
			if a.Offset < bEnd && b.Offset < aEnd {
				return nil, invalid("compound fields %q and %q overlap", a.Name, b.Name)
			}
		}
	}
	dt.Size = dt.ElementByteSize()
	return dt, nil
}

// IntegerFits returns true if v is representable by an Integer type.
func (dt *Datatype) IntegerFits(v int64) bool {
	bits := uint(dt.Size * 8)
	if dt.Signed {
		if bits >= 64 {
			return true
		}
		return v >= -(1<<(bits-1)) && v < 1<<(bits-1)
	}
	if v < 0 {
		return false
	}
	return bits >= 64 || v < 1<<bits
}

// predefinedName returns the name of an atomic or reference type.
func (dt *Datatype) predefinedName() string {
	order := "LE"
	if dt.Order == BigEndian {
		order = "BE"
	}
	switch dt.Class {
	case Integer:
		sign := "U"
		if dt.Signed {
			sign = "I"
		}
		return fmt.Sprintf("H5T_STD_%s%d%s", sign, dt.Size*8, order)
	case Float:
		return fmt.Sprintf("H5T_IEEE_F%d%s", dt.Size*8, order)
	case ObjectRef:
		return refObjName
	case RegionRef:
		return refRegionName
	}
	return ""
}

type fieldJSON struct {
	Name   string    `json:"name"`
	Type   *Datatype `json:"type"`
	Offset *int      `json:"offset,omitempty"`
}

type descriptorJSON struct {
	Class   string           `json:"class"`
	Base    interface{}      `json:"base,omitempty"`
	CharSet string           `json:"charSet,omitempty"`
	StrPad  string           `json:"strPad,omitempty"`
	Length  interface{}      `json:"length,omitempty"`
	Size    int              `json:"size,omitempty"`
	Tag     string           `json:"tag,omitempty"`
	Fields  []fieldJSON      `json:"fields,omitempty"`
	Dims    []int            `json:"dims,omitempty"`
	Mapping map[string]int64 `json:"mapping,omitempty"`
}

// MarshalJSON returns the canonical descriptor, which Parse accepts.  Compound
// offsets are only written when they differ from packed layout.
func (dt *Datatype) MarshalJSON() ([]byte, error) {
	var desc descriptorJSON
	switch dt.Class {
	case Integer:
		desc = descriptorJSON{Class: classInteger, Base: dt.predefinedName()}
	case Float:
		desc = descriptorJSON{Class: classFloat, Base: dt.predefinedName()}
	case ObjectRef, RegionRef:
		desc = descriptorJSON{Class: classReference, Base: dt.predefinedName()}
	case FixedString:
		desc = descriptorJSON{Class: classString, CharSet: charSetNames[dt.CharSet], StrPad: padNames[dt.Pad], Length: dt.Size}
	case VarString:
		desc = descriptorJSON{Class: classString, CharSet: charSetNames[dt.CharSet], StrPad: padNames[dt.Pad], Length: variableName}
	case Opaque:
		desc = descriptorJSON{Class: classOpaque, Size: dt.Size, Tag: dt.Tag}
	case Array:
		desc = descriptorJSON{Class: classArray, Base: dt.Base, Dims: dt.Dims}
	case VarLen:
		desc = descriptorJSON{Class: classVarLen, Base: dt.Base}
	case Enum:
		desc = descriptorJSON{Class: classEnum, Base: dt.Base, Mapping: dt.Mapping}
	case Compound:
		desc = descriptorJSON{Class: classCompound, Fields: make([]fieldJSON, len(dt.Fields))}
		packed := NewCompound(cloneFields(dt.Fields)...)
		writeOffsets := false
		for i, f := range dt.Fields {
			if f.Offset != packed.Fields[i].Offset {
				writeOffsets = true
			}
		}
		for i, f := range dt.Fields {
			desc.Fields[i] = fieldJSON{Name: f.Name, Type: f.Type}
			if writeOffsets {
				offset := f.Offset
				desc.Fields[i].Offset = &offset
			}
		}
	default:
		return nil, fmt.Errorf("cannot marshal datatype of %s", dt.Class)
	}
	return json.Marshal(desc)
}

func cloneFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// UnmarshalJSON parses a descriptor with the default depth bound.
func (dt *Datatype) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b, DefaultMaxDepth)
	if err != nil {
		return err
	}
	*dt = *parsed
	return nil
}
