package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
)

// wireJSON decodes JSON text the way request bodies are decoded.
func wireJSON(t *testing.T, s string) interface{} {
	dec := json.NewDecoder(bytes.NewBufferString(s))
	dec.UseNumber()
	var wire interface{}
	if err := dec.Decode(&wire); err != nil {
		t.Fatalf("bad test JSON %s: %v\n", s, err)
	}
	return wire
}

var (
	pointType = datatype.MustParse(`{"class": "H5T_COMPOUND", "fields": [
		{"name": "x", "type": "H5T_IEEE_F32LE"},
		{"name": "y", "type": "H5T_IEEE_F32LE"}]}`)

	roundTrips = []struct {
		name string
		dt   *datatype.Datatype
		v    Value
	}{
		{"int8", datatype.MustParse(`"H5T_STD_I8LE"`), Int(-128)},
		{"int32be", datatype.MustParse(`"H5T_STD_I32BE"`), Int(-123456)},
		{"uint64", datatype.MustParse(`"H5T_STD_U64LE"`), Uint(math.MaxUint64)},
		{"float64", datatype.MustParse(`"H5T_IEEE_F64LE"`), Float(3.25)},
		{"float64 whole", datatype.MustParse(`"H5T_IEEE_F64BE"`), Float(7)},
		{"float32", datatype.MustParse(`"H5T_IEEE_F32LE"`), Float(-0.5)},
		{"infinity", datatype.MustParse(`"H5T_IEEE_F64LE"`), Float(math.Inf(-1))},
		{"fixed string", datatype.NewFixedString(7, datatype.NullPad), String("Parting")},
		{"short fixed string", datatype.NewFixedString(7, datatype.SpacePad), String("sweet")},
		{"var string", datatype.NewVarString(datatype.UTF8), String("sorrow, ünïcode")},
		{"enum", datatype.MustParse(`{"class": "H5T_ENUM", "base": "H5T_STD_I8LE", "mapping": {"SOLID": 0, "GAS": 2}}`), Int(2)},
		{"open enum", datatype.MustParse(`{"class": "H5T_ENUM", "base": "H5T_STD_U8LE", "mapping": {"OFF": 0}}`), Uint(9)},
		{"object ref", datatype.MustParse(`"H5T_STD_REF_OBJ"`), ObjectRef{Path: "/groups/0e5a6c0b"}},
		{"null object ref", datatype.MustParse(`"H5T_STD_REF_OBJ"`), ObjectRef{}},
		{"point region ref", datatype.MustParse(`"H5T_STD_REF_DSETREG"`), RegionRef{
			Target: "ds2", Class: PointSelection,
			Points: [][]uint64{{0, 1}, {2, 11}, {1, 0}, {2, 4}},
		}},
		{"hyperslab region ref", datatype.MustParse(`"H5T_STD_REF_DSETREG"`), RegionRef{
			Target: "ds2", Class: HyperslabSelection,
			Blocks: []Block{{Start: []uint64{0, 0}, End: []uint64{0, 2}}, {Start: []uint64{2, 11}, End: []uint64{2, 13}}},
		}},
		{"null region ref", datatype.MustParse(`"H5T_STD_REF_DSETREG"`), RegionRef{}},
		{"vlen", datatype.MustParse(`{"class": "H5T_VLEN", "base": "H5T_STD_I32LE"}`), List{Int(1), Int(1), Int(2), Int(3), Int(5)}},
		{"empty vlen", datatype.MustParse(`{"class": "H5T_VLEN", "base": "H5T_STD_I32LE"}`), List{}},
		{"array", datatype.MustParse(`{"class": "H5T_ARRAY", "base": "H5T_STD_I64LE", "dims": [2, 3]}`),
			List{List{Int(0), Int(-2), Int(-4)}, List{Int(1), Int(3), Int(-8)}}},
		{"compound", datatype.MustParse(`{"class": "H5T_COMPOUND", "fields": [
			{"name": "hour", "type": "H5T_STD_I32LE"},
			{"name": "time", "type": {"class": "H5T_STRING", "length": 6, "strPad": "H5T_STR_NULLPAD"}},
			{"name": "temp", "type": "H5T_IEEE_F64LE"}]}`),
			List{Int(24), String("13:53"), Float(63.5)}},
		{"compound of array", datatype.NewCompound(
			datatype.Field{Name: "id", Type: datatype.NewInteger(2, false, datatype.BigEndian)},
			datatype.Field{Name: "samples", Type: datatype.NewArray(datatype.NewFloat(8, datatype.LittleEndian), 2, 2)}),
			List{Uint(7), List{List{Float(1.5), Float(2)}, List{Float(-3), Float(0.25)}}}},
		{"array of compound", datatype.NewArray(pointType, 3),
			List{List{Float(0), Float(1)}, List{Float(2.5), Float(-1)}, List{Float(4), Float(8)}}},
		{"variable compound", datatype.NewCompound(
			datatype.Field{Name: "name", Type: datatype.NewVarString(datatype.ASCII)},
			datatype.Field{Name: "refs", Type: datatype.MustParse(`{"class": "H5T_VLEN", "base": "H5T_STD_REF_OBJ"}`)}),
			List{String("links"), List{ObjectRef{Path: "/datasets/abc"}, ObjectRef{}}}},
	}
)

func TestRoundTrip(t *testing.T) {
	for _, tc := range roundTrips {
		wire, err := Encode(tc.v, tc.dt)
		if err != nil {
			t.Fatalf("%s: error encoding: %v\n", tc.name, err)
		}
		got, err := Decode(wire, tc.dt)
		if err != nil {
			t.Fatalf("%s: error decoding %v: %v\n", tc.name, wire, err)
		}
		if !Equal(got, tc.v) {
			t.Errorf("%s: decode(encode(v)) = %#v, expected %#v\n", tc.name, got, tc.v)
		}

		// Through JSON text as a request body would arrive.
		text, err := json.Marshal(wire)
		if err != nil {
			t.Fatalf("%s: error marshaling wire value: %v\n", tc.name, err)
		}
		got, err = Decode(wireJSON(t, string(text)), tc.dt)
		if err != nil {
			t.Fatalf("%s: error decoding JSON %s: %v\n", tc.name, string(text), err)
		}
		if !Equal(got, tc.v) {
			t.Errorf("%s: JSON round trip %s gave %#v, expected %#v\n", tc.name, string(text), got, tc.v)
		}
	}
}

func TestWireForms(t *testing.T) {
	f64 := datatype.MustParse(`"H5T_IEEE_F64LE"`)
	wire, _ := Encode(Float(2), f64)
	if b, _ := json.Marshal(wire); string(b) != "2.0" {
		t.Errorf("whole float should keep fractional form, got %s\n", string(b))
	}
	wire, _ = Encode(Float(math.NaN()), f64)
	if wire != "NaN" {
		t.Errorf("expected NaN string, got %v\n", wire)
	}
	v, err := Decode("Infinity", f64)
	if err != nil || !math.IsInf(float64(v.(Float)), 1) {
		t.Errorf("bad decode of Infinity: %v, %v\n", v, err)
	}

	i32 := datatype.MustParse(`"H5T_STD_I32LE"`)
	if v, err = Decode(json.Number("42.0"), i32); err != nil || v != Int(42) {
		t.Errorf("whole number 42.0 should decode to 42, got %v, %v\n", v, err)
	}
	wire, _ = Encode(Int(42), i32)
	if b, _ := json.Marshal(wire); string(b) != "42" {
		t.Errorf("bad integer wire form: %s\n", string(b))
	}

	cmpd := roundTrips[20].dt
	wire, _ = Encode(List{Int(24), String("13:53"), Float(63.5)}, cmpd)
	if b, _ := json.Marshal(wire); string(b) != `[24,"13:53",63.5]` {
		t.Errorf("compound should encode as an ordered list, got %s\n", string(b))
	}

	region := wireJSON(t, `{"select_type": "H5S_SEL_HYPERSLABS", "id": "ds2", "selection": [[[0, 0], [0, 2]], [[2, 11], [2, 13]]]}`)
	v, err = Decode(region, datatype.MustParse(`"H5T_STD_REF_DSETREG"`))
	if err != nil {
		t.Fatalf("error decoding region reference: %v\n", err)
	}
	ref := v.(RegionRef)
	if ref.Class != HyperslabSelection || len(ref.Blocks) != 2 || ref.Blocks[1].End[1] != 13 {
		t.Errorf("bad region reference: %+v\n", ref)
	}
}

func TestTruncation(t *testing.T) {
	dt := datatype.NewFixedString(4, datatype.Truncate)
	v, err := Decode("abcdefg", dt)
	if err != nil || v != String("abcd") {
		t.Errorf("truncating string type should cut to 4 bytes, got %v, %v\n", v, err)
	}
	v, err = Decode("abcé", datatype.NewFixedString(4, datatype.Truncate))
	if err == nil {
		t.Errorf("non-ASCII string should fail on ASCII type, got %v\n", v)
	}
	utf := datatype.NewFixedString(4, datatype.Truncate)
	utf.CharSet = datatype.UTF8
	if v, err = Decode("abcé", utf); err != nil || v != String("abc") {
		t.Errorf("truncation should not split a rune, got %q, %v\n", v, err)
	}
	wire, _ := Encode(String("abcdefg"), datatype.NewFixedString(3, datatype.NullTerm))
	if wire != "abc" {
		t.Errorf("fixed string encode should truncate to declared length, got %v\n", wire)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		dt   *datatype.Datatype
		wire string
		kind dsv.ErrorKind
	}{
		{"int8 overflow", datatype.MustParse(`"H5T_STD_I8LE"`), `128`, dsv.ValueOutOfRange},
		{"uint negative", datatype.MustParse(`"H5T_STD_U16LE"`), `-1`, dsv.ValueOutOfRange},
		{"uint16 overflow", datatype.MustParse(`"H5T_STD_U16LE"`), `65536`, dsv.ValueOutOfRange},
		{"int64 overflow", datatype.MustParse(`"H5T_STD_I64LE"`), `9223372036854775808`, dsv.ValueOutOfRange},
		{"float32 overflow", datatype.MustParse(`"H5T_IEEE_F32LE"`), `1e39`, dsv.ValueOutOfRange},
		{"fractional int", datatype.MustParse(`"H5T_STD_I32LE"`), `1.5`, dsv.TypeMismatch},
		{"string as int", datatype.MustParse(`"H5T_STD_I32LE"`), `"7"`, dsv.TypeMismatch},
		{"long string", datatype.NewFixedString(3, datatype.NullPad), `"abcd"`, dsv.StringTooLong},
		{"number as string", datatype.NewVarString(datatype.ASCII), `7`, dsv.TypeMismatch},
		{"array too short", datatype.NewArray(datatype.NewInteger(4, true, datatype.LittleEndian), 3, 5), `[[1,2,3,4,5],[1,2,3,4,5]]`, dsv.ShapeMismatch},
		{"array too shallow", datatype.NewArray(datatype.NewInteger(4, true, datatype.LittleEndian), 2, 2), `[1, 2]`, dsv.ShapeMismatch},
		{"compound field count", pointType, `[1.0]`, dsv.ShapeMismatch},
		{"compound as object", pointType, `{"x": 1.0, "y": 2.0}`, dsv.TypeMismatch},
		{"bad object ref", datatype.MustParse(`"H5T_STD_REF_OBJ"`), `"/links/abc"`, dsv.TypeMismatch},
		{"bad region class", datatype.MustParse(`"H5T_STD_REF_DSETREG"`), `{"select_type": "H5S_SEL_ALL", "id": "a", "selection": []}`, dsv.TypeMismatch},
		{"region ragged rank", datatype.MustParse(`"H5T_STD_REF_DSETREG"`), `{"select_type": "H5S_SEL_POINTS", "id": "a", "selection": [[1, 2], [3]]}`, dsv.ShapeMismatch},
		{"opaque", datatype.MustParse(`{"class": "H5T_OPAQUE", "size": 2}`), `"ab"`, dsv.UnsupportedEncoding},
	}
	for _, tc := range tests {
		_, err := Decode(wireJSON(t, tc.wire), tc.dt)
		if err == nil {
			t.Errorf("%s: expected error decoding %s\n", tc.name, tc.wire)
			continue
		}
		if kind := dsv.KindOf(err); kind != tc.kind {
			t.Errorf("%s: expected %s, got %s (%v)\n", tc.name, tc.kind, kind, err)
		}
	}

	opaque := datatype.MustParse(`{"class": "H5T_OPAQUE", "size": 2}`)
	if _, err := Encode(Opaque{1, 2}, opaque); !errors.Is(err, dsv.ErrUnsupportedEncoding) {
		t.Errorf("expected unsupported encoding for opaque encode, got %v\n", err)
	}
}

func TestCodecDepth(t *testing.T) {
	dt := datatype.MustParse(`{"class": "H5T_VLEN", "base": {"class": "H5T_VLEN", "base": "H5T_STD_I8LE"}}`)
	codec := Codec{MaxDepth: 2}
	if _, err := codec.Decode(wireJSON(t, `[[1]]`), dt); !errors.Is(err, dsv.ErrInvalidTypeDescriptor) {
		t.Errorf("expected depth bound failure, got %v\n", err)
	}
	codec.MaxDepth = 3
	if _, err := codec.Decode(wireJSON(t, `[[1], []]`), dt); err != nil {
		t.Errorf("unexpected error within depth bound: %v\n", err)
	}
}
