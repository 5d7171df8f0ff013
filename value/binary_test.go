package value

import (
	"bytes"
	"testing"

	"github.com/janelia-flyem/dsvalue/datatype"
)

func TestPackRoundTrip(t *testing.T) {
	for _, tc := range roundTrips {
		b, err := Pack(nil, tc.v, tc.dt)
		if err != nil {
			t.Fatalf("%s: error packing: %v\n", tc.name, err)
		}
		if tc.dt.IsFixedSize() && len(b) != tc.dt.ElementByteSize() {
			t.Errorf("%s: packed %d bytes, expected %d\n", tc.name, len(b), tc.dt.ElementByteSize())
		}
		// Trailing bytes belong to the next element and must not be consumed.
		got, n, err := Unpack(append(b, 0xFF, 0xFF), tc.dt)
		if err != nil {
			t.Fatalf("%s: error unpacking: %v\n", tc.name, err)
		}
		if n != len(b) {
			t.Errorf("%s: unpack consumed %d bytes, expected %d\n", tc.name, n, len(b))
		}
		if !Equal(got, tc.v) {
			t.Errorf("%s: unpack(pack(v)) = %#v, expected %#v\n", tc.name, got, tc.v)
		}
	}
}

func TestPackLayout(t *testing.T) {
	b, _ := Pack(nil, Int(1), datatype.NewInteger(4, true, datatype.BigEndian))
	if !bytes.Equal(b, []byte{0, 0, 0, 1}) {
		t.Errorf("bad big endian int32: %v\n", b)
	}
	b, _ = Pack(nil, Int(-2), datatype.NewInteger(2, true, datatype.LittleEndian))
	if !bytes.Equal(b, []byte{0xFE, 0xFF}) {
		t.Errorf("bad little endian int16: %v\n", b)
	}
	b, _ = Pack(nil, String("ab"), datatype.NewFixedString(4, datatype.SpacePad))
	if string(b) != "ab  " {
		t.Errorf("bad space padded string: %q\n", b)
	}

	offsets := datatype.MustParse(`{"class": "H5T_COMPOUND", "fields": [
		{"name": "a", "type": "H5T_STD_U8LE", "offset": 0},
		{"name": "b", "type": "H5T_STD_U16LE", "offset": 2}]}`)
	b, _ = Pack(nil, List{Uint(1), Uint(0x0302)}, offsets)
	if !bytes.Equal(b, []byte{1, 0, 2, 3}) {
		t.Errorf("compound fields not placed at their offsets: %v\n", b)
	}
}

func TestZero(t *testing.T) {
	for _, tc := range roundTrips {
		if !tc.dt.IsFixedSize() {
			continue
		}
		got, _, err := Unpack(make([]byte, tc.dt.ElementByteSize()), tc.dt)
		if err != nil {
			t.Fatalf("%s: error unpacking zero bytes: %v\n", tc.name, err)
		}
		if !Equal(got, Zero(tc.dt)) {
			t.Errorf("%s: zero bytes unpack to %#v, Zero is %#v\n", tc.name, got, Zero(tc.dt))
		}
	}
	if _, _, err := Unpack([]byte{1, 2}, datatype.NewInteger(4, true, datatype.LittleEndian)); err == nil {
		t.Errorf("expected error unpacking truncated int32\n")
	}
	if _, _, err := Unpack([]byte{10, 'a'}, datatype.NewVarString(datatype.ASCII)); err == nil {
		t.Errorf("expected error unpacking truncated string\n")
	}
}
