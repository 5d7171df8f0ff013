/*
Package dataset reads and writes the values of typed N-dimensional datasets.

A dataset's elements are addressed by row-major linear index and stored in chunks of
ChunkElements consecutive elements.  Each chunk is one key-value pair in a
storage.ChunkStore.  Dataset metadata is kept in the same store as a msgpack record.
*/
package dataset

import (
	"encoding/binary"
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
)

const (
	// DefaultChunkBytes is the target size of a chunk of fixed-size elements.
	DefaultChunkBytes = 64 * dsv.Kilo

	// DefaultVarChunkElements is the number of variable-size elements per chunk.
	DefaultVarChunkElements = 1024

	// DefaultMaxReadElements is the largest selection a single read returns.
	DefaultMaxReadElements = 64 * dsv.Mega
)

// Key classes used by this package.
const (
	metadataClass storage.KeyClass = 0x10
	chunkClass    storage.KeyClass = 0x11
)

// Dataset is the metadata needed to access values.
type Dataset struct {
	ID    string
	Type  *datatype.Datatype
	Shape dsv.Shape

	// ChunkElements is the number of consecutive elements held in one chunk.
	ChunkElements int64
}

// NewDataset sizes chunks for the given type using the engine settings.
func NewDataset(id string, dt *datatype.Datatype, shape dsv.Shape, config Config) (*Dataset, error) {
	if id == "" {
		return nil, fmt.Errorf("dataset requires an id")
	}
	if dt == nil {
		return nil, dsv.NewError(dsv.InvalidTypeDescriptor, "dataset %s has no type", id)
	}
	maxDepth := config.maxTypeDepth()
	if depth := dt.Depth(); depth > maxDepth {
		return nil, dsv.NewError(dsv.InvalidTypeDescriptor, "type depth %d exceeds maximum %d", depth, maxDepth)
	}
	for dim, extent := range shape {
		if extent < 0 {
			return nil, dsv.NewError(dsv.InvalidSelection, "dimension %d has negative extent %d", dim+1, extent)
		}
	}
	n, ok := shape.CheckedNumElements()
	if !ok {
		return nil, dsv.NewError(dsv.InvalidSelection, "shape %s has more elements than an int64 can count", shape)
	}
	if config.MaxElements > 0 && n > config.MaxElements {
		return nil, dsv.NewError(dsv.InvalidSelection, "shape %s has %d elements, more than the maximum %d", shape, n, config.MaxElements)
	}
	d := &Dataset{ID: id, Type: dt, Shape: shape}
	if dt.IsFixedSize() {
		d.ChunkElements = int64(config.chunkBytes() / dt.ElementByteSize())
	} else {
		d.ChunkElements = int64(config.varChunkElements())
	}
	if d.ChunkElements < 1 {
		d.ChunkElements = 1
	}
	return d, nil
}

func (d *Dataset) String() string {
	return fmt.Sprintf("dataset %s (%s, shape %s)", d.ID, d.Type.Class, d.Shape)
}

// NumChunks returns the number of chunks spanning the dataset.
func (d *Dataset) NumChunks() int64 {
	n := d.Shape.NumElements()
	if n == 0 {
		return 0
	}
	return 1 + (n-1)/d.ChunkElements
}

func metadataKey(id string) storage.Key {
	return storage.NewKey(metadataClass, []byte(id))
}

// chunkKey is the dataset id, a zero separator and the big-endian chunk number,
// so all chunks of a dataset form one key range.
func chunkKey(id string, chunk int64) storage.Key {
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(chunk))
	return storage.NewKey(chunkClass, []byte(id), []byte{0}, num[:])
}

func chunkRange(id string) (storage.Key, storage.Key) {
	begin := storage.NewKey(chunkClass, []byte(id), []byte{0})
	end := storage.NewKey(chunkClass, []byte(id), []byte{0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	return begin, end
}

// --- msgpack record ---

// MarshalMsg implements msgp.Marshaler.  The type is stored as its canonical
// descriptor so records stay readable if the in-memory model changes.
func (d *Dataset) MarshalMsg(b []byte) (o []byte, err error) {
	typeJSON, err := d.Type.MarshalJSON()
	if err != nil {
		return nil, err
	}
	o = msgp.Require(b, d.msgsize(len(typeJSON)))
	o = msgp.AppendMapHeader(o, 4)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendString(o, d.ID)
	o = msgp.AppendString(o, "type")
	o = msgp.AppendBytes(o, typeJSON)
	o = msgp.AppendString(o, "shape")
	o = msgp.AppendArrayHeader(o, uint32(len(d.Shape)))
	for _, extent := range d.Shape {
		o = msgp.AppendInt64(o, extent)
	}
	o = msgp.AppendString(o, "chunk")
	o = msgp.AppendInt64(o, d.ChunkElements)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (d *Dataset) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var fields uint32
	fields, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	var key []byte
	for fields > 0 {
		fields--
		key, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return
		}
		switch msgp.UnsafeString(key) {
		case "id":
			d.ID, bts, err = msgp.ReadStringBytes(bts)
		case "type":
			var typeJSON []byte
			typeJSON, bts, err = msgp.ReadBytesBytes(bts, nil)
			if err == nil {
				d.Type, err = datatype.Parse(typeJSON, datatype.DefaultMaxDepth)
			}
		case "shape":
			var rank uint32
			rank, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return
			}
			d.Shape = make(dsv.Shape, rank)
			for dim := range d.Shape {
				d.Shape[dim], bts, err = msgp.ReadInt64Bytes(bts)
				if err != nil {
					return
				}
			}
		case "chunk":
			d.ChunkElements, bts, err = msgp.ReadInt64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return
		}
	}
	if d.Type == nil || d.ChunkElements < 1 {
		err = fmt.Errorf("incomplete dataset record %q", d.ID)
		return
	}
	o = bts
	return
}

func (d *Dataset) msgsize(typeLen int) int {
	return msgp.MapHeaderSize + 4*msgp.StringPrefixSize + len("idtypeshapechunk") +
		msgp.StringPrefixSize + len(d.ID) + msgp.BytesPrefixSize + typeLen +
		msgp.ArrayHeaderSize + len(d.Shape)*msgp.Int64Size + msgp.Int64Size
}
