package dataset

import (
	"encoding/binary"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/value"
)

// chunk holds the packed elements of one chunk.  Fixed-size elements are kept in a
// single buffer, variable-size ones (esize 0) as separate blobs.
type chunk struct {
	dt    *datatype.Datatype
	esize int
	fixed []byte
	vars  [][]byte
}

// numChunkElements returns the element count of chunk c; the last chunk may be short.
func (d *Dataset) numChunkElements(c int64) int {
	n := d.Shape.NumElements() - c*d.ChunkElements
	if n > d.ChunkElements {
		n = d.ChunkElements
	}
	return int(n)
}

// zeroChunk returns a chunk of n unwritten elements.
func zeroChunk(dt *datatype.Datatype, n int) (*chunk, error) {
	zero, err := value.Pack(nil, value.Zero(dt), dt)
	if err != nil {
		return nil, err
	}
	c := &chunk{dt: dt}
	if dt.IsFixedSize() {
		c.esize = len(zero)
		c.fixed = make([]byte, 0, n*len(zero))
		for i := 0; i < n; i++ {
			c.fixed = append(c.fixed, zero...)
		}
	} else {
		c.vars = make([][]byte, n)
		for i := range c.vars {
			c.vars[i] = zero
		}
	}
	return c, nil
}

// parseChunk interprets uncompressed chunk data holding n elements.
func parseChunk(dt *datatype.Datatype, data []byte, n int) (*chunk, error) {
	c := &chunk{dt: dt}
	if dt.IsFixedSize() {
		c.esize = dt.ElementByteSize()
		if len(data) != n*c.esize {
			return nil, dsv.NewError(dsv.StorageFault, "chunk has %d bytes, expected %d elements of %d bytes", len(data), n, c.esize)
		}
		c.fixed = data
		return c, nil
	}
	c.vars = make([][]byte, n)
	for i := range c.vars {
		size, read := binary.Uvarint(data)
		if read <= 0 || uint64(len(data)-read) < size {
			return nil, dsv.NewError(dsv.StorageFault, "variable chunk truncated at element %d of %d", i, n)
		}
		data = data[read:]
		c.vars[i] = data[:size:size]
		data = data[size:]
	}
	if len(data) != 0 {
		return nil, dsv.NewError(dsv.StorageFault, "variable chunk has %d trailing bytes", len(data))
	}
	return c, nil
}

func (c *chunk) element(i int) []byte {
	if c.esize == 0 {
		return c.vars[i]
	}
	return c.fixed[i*c.esize : (i+1)*c.esize]
}

func (c *chunk) get(i int) (value.Value, error) {
	v, _, err := value.Unpack(c.element(i), c.dt)
	return v, err
}

// set replaces element i with packed bytes.  The chunk buffer must not be shared
// with the store.
func (c *chunk) set(i int, packed []byte) {
	if c.esize == 0 {
		c.vars[i] = packed
		return
	}
	copy(c.fixed[i*c.esize:], packed)
}

func (c *chunk) bytes() []byte {
	if c.esize > 0 {
		return c.fixed
	}
	size := 0
	for _, blob := range c.vars {
		size += binary.MaxVarintLen64 + len(blob)
	}
	data := make([]byte, 0, size)
	for _, blob := range c.vars {
		data = binary.AppendUvarint(data, uint64(len(blob)))
		data = append(data, blob...)
	}
	return data
}
