package dataset

import (
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/selection"
	"github.com/janelia-flyem/dsvalue/storage"
	"github.com/janelia-flyem/dsvalue/value"
)

// Config holds engine settings.  Zero fields take the package defaults.
type Config struct {
	MaxTypeDepth     int
	ChunkBytes       int
	VarChunkElements int

	// MaxElements bounds the element count of a new dataset.  Zero allows any
	// shape whose element count fits in an int64.
	MaxElements int64

	// MaxReadElements bounds the number of elements returned by one read.
	MaxReadElements int64

	Compression dsv.Compression
	Checksum    dsv.Checksum
}

func (c Config) maxTypeDepth() int {
	if c.MaxTypeDepth <= 0 {
		return datatype.DefaultMaxDepth
	}
	return c.MaxTypeDepth
}

func (c Config) chunkBytes() int {
	if c.ChunkBytes <= 0 {
		return DefaultChunkBytes
	}
	return c.ChunkBytes
}

func (c Config) maxReadElements() int64 {
	if c.MaxReadElements <= 0 {
		return DefaultMaxReadElements
	}
	return c.MaxReadElements
}

func (c Config) varChunkElements() int {
	if c.VarChunkElements <= 0 {
		return DefaultVarChunkElements
	}
	return c.VarChunkElements
}

// Engine reads and writes dataset values in a store.  It is safe for concurrent use.
// Writes to a dataset exclude reads of it only while chunks are fetched and committed.
type Engine struct {
	store  storage.ChunkStore
	codec  value.Codec
	config Config

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewEngine returns an engine over the given store.
func NewEngine(store storage.ChunkStore, config Config) *Engine {
	return &Engine{
		store:  store,
		codec:  value.Codec{MaxDepth: config.maxTypeDepth()},
		config: config,
		locks:  make(map[string]*sync.RWMutex),
	}
}

// Config returns the engine settings.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) lock(id string) *sync.RWMutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, found := e.locks[id]
	if !found {
		l = new(sync.RWMutex)
		e.locks[id] = l
	}
	return l
}

func storageFault(err error, format string, args ...interface{}) error {
	if _, ok := err.(*dsv.Error); ok {
		return err
	}
	return dsv.WrapError(dsv.StorageFault, err, format, args...)
}

func checkAccessible(d *Dataset) error {
	if d.Type.ContainsOpaque() {
		return dsv.NewError(dsv.NotImplemented, "values of opaque type are not supported for %s", d.ID)
	}
	return nil
}

// --- Metadata ---

// Create stores a new dataset record.  No chunks are written, so every element
// starts out as the zero value of the type.
func (e *Engine) Create(d *Dataset) error {
	data, err := d.MarshalMsg(nil)
	if err != nil {
		return err
	}
	if err := e.store.Put(metadataKey(d.ID), data); err != nil {
		return storageFault(err, "storing metadata for %s", d.ID)
	}
	dsv.Debugf("Created %s with %d elements per chunk\n", d, d.ChunkElements)
	return nil
}

// Get loads a dataset record.
func (e *Engine) Get(id string) (*Dataset, error) {
	data, err := e.store.Get(metadataKey(id))
	if err != nil {
		return nil, storageFault(err, "loading metadata for %s", id)
	}
	if data == nil {
		return nil, dsv.NewError(dsv.NotFound, "no dataset with id %q", id)
	}
	d := new(Dataset)
	if _, err := d.UnmarshalMsg(data); err != nil {
		return nil, dsv.WrapError(dsv.StorageFault, err, "bad metadata record for %s", id)
	}
	return d, nil
}

// List returns all dataset records in id order.
func (e *Engine) List() ([]*Dataset, error) {
	kvs, err := e.store.GetRange(storage.MinKey(metadataClass), storage.MaxKey(metadataClass))
	if err != nil {
		return nil, storageFault(err, "listing datasets")
	}
	datasets := make([]*Dataset, 0, len(kvs))
	for _, kv := range kvs {
		d := new(Dataset)
		if _, err := d.UnmarshalMsg(kv.V); err != nil {
			return nil, dsv.WrapError(dsv.StorageFault, err, "bad metadata record at key %s", kv.K)
		}
		datasets = append(datasets, d)
	}
	return datasets, nil
}

// Delete removes a dataset record and all its chunks.
func (e *Engine) Delete(id string) error {
	l := e.lock(id)
	l.Lock()
	defer l.Unlock()

	found, err := e.store.Exists(metadataKey(id))
	if err != nil {
		return storageFault(err, "checking dataset %s", id)
	}
	if !found {
		return dsv.NewError(dsv.NotFound, "no dataset with id %q", id)
	}
	begin, end := chunkRange(id)
	if err := e.store.DeleteRange(begin, end); err != nil {
		return storageFault(err, "deleting chunks of %s", id)
	}
	if err := e.store.Delete(metadataKey(id)); err != nil {
		return storageFault(err, "deleting metadata of %s", id)
	}
	return nil
}

// --- Values ---

// elementIndices returns the linear index of each selected element in selection
// order along with the sorted set of chunks touched.
func (d *Dataset) elementIndices(sel selection.Selection) ([]int64, []int64) {
	var indices []int64
	sel.Iterate(func(coord []int64) error {
		indices = append(indices, d.Shape.Index(coord))
		return nil
	})
	seen := make(map[int64]struct{})
	var chunks []int64
	for _, idx := range indices {
		c := idx / d.ChunkElements
		if _, found := seen[c]; !found {
			seen[c] = struct{}{}
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i] < chunks[j] })
	return indices, chunks
}

// fetch reads the given chunks.  Unwritten chunks are returned as nil.
func (e *Engine) fetch(d *Dataset, chunks []int64) (map[int64][]byte, int, error) {
	data := make(map[int64][]byte, len(chunks))
	var stored int
	for _, c := range chunks {
		s, err := e.store.Get(chunkKey(d.ID, c))
		if err != nil {
			return nil, 0, storageFault(err, "reading chunk %d of %s", c, d.ID)
		}
		if s == nil {
			continue
		}
		stored += len(s)
		if data[c], _, err = dsv.DeserializeData(s, true); err != nil {
			return nil, 0, dsv.WrapError(dsv.StorageFault, err, "chunk %d of %s", c, d.ID)
		}
	}
	return data, stored, nil
}

// Read returns the wire value of the selected elements.  A nil selection reads the
// whole dataset.  A hyperslab gives nested lists one level per dimension, or a bare
// value for a scalar dataset.  A point list gives a flat list in point order.
func (e *Engine) Read(d *Dataset, sel selection.Selection) (interface{}, error) {
	if err := checkAccessible(d); err != nil {
		return nil, err
	}
	if sel == nil {
		sel = selection.All(d.Shape)
	}
	if n, limit := sel.NumElements(), e.config.maxReadElements(); n > limit {
		return nil, dsv.NewError(dsv.InvalidSelection, "selection of %d elements exceeds read limit of %d", n, limit)
	}
	timedLog := dsv.NewTimeLog()
	indices, chunks := d.elementIndices(sel)

	l := e.lock(d.ID)
	l.RLock()
	data, stored, err := e.fetch(d, chunks)
	l.RUnlock()
	if err != nil {
		return nil, err
	}

	parsed := make(map[int64]*chunk, len(chunks))
	for _, c := range chunks {
		n := d.numChunkElements(c)
		var err error
		if data[c] == nil {
			parsed[c], err = zeroChunk(d.Type, n)
		} else {
			parsed[c], err = parseChunk(d.Type, data[c], n)
		}
		if err != nil {
			return nil, storageFault(err, "chunk %d of %s", c, d.ID)
		}
	}

	flat := make([]interface{}, len(indices))
	for i, idx := range indices {
		c := idx / d.ChunkElements
		v, err := parsed[c].get(int(idx % d.ChunkElements))
		if err != nil {
			return nil, storageFault(err, "element %d of %s", idx, d.ID)
		}
		if flat[i], err = e.codec.Encode(v, d.Type); err != nil {
			return nil, err
		}
	}
	timedLog.Debugf("Read %d elements of %s from %d chunks (%s stored)", len(indices), d.ID, len(chunks), humanize.Bytes(uint64(stored)))

	if sel.IsPoints() {
		return flat, nil
	}
	return nest(flat, sel.Shape()), nil
}

// Write stores a wire value into the selected elements.  A nil selection writes the
// whole dataset.  The wire value must have exactly the shape of the selection.
// Every element is decoded before storage is touched and all chunks are committed
// in one batch, so a failed write changes nothing.
func (e *Engine) Write(d *Dataset, sel selection.Selection, wire interface{}) error {
	if err := checkAccessible(d); err != nil {
		return err
	}
	if sel == nil {
		sel = selection.All(d.Shape)
	}
	// Not pre-sized: the wire value's lengths are checked as it is walked.
	flat, err := flatten(wire, sel.Shape(), nil)
	if err != nil {
		return err
	}
	packed := make([][]byte, len(flat))
	for i, w := range flat {
		v, err := e.codec.Decode(w, d.Type)
		if err != nil {
			return err
		}
		if packed[i], err = value.Pack(nil, v, d.Type); err != nil {
			return err
		}
	}
	if len(packed) == 0 {
		return nil
	}
	timedLog := dsv.NewTimeLog()
	indices, chunks := d.elementIndices(sel)

	l := e.lock(d.ID)
	l.Lock()
	defer l.Unlock()

	// The dataset may have been deleted while waiting for the lock.
	found, err := e.store.Exists(metadataKey(d.ID))
	if err != nil {
		return storageFault(err, "checking dataset %s", d.ID)
	}
	if !found {
		return dsv.NewError(dsv.NotFound, "no dataset with id %q", d.ID)
	}
	data, _, err := e.fetch(d, chunks)
	if err != nil {
		return err
	}
	parsed := make(map[int64]*chunk, len(chunks))
	for _, c := range chunks {
		n := d.numChunkElements(c)
		var err error
		if data[c] == nil {
			parsed[c], err = zeroChunk(d.Type, n)
		} else {
			parsed[c], err = parseChunk(d.Type, append([]byte(nil), data[c]...), n)
		}
		if err != nil {
			return storageFault(err, "chunk %d of %s", c, d.ID)
		}
	}
	for i, idx := range indices {
		parsed[idx/d.ChunkElements].set(int(idx%d.ChunkElements), packed[i])
	}

	batch := e.store.NewBatch()
	var written int
	for _, c := range chunks {
		s, err := dsv.SerializeData(parsed[c].bytes(), e.config.Compression, e.config.Checksum)
		if err != nil {
			return storageFault(err, "serializing chunk %d of %s", c, d.ID)
		}
		written += len(s)
		batch.Put(chunkKey(d.ID, c), s)
	}
	if err := batch.Commit(); err != nil {
		return storageFault(err, "committing %d chunks of %s", len(chunks), d.ID)
	}
	timedLog.Debugf("Wrote %d elements of %s into %d chunks (%s stored)", len(indices), d.ID, len(chunks), humanize.Bytes(uint64(written)))
	return nil
}

// nest arranges row-major values into nested lists of the given shape.
func nest(flat []interface{}, shape dsv.Shape) interface{} {
	if len(shape) == 0 {
		return flat[0]
	}
	return nestDim(flat, shape)
}

func nestDim(flat []interface{}, shape dsv.Shape) []interface{} {
	out := make([]interface{}, shape[0])
	if len(shape) == 1 {
		copy(out, flat)
		return out
	}
	stride := shape[1:].NumElements()
	for i := range out {
		out[i] = nestDim(flat[int64(i)*stride:int64(i+1)*stride], shape[1:])
	}
	return out
}

// flatten appends the leaves of a nested list of the given shape to out in row-major order.
func flatten(wire interface{}, shape dsv.Shape, out []interface{}) ([]interface{}, error) {
	if len(shape) == 0 {
		return append(out, wire), nil
	}
	list, ok := wire.([]interface{})
	if !ok {
		return nil, dsv.NewError(dsv.ShapeMismatch, "expected a list of %d values, got %T", shape[0], wire)
	}
	if int64(len(list)) != shape[0] {
		return nil, dsv.NewError(dsv.ShapeMismatch, "expected a list of %d values, got %d", shape[0], len(list))
	}
	var err error
	for _, item := range list {
		if out, err = flatten(item, shape[1:], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
