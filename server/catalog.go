package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/twinj/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/janelia-flyem/dsvalue/dataset"
	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
)

// Catalog mints dataset ids and keeps loaded dataset metadata in memory.
type Catalog struct {
	engine *dataset.Engine

	// concurrent misses on the same id share one metadata load
	loads singleflight.Group

	mu       sync.RWMutex
	datasets map[string]*dataset.Dataset
}

// NewCatalog returns a catalog of the datasets held by an engine.
func NewCatalog(engine *dataset.Engine) *Catalog {
	return &Catalog{
		engine:   engine,
		datasets: make(map[string]*dataset.Dataset),
	}
}

// Create parses a type descriptor and shape and stores a new dataset.
func (c *Catalog) Create(typeDesc, shapeDesc json.RawMessage) (*dataset.Dataset, error) {
	config := c.engine.Config()
	dt, err := datatype.Parse(typeDesc, config.MaxTypeDepth)
	if err != nil {
		return nil, err
	}
	shape, err := dsv.ParseShape(shapeDesc)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%x", uuid.NewV4().Bytes())
	d, err := dataset.NewDataset(id, dt, shape, config)
	if err != nil {
		return nil, err
	}
	if err := c.engine.Create(d); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.datasets[id] = d
	c.mu.Unlock()
	dsv.Infof("Created dataset %s of type %s, shape %s\n", id, dt, shape)
	return d, nil
}

// Get returns the dataset with the given id.
func (c *Catalog) Get(id string) (*dataset.Dataset, error) {
	c.mu.RLock()
	d, found := c.datasets[id]
	c.mu.RUnlock()
	if found {
		return d, nil
	}
	v, err, _ := c.loads.Do(id, func() (interface{}, error) {
		d, err := c.engine.Get(id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.datasets[id] = d
		c.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dataset.Dataset), nil
}

// List returns the ids of all datasets in sorted order.
func (c *Catalog) List() ([]string, error) {
	datasets, err := c.engine.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(datasets))
	for i, d := range datasets {
		ids[i] = d.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a dataset and its values.
func (c *Catalog) Delete(id string) error {
	err := c.engine.Delete(id)
	c.mu.Lock()
	delete(c.datasets, id)
	c.mu.Unlock()
	return err
}

// Len returns the number of datasets loaded in memory.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.datasets)
}
