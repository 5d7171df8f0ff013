package dataset

import (
	"encoding/json"

	"github.com/janelia-flyem/dsvalue/datatype"
	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/selection"
)

// Payload is the body of a value write or a point read.  Bounds may be a single
// number for rank 1 datasets or a list with one number per dimension.
type Payload struct {
	Type   json.RawMessage `json:"type,omitempty"`
	Shape  json.RawMessage `json:"shape,omitempty"`
	Value  interface{}     `json:"value,omitempty"`
	Start  interface{}     `json:"start,omitempty"`
	Stop   interface{}     `json:"stop,omitempty"`
	Step   interface{}     `json:"step,omitempty"`
	Points interface{}     `json:"points,omitempty"`
}

// Selection resolves the payload bounds or points against a dataset.
func (p *Payload) Selection(d *Dataset) (selection.Selection, error) {
	return selection.Resolve(selection.ParamsFromPayload(p.Start, p.Stop, p.Step, p.Points), d.Shape)
}

// check verifies an optional type and shape in the payload against the dataset
// type and the shape of the selection.
func (p *Payload) check(d *Dataset, sel selection.Selection, maxDepth int) error {
	if len(p.Type) != 0 {
		dt, err := datatype.Parse(p.Type, maxDepth)
		if err != nil {
			return err
		}
		if !dt.Equal(d.Type) {
			return dsv.NewError(dsv.TypeMismatch, "payload type %s does not match dataset type %s", dt, d.Type)
		}
	}
	if len(p.Shape) != 0 {
		shape, err := dsv.ParseShape(p.Shape)
		if err != nil {
			return err
		}
		if !shape.Equal(sel.Shape()) {
			return dsv.NewError(dsv.ShapeMismatch, "payload shape %s does not match selection shape %s", shape, sel.Shape())
		}
	}
	return nil
}

// WritePayload writes the payload value into the selection it describes.
func (e *Engine) WritePayload(d *Dataset, p *Payload) error {
	if err := checkAccessible(d); err != nil {
		return err
	}
	sel, err := p.Selection(d)
	if err != nil {
		return err
	}
	if err := p.check(d, sel, e.config.maxTypeDepth()); err != nil {
		return err
	}
	return e.Write(d, sel, p.Value)
}

// ReadQuery reads the elements selected by query parameters.
func (e *Engine) ReadQuery(d *Dataset, params selection.Params) (interface{}, error) {
	if err := checkAccessible(d); err != nil {
		return nil, err
	}
	sel, err := selection.Resolve(params, d.Shape)
	if err != nil {
		return nil, err
	}
	return e.Read(d, sel)
}

// ReadPoints reads the listed points in order.
func (e *Engine) ReadPoints(d *Dataset, points interface{}) (interface{}, error) {
	if err := checkAccessible(d); err != nil {
		return nil, err
	}
	if points == nil {
		return nil, dsv.NewError(dsv.InvalidSelection, "point read requires a points list")
	}
	sel, err := selection.Resolve(selection.Params{selection.PointsKey: points}, d.Shape)
	if err != nil {
		return nil, err
	}
	return e.Read(d, sel)
}
