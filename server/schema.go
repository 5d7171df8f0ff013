package server

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/dsvalue/dsv"
)

const (
	boundsSchema = `{"oneOf": [
		{"type": "integer"},
		{"type": "array", "items": {"type": "integer"}}
	]}`

	createSchemaJSON = `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"type": ["string", "object"]},
			"shape": {"type": ["integer", "array", "object", "null"]}
		}
	}`

	writeSchemaJSON = `{
		"type": "object",
		"required": ["value"],
		"properties": {
			"type": {"type": ["string", "object"]},
			"shape": {"type": ["integer", "array", "object", "null"]},
			"start": ` + boundsSchema + `,
			"stop": ` + boundsSchema + `,
			"step": ` + boundsSchema + `,
			"points": {"type": "array"}
		}
	}`

	pointsSchemaJSON = `{
		"type": "object",
		"required": ["points"],
		"properties": {
			"points": {"type": "array"}
		}
	}`
)

var (
	createSchema = jsonschema.MustCompileString("create.json", createSchemaJSON)
	writeSchema  = jsonschema.MustCompileString("write.json", writeSchemaJSON)
	pointsSchema = jsonschema.MustCompileString("points.json", pointsSchemaJSON)
)

// decodeJSON decodes a request body with numbers kept exact.
func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// validatePayload checks a request body against a schema and then decodes it into v.
func validatePayload(sch *jsonschema.Schema, data []byte, v interface{}) error {
	var doc interface{}
	if err := decodeJSON(data, &doc); err != nil {
		return dsv.WrapError(dsv.TypeMismatch, err, "malformed JSON payload")
	}
	if err := sch.Validate(doc); err != nil {
		return dsv.WrapError(dsv.TypeMismatch, err, "payload does not match schema")
	}
	if err := decodeJSON(data, v); err != nil {
		return dsv.WrapError(dsv.TypeMismatch, err, "malformed payload")
	}
	return nil
}
