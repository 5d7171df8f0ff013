/*
Package datatype describes the schema of a single dataset element.

A Datatype is a tree: atomic integers and floats, fixed and variable length strings,
and references are leaves, while compound, array, enum and variable-length sequence
types nest other Datatypes.  Type descriptors arrive as JSON, either a predefined
name such as

	"H5T_STD_I32LE"

or an object keyed by class:

	{
		"class": "H5T_COMPOUND",
		"fields": [
			{"name": "temp", "type": "H5T_IEEE_F32LE"},
			{"name": "readings", "type": {"class": "H5T_ARRAY", "base": "H5T_STD_I16BE", "dims": [3, 5]}}
		]
	}

Parse validates a descriptor into a Datatype and MarshalJSON returns the canonical form.
*/
package datatype
