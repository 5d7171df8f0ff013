/*
	Package dsv provides types, constants, and functions that have no other dependencies
	and can be used by all packages within dsvalue.  This includes logging, structured
	errors, configuration maps, dataset shapes, and the serialization format used for
	stored chunks.
*/
package dsv
