/*
Package server provides the HTTP interface to dataset values.

Datasets are created with a type descriptor and shape, get an id from the catalog,
and are then read and written through their value endpoint:

	POST   /datasets                 create {"type": ..., "shape": ...}
	GET    /datasets                 list dataset ids
	GET    /datasets/:id             dataset type and shape
	DELETE /datasets/:id             remove a dataset and its values
	GET    /datasets/:id/value       read, optionally with dimN_start/stop/step query
	POST   /datasets/:id/value       read points {"points": [...]}
	PUT    /datasets/:id/value       write {"value": ..., "start", "stop", "step" or "points"}
	GET    /about                    server and storage information

Configuration is read from a TOML file; see LoadConfig.
*/
package server
