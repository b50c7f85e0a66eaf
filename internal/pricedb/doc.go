// Package pricedb stores fuel price lookups in a local SQLite database so
// past results can be listed and compared.
//
// Each lookup is saved as one row in the searches table holding the raw
// list.php response. A trigger expands the response's stations array into
// the station_prices table, one row per station.
package pricedb
