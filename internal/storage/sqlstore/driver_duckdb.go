//go:build cgo

package sqlstore

// go-duckdb is a cgo-only driver; it registers the "duckdb" driver when cgo is enabled.
import _ "github.com/marcboeker/go-duckdb"
