package sqlstore

import (
	"fmt"
	"strings"

	"github.com/xtxerr/playertrack/internal/constants"
)

// Dialect holds the per-backend SQL differences. Queries are otherwise
// identical across backends and use ? placeholders.
type Dialect struct {
	// Name is the backend name, one of the constants.Backend values.
	Name string

	// Driver is the database/sql driver name.
	Driver string

	quote func(string) string

	sampleSchema []string
	recordSchema []string
}

var dialects = map[string]Dialect{
	constants.BackendSQLite: {
		Name:   constants.BackendSQLite,
		Driver: "sqlite",
		quote:  doubleQuote,
		sampleSchema: []string{
			`CREATE TABLE IF NOT EXISTS pings ("timestamp" BIGINT NOT NULL, ip TEXT, "playerCount" INTEGER)`,
			`CREATE INDEX IF NOT EXISTS ip_index ON pings (ip, "playerCount")`,
			`CREATE INDEX IF NOT EXISTS timestamp_index ON pings ("timestamp")`,
		},
		recordSchema: []string{
			`CREATE TABLE IF NOT EXISTS players_record ("timestamp" BIGINT, ip TEXT NOT NULL PRIMARY KEY, "playerCount" INTEGER)`,
		},
	},
	constants.BackendDuckDB: {
		Name:   constants.BackendDuckDB,
		Driver: "duckdb",
		quote:  doubleQuote,
		sampleSchema: []string{
			`CREATE TABLE IF NOT EXISTS pings ("timestamp" BIGINT NOT NULL, ip VARCHAR, "playerCount" INTEGER)`,
			`CREATE INDEX IF NOT EXISTS ip_index ON pings (ip, "playerCount")`,
			`CREATE INDEX IF NOT EXISTS timestamp_index ON pings ("timestamp")`,
		},
		recordSchema: []string{
			`CREATE TABLE IF NOT EXISTS players_record ("timestamp" BIGINT, ip VARCHAR NOT NULL PRIMARY KEY, "playerCount" INTEGER)`,
		},
	},
	constants.BackendMySQL: {
		Name:   constants.BackendMySQL,
		Driver: "mysql",
		quote:  backQuote,
		sampleSchema: []string{
			"CREATE TABLE IF NOT EXISTS pings (`timestamp` BIGINT NOT NULL, ip VARCHAR(255), `playerCount` MEDIUMINT, " +
				"INDEX ip_index (ip, `playerCount`), INDEX timestamp_index (`timestamp`))",
		},
		recordSchema: []string{
			"CREATE TABLE IF NOT EXISTS players_record (ip VARCHAR(255) NOT NULL PRIMARY KEY, `timestamp` BIGINT, `playerCount` MEDIUMINT)",
		},
	},
}

// LookupDialect returns the dialect for a backend name.
func LookupDialect(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("no SQL dialect for backend %q", name)
	}
	return d, nil
}

func doubleQuote(s string) string { return `"` + s + `"` }

func backQuote(s string) string { return "`" + s + "`" }

// queries are rendered once per store.
type queries struct {
	queryRange   string
	getRecord    string
	getLegacy    string
	insertSample string
	insertRecord string
	updateRecord string
	deleteOlder  string
}

func (d Dialect) render() queries {
	ts, pc := d.quote("timestamp"), d.quote("playerCount")
	r := strings.NewReplacer("{ts}", ts, "{pc}", pc)

	return queries{
		queryRange:   r.Replace(`SELECT {ts}, ip, {pc} FROM pings WHERE {ts} >= ? AND {ts} <= ? ORDER BY {ts}`),
		getRecord:    r.Replace(`SELECT {pc}, {ts} FROM players_record WHERE ip = ?`),
		getLegacy:    r.Replace(`SELECT {pc}, {ts} FROM pings WHERE ip = ? AND {pc} IS NOT NULL ORDER BY {pc} DESC, {ts} ASC LIMIT 1`),
		insertSample: r.Replace(`INSERT INTO pings ({ts}, ip, {pc}) VALUES (?, ?, ?)`),
		insertRecord: r.Replace(`INSERT INTO players_record ({ts}, ip, {pc}) VALUES (?, ?, ?)`),
		updateRecord: r.Replace(`UPDATE players_record SET {ts} = ?, {pc} = ? WHERE ip = ?`),
		deleteOlder:  r.Replace(`DELETE FROM pings WHERE {ts} < ?`),
	}
}
