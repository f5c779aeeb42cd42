package ledger

import (
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect captures the per-backend differences the store cares about.
type dialect struct {
	name         string
	driverName   string
	schema       string
	numbered     bool
	tableExists  string
	pragmas      []string
	maxOpenConns int
}

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case "sqlite":
		return dialect{
			name:         "sqlite",
			driverName:   "sqlite",
			schema:       sqliteSchema,
			tableExists:  "SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?",
			maxOpenConns: 1,
			pragmas: []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
			},
		}, true
	case "postgres":
		return dialect{
			name:        "postgres",
			driverName:  "postgres",
			schema:      postgresSchema,
			numbered:    true,
			tableExists: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
		}, true
	case "mysql":
		return dialect{
			name:        "mysql",
			driverName:  "mysql",
			schema:      mysqlSchema,
			tableExists: "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		}, true
	default:
		return dialect{}, false
	}
}

// rebind rewrites ? placeholders into $1, $2, ... for numbered dialects.
// Queries in this package never contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// statements splits a schema script into individual statements so drivers
// without multi-statement support can execute it.
func statements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		lines := strings.Split(part, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			kept = append(kept, line)
		}
		stmt := strings.TrimSpace(strings.Join(kept, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
