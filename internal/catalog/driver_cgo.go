//go:build cgo

package catalog

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

func dataSourceName(path string) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", path)
}
