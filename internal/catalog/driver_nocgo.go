//go:build !cgo

package catalog

import (
	"fmt"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func dataSourceName(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)&_pragma=busy_timeout(5000)", path)
}
