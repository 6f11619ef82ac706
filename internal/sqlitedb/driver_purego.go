//go:build !cgo_sqlite

package sqlitedb

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"

	codeError = sqlite3.SQLITE_ERROR
)

// dsn returns the data source name for path with the connection settings
// every database uses.
func dsn(path string, busyTimeoutMS int) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// errorCode returns the primary SQLite result code carried by err.
func errorCode(err error) (int, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code() & 0xff, true
}

// engineMessage strips the driver decoration, "SQL logic error: msg (1)",
// down to sqlite3_errmsg.
func engineMessage(err error) string {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err.Error()
	}
	msg := strings.TrimSuffix(se.Error(), fmt.Sprintf(" (%d)", se.Code()))
	if _, after, ok := strings.Cut(msg, ": "); ok {
		return after
	}
	return msg
}
