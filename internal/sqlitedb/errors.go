package sqlitedb

import (
	"strings"
)

// unknownColumnPhrases are the sqlite3_errmsg texts for a column the table
// lacks: the first from INSERT, the second from UPDATE.
var unknownColumnPhrases = []string{"has no column named", "no such column"}

// IsUnknownColumn reports whether err is SQLite rejecting a statement because
// it names a column the table does not have.
//
// When the driver exposes a result code it must be SQLITE_ERROR; the message
// text then decides. Errors without a code fall back to the text alone.
func IsUnknownColumn(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := errorCode(err); ok && code != codeError {
		return false
	}
	msg := engineMessage(err)
	for _, p := range unknownColumnPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// HasCode reports whether err carries a driver result code.
func HasCode(err error) bool {
	_, ok := errorCode(err)
	return ok
}

// EngineMessage returns SQLite's own diagnostic for err, without the driver's
// decoration. Errors that did not come from SQLite are returned as is.
func EngineMessage(err error) string {
	return engineMessage(err)
}
