package db

import (
	"strings"

	"github.com/teranos/reposcout/errors"
)

// ErrDatabaseClosed is returned when a run is recorded after the store closed.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err is ErrDatabaseClosed or the driver's
// own closed-database error, which only carries a message.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
