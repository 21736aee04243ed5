// Package metadb instantiates a db.Database by backend type name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/veritasvote/veritas-node/db"
	"github.com/veritasvote/veritas-node/db/inmemory"
	"github.com/veritasvote/veritas-node/db/pebbledb"
)

const (
	// TypePebble selects the persistent pebble backend.
	TypePebble = "pebble"
	// TypeInMemory selects the ephemeral map backend (tests only).
	TypeInMemory = "inmemory"
)

// New creates a database of the given type at the given path.
func New(typ, path string) (db.Database, error) {
	switch typ {
	case TypePebble:
		return pebbledb.New(db.Options{Path: path})
	case TypeInMemory:
		return inmemory.New(db.Options{})
	default:
		return nil, fmt.Errorf("unknown database type: %q", typ)
	}
}

// NewTest returns an in-memory database closed automatically when the test
// finishes.
func NewTest(tb testing.TB) db.Database {
	database, err := inmemory.New(db.Options{})
	if err != nil {
		tb.Fatalf("cannot create in-memory db: %v", err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Errorf("cannot close db: %v", err)
		}
	})
	return database
}
