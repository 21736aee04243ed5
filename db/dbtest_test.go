package db_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/veritasvote/veritas-node/db"
	"github.com/veritasvote/veritas-node/db/inmemory"
	"github.com/veritasvote/veritas-node/db/metadb"
	"github.com/veritasvote/veritas-node/db/pebbledb"
	"github.com/veritasvote/veritas-node/db/prefixeddb"
)

// backends under test share one behavior suite
func openBackends(t *testing.T) map[string]db.Database {
	t.Helper()
	pebble, err := pebbledb.New(db.Options{Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	mem, err := inmemory.New(db.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := pebble.Close(); err != nil {
			t.Error(err)
		}
		if err := mem.Close(); err != nil {
			t.Error(err)
		}
	})
	return map[string]db.Database{"pebble": pebble, "inmemory": mem}
}

func TestWriteTxRoundTrip(t *testing.T) {
	for name, database := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)

			wTx := database.WriteTx()
			c.Assert(wTx.Set([]byte("a"), []byte("1")), qt.IsNil)
			c.Assert(wTx.Set([]byte("b"), []byte("2")), qt.IsNil)

			// uncommitted writes are visible inside the tx only
			got, err := wTx.Get([]byte("a"))
			c.Assert(err, qt.IsNil)
			c.Assert(string(got), qt.Equals, "1")
			_, err = database.Get([]byte("a"))
			c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

			c.Assert(wTx.Commit(), qt.IsNil)
			got, err = database.Get([]byte("b"))
			c.Assert(err, qt.IsNil)
			c.Assert(string(got), qt.Equals, "2")
		})
	}
}

func TestDiscardDropsWrites(t *testing.T) {
	for name, database := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)

			wTx := database.WriteTx()
			c.Assert(wTx.Set([]byte("x"), []byte("1")), qt.IsNil)
			wTx.Discard()

			_, err := database.Get([]byte("x"))
			c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
		})
	}
}

func TestDeleteInsideTx(t *testing.T) {
	for name, database := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)

			wTx := database.WriteTx()
			c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
			c.Assert(wTx.Commit(), qt.IsNil)

			wTx = database.WriteTx()
			c.Assert(wTx.Delete([]byte("k")), qt.IsNil)
			_, err := wTx.Get([]byte("k"))
			c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
			c.Assert(wTx.Commit(), qt.IsNil)

			_, err = database.Get([]byte("k"))
			c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
		})
	}
}

func TestIteratePrefix(t *testing.T) {
	for name, database := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)

			wTx := database.WriteTx()
			for _, k := range []string{"p/a", "p/b", "p/c", "q/a"} {
				c.Assert(wTx.Set([]byte(k), []byte("v")), qt.IsNil)
			}
			c.Assert(wTx.Commit(), qt.IsNil)

			var keys []string
			c.Assert(database.Iterate([]byte("p/"), func(k, _ []byte) bool {
				keys = append(keys, string(k))
				return true
			}), qt.IsNil)
			c.Assert(keys, qt.DeepEquals, []string{"p/a", "p/b", "p/c"})

			// early stop
			var count int
			c.Assert(database.Iterate([]byte("p/"), func(_, _ []byte) bool {
				count++
				return count < 2
			}), qt.IsNil)
			c.Assert(count, qt.Equals, 2)
		})
	}
}

func TestPrefixedNamespaces(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)

	first := prefixeddb.NewPrefixedDatabase(database, []byte("one/"))
	second := prefixeddb.NewPrefixedDatabase(database, []byte("two/"))

	wTx := first.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("first")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	wTx = second.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("second")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	got, err := first.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "first")
	got, err = second.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "second")

	// iteration sees stripped keys within the namespace only
	var keys []string
	c.Assert(prefixeddb.NewPrefixedReader(database, []byte("one/")).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"k"})
}

func TestPebblePersistsAcrossReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	database, err := pebbledb.New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("durable"), []byte("yes")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	reopened, err := pebbledb.New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	defer func() {
		c.Assert(reopened.Close(), qt.IsNil)
	}()
	got, err := reopened.Get([]byte("durable"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "yes")
}
