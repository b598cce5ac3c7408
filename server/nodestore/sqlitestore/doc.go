// Package sqlitestore is a reference nodestore.DocumentStore backed by a
// single SQLite table. It exists to give the rest of this module something
// concrete to run against, and to exercise gc.SplitDocDelegate with a real
// store rather than a fake.
package sqlitestore
