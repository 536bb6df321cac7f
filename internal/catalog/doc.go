// Package catalog is the persistent store of per-file media records.
//
// Records are keyed by the absolute path of the original file. The catalog
// is backed by SQLite in WAL mode; the schema is managed with embedded goose
// migrations. Reads may run concurrently, writes are serialized behind a
// single write lock so that parallel extraction never interleaves partial
// record writes.
//
// Any I/O failure is returned as a *StoreError, which the worker pool treats
// as fatal to the run.
package catalog
