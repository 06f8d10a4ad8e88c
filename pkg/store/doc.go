/*
Package store persists Quire's build bookkeeping in SQLite: source stats, the
targets generated from each source, template dependencies, published contexts,
and context lookups. A Store satisfies both site.SourceStore and
site.ContextStore, so one database backs the whole build.

The package only uses database/sql; callers pick the driver. cmd/main opens
modernc.org/sqlite by default and github.com/mattn/go-sqlite3 when built with
the cgo_sqlite tag.
*/
package store
