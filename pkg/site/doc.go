/*
Package site is the build host for Quire. It scans a source tree, decides which
files need rebuilding, and hands each one to a pluggable Processor that turns
it into one or more files under the build root.

The host owns the bookkeeping processors rely on: source stats, output targets,
template dependencies, and named contexts that let one page look up metadata
published by other pages. Storage is abstracted behind SourceStore and
ContextStore so the same build logic runs against the SQLite store in
pkg/store or an in-memory fake in tests.
*/
package site
