package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the tables used by the Store in the provided
// database. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaSources = `
CREATE TABLE IF NOT EXISTS sources (
    path TEXT PRIMARY KEY,
    size INTEGER NOT NULL DEFAULT 0,
    modified INTEGER NOT NULL DEFAULT 0
);
`
		schemaTargets = `
CREATE TABLE IF NOT EXISTS source_targets (
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    PRIMARY KEY (source, target)
);
`
		schemaDependencies = `
CREATE TABLE IF NOT EXISTS source_dependencies (
    source TEXT NOT NULL,
    dependency TEXT NOT NULL,
    PRIMARY KEY (source, dependency)
);
CREATE INDEX IF NOT EXISTS idx_source_dependencies_dependency ON source_dependencies (dependency);
`
		schemaContexts = `
CREATE TABLE IF NOT EXISTS contexts (
    source TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (source, name)
);
CREATE INDEX IF NOT EXISTS idx_contexts_name_value ON contexts (name, value);
`
		schemaContextDependencies = `
CREATE TABLE IF NOT EXISTS context_dependencies (
    source TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (source, name, value)
);
CREATE INDEX IF NOT EXISTS idx_context_dependencies_name_value ON context_dependencies (name, value);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaSources, schemaTargets, schemaDependencies, schemaContexts, schemaContextDependencies} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store is a SQLite-backed implementation of site.SourceStore and
// site.ContextStore. It holds prepared statements for every single-statement
// operation; multi-row replacements run in their own transactions.
type Store struct {
	db                    *sql.DB
	stmtGetSource         *sql.Stmt
	stmtSetSource         *sql.Stmt
	stmtListSources       *sql.Stmt
	stmtGetTargets        *sql.Stmt
	stmtGetDependencies   *sql.Stmt
	stmtGetDependents     *sql.Stmt
	stmtClearCtxDeps      *sql.Stmt
	stmtAddCtxDep         *sql.Stmt
	stmtGetCtxDeps        *sql.Stmt
	stmtGetCtxDependents  *sql.Stmt
	stmtRemoveContexts    *sql.Stmt
	stmtSetContext        *sql.Stmt
	stmtGetContexts       *sql.Stmt
	stmtGetSourceContexts *sql.Stmt
	stmtListContextNames  *sql.Stmt
	logger                *slog.Logger
}

// New creates a Store on db, which must already have the schema from
// SetupSchema. It pre-compiles all statements, returning an error if any
// preparation fails.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetSource, `SELECT size, modified FROM sources WHERE path = ?;`},
		{&s.stmtSetSource, `INSERT INTO sources (path, size, modified) VALUES (?, ?, ?) ON CONFLICT(path) DO UPDATE SET size = excluded.size, modified = excluded.modified;`},
		{&s.stmtListSources, `SELECT path, size, modified FROM sources ORDER BY path;`},
		{&s.stmtGetTargets, `SELECT target FROM source_targets WHERE source = ? ORDER BY target;`},
		{&s.stmtGetDependencies, `SELECT dependency FROM source_dependencies WHERE source = ? ORDER BY dependency;`},
		{&s.stmtGetDependents, `SELECT source FROM source_dependencies WHERE dependency = ? ORDER BY source;`},
		{&s.stmtClearCtxDeps, `DELETE FROM context_dependencies WHERE source = ?;`},
		{&s.stmtAddCtxDep, `INSERT OR IGNORE INTO context_dependencies (source, name, value) VALUES (?, ?, ?);`},
		{&s.stmtGetCtxDeps, `SELECT name, value FROM context_dependencies WHERE source = ? ORDER BY name, value;`},
		{&s.stmtGetCtxDependents, `SELECT source FROM context_dependencies WHERE name = ? AND value = ? ORDER BY source;`},
		{&s.stmtRemoveContexts, `DELETE FROM contexts WHERE source = ?;`},
		{&s.stmtSetContext, `INSERT INTO contexts (source, name, value) VALUES (?, ?, ?) ON CONFLICT(source, name) DO UPDATE SET value = excluded.value;`},
		{&s.stmtGetContexts, `SELECT source, name, value FROM contexts WHERE name = ? AND value = ? ORDER BY source;`},
		{&s.stmtGetSourceContexts, `SELECT source, name, value FROM contexts WHERE source = ? ORDER BY name;`},
		{&s.stmtListContextNames, `SELECT DISTINCT name FROM contexts ORDER BY name;`},
	}

	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.dst = stmt
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. The
// underlying database is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetSource, s.stmtSetSource, s.stmtListSources,
		s.stmtGetTargets, s.stmtGetDependencies, s.stmtGetDependents,
		s.stmtClearCtxDeps, s.stmtAddCtxDep, s.stmtGetCtxDeps, s.stmtGetCtxDependents,
		s.stmtRemoveContexts, s.stmtSetContext, s.stmtGetContexts, s.stmtGetSourceContexts,
		s.stmtListContextNames,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
