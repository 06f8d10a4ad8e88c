package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CTAG07/Quire/pkg/site"
)

var _ site.SourceStore = (*Store)(nil)

// GetSource returns the recorded state of path, or nil if it was never
// recorded.
func (s *Store) GetSource(ctx context.Context, path string) (*site.Source, error) {
	var size, modified int64
	err := s.stmtGetSource.QueryRowContext(ctx, path).Scan(&size, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not get source %s: %w", path, err)
	}
	return &site.Source{Path: path, Size: size, Modified: fromUnixNano(modified)}, nil
}

// SetSource inserts or replaces the recorded state of src.Path.
func (s *Store) SetSource(ctx context.Context, src site.Source) error {
	if _, err := s.stmtSetSource.ExecContext(ctx, src.Path, src.Size, toUnixNano(src.Modified)); err != nil {
		return fmt.Errorf("could not set source %s: %w", src.Path, err)
	}
	return nil
}

// RemoveSource deletes path together with its targets and dependencies.
func (s *Store) RemoveSource(ctx context.Context, path string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			`DELETE FROM source_targets WHERE source = ?;`,
			`DELETE FROM source_dependencies WHERE source = ?;`,
			`DELETE FROM sources WHERE path = ?;`,
		} {
			if _, err := tx.ExecContext(ctx, query, path); err != nil {
				return fmt.Errorf("could not remove source %s: %w", path, err)
			}
		}
		s.logger.Debug("Removed source", "path", path)
		return nil
	})
}

// ListSources returns every recorded source ordered by path.
func (s *Store) ListSources(ctx context.Context) ([]site.Source, error) {
	rows, err := s.stmtListSources.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list sources: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var sources []site.Source
	for rows.Next() {
		var src site.Source
		var modified int64
		if err = rows.Scan(&src.Path, &src.Size, &modified); err != nil {
			return nil, fmt.Errorf("could not scan source: %w", err)
		}
		src.Modified = fromUnixNano(modified)
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *Store) GetTargets(ctx context.Context, path string) ([]string, error) {
	return queryStrings(ctx, s.stmtGetTargets, path)
}

// SetTargets replaces the targets recorded for path.
func (s *Store) SetTargets(ctx context.Context, path string, targets []string) error {
	return s.replaceAll(ctx, path,
		`DELETE FROM source_targets WHERE source = ?;`,
		`INSERT OR IGNORE INTO source_targets (source, target) VALUES (?, ?);`,
		targets)
}

func (s *Store) GetDependencies(ctx context.Context, path string) ([]string, error) {
	return queryStrings(ctx, s.stmtGetDependencies, path)
}

// SetDependencies replaces the template dependencies recorded for path.
func (s *Store) SetDependencies(ctx context.Context, path string, dependencies []string) error {
	return s.replaceAll(ctx, path,
		`DELETE FROM source_dependencies WHERE source = ?;`,
		`INSERT OR IGNORE INTO source_dependencies (source, dependency) VALUES (?, ?);`,
		dependencies)
}

func (s *Store) GetDependents(ctx context.Context, path string) ([]string, error) {
	return queryStrings(ctx, s.stmtGetDependents, path)
}

func (s *Store) replaceAll(ctx context.Context, path, deleteQuery, insertQuery string, values []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteQuery, path); err != nil {
			return fmt.Errorf("could not clear rows for %s: %w", path, err)
		}
		if len(values) == 0 {
			return nil
		}
		insert, err := tx.PrepareContext(ctx, insertQuery)
		if err != nil {
			return fmt.Errorf("could not prepare insert: %w", err)
		}
		defer func(insert *sql.Stmt) {
			_ = insert.Close()
		}(insert)
		for _, v := range values {
			if _, err = insert.ExecContext(ctx, path, v); err != nil {
				return fmt.Errorf("could not insert %s for %s: %w", v, path, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

func queryStrings(ctx context.Context, stmt *sql.Stmt, args ...any) ([]string, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var out []string
	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// A zero time is stored as 0 so failed sources compare unequal to any real
// file on the next scan.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
