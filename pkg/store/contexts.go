package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/CTAG07/Quire/pkg/site"
)

var _ site.ContextStore = (*Store)(nil)

// ClearDependencies forgets every context lookup recorded for source.
func (s *Store) ClearDependencies(ctx context.Context, source string) error {
	if _, err := s.stmtClearCtxDeps.ExecContext(ctx, source); err != nil {
		return fmt.Errorf("could not clear context dependencies of %s: %w", source, err)
	}
	return nil
}

// AddDependency records that source looks up contexts named name with the
// given value. Recording the same lookup twice is a no-op.
func (s *Store) AddDependency(ctx context.Context, source, name, value string) error {
	if _, err := s.stmtAddCtxDep.ExecContext(ctx, source, name, value); err != nil {
		return fmt.Errorf("could not add context dependency %s=%s for %s: %w", name, value, source, err)
	}
	return nil
}

func (s *Store) GetContextDependencies(ctx context.Context, source string) ([]site.ContextRequest, error) {
	rows, err := s.stmtGetCtxDeps.QueryContext(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("could not get context dependencies of %s: %w", source, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var reqs []site.ContextRequest
	for rows.Next() {
		var r site.ContextRequest
		if err = rows.Scan(&r.Name, &r.Value); err != nil {
			return nil, fmt.Errorf("could not scan context dependency: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *Store) GetContextDependents(ctx context.Context, name, value string) ([]string, error) {
	return queryStrings(ctx, s.stmtGetCtxDependents, name, value)
}

// RemoveContext deletes every context published by source.
func (s *Store) RemoveContext(ctx context.Context, source string) error {
	if _, err := s.stmtRemoveContexts.ExecContext(ctx, source); err != nil {
		return fmt.Errorf("could not remove contexts of %s: %w", source, err)
	}
	return nil
}

// SetContext publishes name=value for source, replacing any earlier value of
// name from the same source.
func (s *Store) SetContext(ctx context.Context, source, name, value string) error {
	if _, err := s.stmtSetContext.ExecContext(ctx, source, name, value); err != nil {
		return fmt.Errorf("could not set context %s for %s: %w", name, source, err)
	}
	s.logger.Debug("Set context", "source", source, "name", name, "value", value)
	return nil
}

func (s *Store) GetContexts(ctx context.Context, name, value string) ([]site.Context, error) {
	return s.queryContexts(ctx, s.stmtGetContexts, name, value)
}

func (s *Store) GetSourceContexts(ctx context.Context, source string) ([]site.Context, error) {
	return s.queryContexts(ctx, s.stmtGetSourceContexts, source)
}

// ListContextNames returns the distinct names of all published contexts.
func (s *Store) ListContextNames(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.stmtListContextNames)
}

func (s *Store) queryContexts(ctx context.Context, stmt *sql.Stmt, args ...any) ([]site.Context, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query contexts: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var contexts []site.Context
	for rows.Next() {
		var c site.Context
		if err = rows.Scan(&c.Source, &c.Name, &c.Value); err != nil {
			return nil, fmt.Errorf("could not scan context: %w", err)
		}
		contexts = append(contexts, c)
	}
	return contexts, rows.Err()
}
