// Package query answers the two read patterns of a drive: time-ordered batch
// pagination with stop boundaries (QueryBatch) and incremental sync by
// modification tick (QueryModified). It only reads; writers go through the
// repository package.
package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/db"
	"github.com/templui/driveindex/internal/model"
	"github.com/templui/driveindex/internal/repository"
)

// ErrInvalidArgument is returned for malformed options or cursors.
var ErrInvalidArgument = repository.ErrInvalidArgument

// Engine runs queries against a pool or an open transaction.
type Engine struct {
	db db.Ext
}

func NewEngine(ext db.Ext) *Engine {
	return &Engine{db: ext}
}

// WithTx returns an engine reading through tx, so a unit of work sees its
// own uncommitted writes.
func (e *Engine) WithTx(tx *sqlx.Tx) *Engine {
	return &Engine{db: tx}
}

// selectRecords runs a main_index query built from p. limit+1 rows are
// requested; more reports whether the extra row was present.
func (e *Engine) selectRecords(ctx context.Context, driveID uuid.UUID, p *predicate, orderBy string, limit int) ([]*model.MainIndexRecord, bool, error) {
	where := &predicate{}
	where.add("m.drive_id = ?", driveID)
	where.clauses = append(where.clauses, p.clauses...)
	where.args = append(where.args, p.args...)
	if p.err != nil {
		return nil, false, fmt.Errorf("failed to build query: %w", p.err)
	}

	query := fmt.Sprintf(`SELECT %s FROM main_index m WHERE %s ORDER BY %s LIMIT %d`,
		repository.SelectColumns("m"), where.sql(), orderBy, limit+1)

	records := []*model.MainIndexRecord{}
	err := sqlx.SelectContext(ctx, e.db, &records, e.db.Rebind(query), where.args...)
	if err != nil {
		return nil, false, err
	}

	more := len(records) > limit
	if more {
		records = records[:limit]
	}
	return records, more, nil
}
