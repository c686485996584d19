package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/metrics"
	"github.com/templui/driveindex/internal/model"
	"github.com/templui/driveindex/internal/timestamp"
)

type ModifiedOptions struct {
	Limit int
	// Cursor is the last modification tick already seen; zero starts from
	// the beginning.
	Cursor timestamp.UniqueTime
	// StopAt, when set, excludes records modified after it.
	StopAt *timestamp.UniqueTime
	Filter Filter
}

type ModifiedResult struct {
	Records []*model.MainIndexRecord
	Cursor  timestamp.UniqueTime
	HasMore bool
}

func (r *ModifiedResult) FileIDs() []fileid.ID {
	ids := make([]fileid.ID, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.FileID
	}
	return ids
}

// QueryModified returns records whose modified tick is greater than
// opts.Cursor, oldest modification first. Never-modified records are not
// returned. The returned cursor is the tick of the last record, or the input
// cursor for an empty page.
func (e *Engine) QueryModified(ctx context.Context, driveID uuid.UUID, opts ModifiedOptions) (*ModifiedResult, error) {
	started := time.Now()

	if opts.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, opts.Limit)
	}
	err := opts.Filter.Validate()
	if err != nil {
		return nil, err
	}

	p := &predicate{}
	p.add("m.modified > ?", int64(opts.Cursor))
	if opts.StopAt != nil {
		p.add("m.modified <= ?", int64(*opts.StopAt))
	}
	opts.Filter.apply(p)

	rows, more, err := e.selectRecords(ctx, driveID, p, "m.modified ASC, m.file_id ASC", opts.Limit)
	if err != nil {
		return nil, err
	}

	cursor := opts.Cursor
	if len(rows) > 0 {
		cursor = *rows[len(rows)-1].Modified
	}

	metrics.ObserveQuery(metrics.QueryModified, started, len(rows))
	return &ModifiedResult{Records: rows, Cursor: cursor, HasMore: more}, nil
}
