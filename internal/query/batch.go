package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/metrics"
	"github.com/templui/driveindex/internal/model"
)

// Direction of a batch scan.
type Direction int

const (
	NewestFirst Direction = iota
	OldestFirst
)

// Ordering selects the sort key of a batch scan.
type Ordering int

const (
	// ByFileID sorts by the time-embedding file id.
	ByFileID Ordering = iota
	// ByUserDate sorts by user_date with the file id as tie-break.
	ByUserDate
)

// StartPoint replaces the cursor for a single call: rows strictly beyond it
// in the scan direction are returned. It does not have to name an existing
// record. Exactly one of FileID and Time should be set.
type StartPoint struct {
	FileID *fileid.ID
	Time   *time.Time
}

type BatchOptions struct {
	Limit      int
	Cursor     Cursor
	Direction  Direction
	Ordering   Ordering
	StartPoint *StartPoint
	Filter     Filter
}

type BatchResult struct {
	Records []*model.MainIndexRecord
	Cursor  Cursor
	HasMore bool
}

// FileIDs returns the ids of the page in result order.
func (r *BatchResult) FileIDs() []fileid.ID {
	ids := make([]fileid.ID, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.FileID
	}
	return ids
}

// QueryBatch returns up to opts.Limit records of a drive and the cursor for
// the next call.
//
// Newest-first sequences scan downwards from the top until they reach
// StopAtBoundary. The newest row seen by a sequence is kept in
// NextBoundaryCursor; once the sequence is drained it becomes the new stop
// boundary and the next sequence starts from the top again, returning only
// rows written since. If a continuation page comes up short at the boundary,
// one extra pass from the top tops it up with rows written meanwhile.
//
// Oldest-first sequences scan upwards from the paging cursor. When drained
// the last delivered position is pinned in StopAtBoundary and later calls
// return rows beyond it.
func (e *Engine) QueryBatch(ctx context.Context, driveID uuid.UUID, opts BatchOptions) (*BatchResult, error) {
	started := time.Now()

	if opts.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, opts.Limit)
	}
	err := opts.Filter.Validate()
	if err != nil {
		return nil, err
	}

	cur := opts.Cursor
	if opts.StartPoint != nil {
		start, err := e.startPosition(ctx, driveID, &opts)
		if err != nil {
			return nil, err
		}
		cur = Cursor{}
		cur.setPaging(opts.Ordering, start)
	}

	var result *BatchResult
	if opts.Direction == OldestFirst {
		result, err = e.oldestFirst(ctx, driveID, &opts, cur)
	} else {
		result, err = e.newestFirst(ctx, driveID, &opts, cur)
	}
	if err != nil {
		return nil, err
	}

	metrics.ObserveQuery(metrics.QueryBatch, started, len(result.Records))
	return result, nil
}

func (e *Engine) newestFirst(ctx context.Context, driveID uuid.UUID, opts *BatchOptions, cur Cursor) (*BatchResult, error) {
	o := opts.Ordering
	records := []*model.MainIndexRecord{}

	for pass := 0; ; pass++ {
		paging := cur.paging()
		fromTop := !paging.set(o)

		p := &predicate{}
		if !fromTop {
			p.beyond(o, paging, true)
		}
		if stop := cur.stop(); stop.set(o) {
			p.beyond(o, stop, false)
		}
		opts.Filter.apply(p)

		rows, more, err := e.selectRecords(ctx, driveID, p, orderClause(o, true), opts.Limit-len(records))
		if err != nil {
			return nil, err
		}
		records = append(records, rows...)

		if len(rows) > 0 {
			if fromTop {
				cur.setNextBoundary(o, recordPosition(rows[0]))
			}
			cur.setPaging(o, recordPosition(rows[len(rows)-1]))
		}

		if more {
			return &BatchResult{Records: records, Cursor: cur, HasMore: true}, nil
		}

		next := cur.nextBoundary()
		if !next.set(o) {
			return &BatchResult{Records: records, Cursor: cur, HasMore: false}, nil
		}

		// Drained down to the boundary: the newest row of this sequence is
		// the boundary of the next one.
		cur.setStop(o, next)
		cur.setNextBoundary(o, position{})
		cur.setPaging(o, position{})

		if fromTop || pass > 0 || len(records) >= opts.Limit {
			return &BatchResult{Records: records, Cursor: cur, HasMore: false}, nil
		}
		metrics.ObserveTopUp()
	}
}

func (e *Engine) oldestFirst(ctx context.Context, driveID uuid.UUID, opts *BatchOptions, cur Cursor) (*BatchResult, error) {
	o := opts.Ordering

	lower := cur.paging()
	if !lower.set(o) {
		lower = cur.stop()
	}

	p := &predicate{}
	if lower.set(o) {
		p.beyond(o, lower, false)
	}
	opts.Filter.apply(p)

	rows, more, err := e.selectRecords(ctx, driveID, p, orderClause(o, false), opts.Limit)
	if err != nil {
		return nil, err
	}

	if len(rows) > 0 {
		cur.setPaging(o, recordPosition(rows[len(rows)-1]))
	}

	if !more {
		if last := cur.paging(); last.set(o) {
			cur.setStop(o, last)
			cur.setPaging(o, position{})
		}
	}

	return &BatchResult{Records: rows, Cursor: cur, HasMore: more}, nil
}

// startPosition converts a StartPoint into an exclusive paging position.
func (e *Engine) startPosition(ctx context.Context, driveID uuid.UUID, opts *BatchOptions) (position, error) {
	sp := opts.StartPoint

	switch {
	case sp.FileID != nil:
		id := *sp.FileID
		if opts.Ordering == ByFileID {
			return position{id: &id}, nil
		}

		// In user-date order the id only breaks ties; its record's user date
		// (or, for an unknown id, its embedded time) gives the position.
		userDate := id.UnixMilli()
		query := e.db.Rebind(`SELECT user_date FROM main_index WHERE drive_id = ? AND file_id = ?`)
		err := sqlx.GetContext(ctx, e.db, &userDate, query, driveID, id)
		if err != nil && err != sql.ErrNoRows {
			return position{}, err
		}
		return position{id: &id, userDate: &userDate}, nil

	case sp.Time != nil:
		if opts.Ordering == ByUserDate {
			userDate := sp.Time.UnixMilli()
			return position{userDate: &userDate}, nil
		}
		id := fileid.MaxAt(*sp.Time)
		if opts.Direction == NewestFirst {
			id = fileid.MinAt(*sp.Time)
		}
		return position{id: &id}, nil
	}

	return position{}, fmt.Errorf("%w: start point needs a file id or a time", ErrInvalidArgument)
}

// beyond adds the clause selecting rows strictly past pos when scanning
// descending (towards older rows) or ascending.
func (p *predicate) beyond(o Ordering, pos position, descending bool) {
	op := ">"
	if descending {
		op = "<"
	}

	if o == ByFileID {
		p.add("m.file_id "+op+" ?", *pos.id)
		return
	}

	if pos.id == nil {
		p.add("m.user_date "+op+" ?", *pos.userDate)
		return
	}
	p.add(fmt.Sprintf("(m.user_date %s ? OR (m.user_date = ? AND m.file_id %s ?))", op, op),
		*pos.userDate, *pos.userDate, *pos.id)
}

func orderClause(o Ordering, descending bool) string {
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	if o == ByUserDate {
		return "m.user_date " + dir + ", m.file_id " + dir
	}
	return "m.file_id " + dir
}
