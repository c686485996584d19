package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/model"
)

// Cursor captures the progress of a QueryBatch sequence. It is plain data:
// QueryBatch never modifies the cursor it is given and returns the next one.
// Sync clients persist it (see Encode), so the JSON field names are frozen.
//
// In user-date ordering a position is the pair (user date, file id); the
// UserDate* fields hold the first half and the fileid fields the tie-break.
type Cursor struct {
	PagingCursor       *fileid.ID `json:"pagingCursor,omitempty"`
	NextBoundaryCursor *fileid.ID `json:"nextBoundaryCursor,omitempty"`
	StopAtBoundary     *fileid.ID `json:"stopAtBoundary,omitempty"`

	UserDatePagingCursor   *int64 `json:"userDatePagingCursor,omitempty"`
	UserDateNextBoundary   *int64 `json:"userDateNextBoundary,omitempty"`
	UserDateStopAtBoundary *int64 `json:"userDateStopAtBoundary,omitempty"`
}

// IsZero reports whether the cursor carries no state, as on a first call.
func (c Cursor) IsZero() bool {
	return c.PagingCursor == nil && c.NextBoundaryCursor == nil && c.StopAtBoundary == nil &&
		c.UserDatePagingCursor == nil && c.UserDateNextBoundary == nil && c.UserDateStopAtBoundary == nil
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a token produced by Encode. The empty token decodes
// to the zero cursor.
func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	if token == "" {
		return c, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor: %v", ErrInvalidArgument, err)
	}

	err = json.Unmarshal(raw, &c)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor: %v", ErrInvalidArgument, err)
	}

	return c, nil
}

// position is a point in scan order. In file-id ordering only id is used;
// in user-date ordering id may be nil, meaning the whole user-date tick.
type position struct {
	id       *fileid.ID
	userDate *int64
}

func recordPosition(rec *model.MainIndexRecord) position {
	ud := int64(rec.UserDate)
	return position{id: rec.FileID.Ptr(), userDate: &ud}
}

func (p position) set(o Ordering) bool {
	if o == ByUserDate {
		return p.userDate != nil
	}
	return p.id != nil
}

// The accessors below keep the cursor's fields for the active ordering in
// sync and leave the other ordering's fields untouched.

func (c *Cursor) paging() position {
	return position{id: c.PagingCursor, userDate: c.UserDatePagingCursor}
}

func (c *Cursor) nextBoundary() position {
	return position{id: c.NextBoundaryCursor, userDate: c.UserDateNextBoundary}
}

func (c *Cursor) stop() position {
	return position{id: c.StopAtBoundary, userDate: c.UserDateStopAtBoundary}
}

func (c *Cursor) setPaging(o Ordering, p position) {
	c.PagingCursor = p.id
	if o == ByUserDate {
		c.UserDatePagingCursor = p.userDate
	}
}

func (c *Cursor) setNextBoundary(o Ordering, p position) {
	c.NextBoundaryCursor = p.id
	if o == ByUserDate {
		c.UserDateNextBoundary = p.userDate
	}
}

func (c *Cursor) setStop(o Ordering, p position) {
	c.StopAtBoundary = p.id
	if o == ByUserDate {
		c.UserDateStopAtBoundary = p.userDate
	}
}
