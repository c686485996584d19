package query

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/timestamp"
)

// SecurityRange is the inclusive range of required_security_group values the
// caller may see. Every query must state one.
type SecurityRange struct {
	Lo int32 `json:"lo"`
	Hi int32 `json:"hi"`
}

// UserDateRange bounds user_date, both ends inclusive.
type UserDateRange struct {
	Start timestamp.UnixTime `json:"start"`
	End   timestamp.UnixTime `json:"end"`
}

// Filter is an AND across the dimensions that are set; within a dimension
// the listed values are OR-ed, except TagsAllOf. A nil or empty slice leaves
// the dimension unconstrained.
//
// AclAnyOf widens rather than narrows: a record outside SecurityRange is
// still visible when one of its ACL principals is listed.
type Filter struct {
	SecurityRange SecurityRange `json:"securityRange"`

	FileTypes        []int32     `json:"fileTypes,omitempty"`
	DataTypes        []int32     `json:"dataTypes,omitempty"`
	SenderIDs        []string    `json:"senderIds,omitempty"`
	GroupIDs         []uuid.UUID `json:"groupIds,omitempty"`
	GlobalTransitIDs []uuid.UUID `json:"globalTransitIds,omitempty"`
	UniqueIDs        []uuid.UUID `json:"uniqueIds,omitempty"`
	ArchivalStatus   []int32     `json:"archivalStatus,omitempty"`
	FileStates       []int32     `json:"fileStates,omitempty"`

	UserDate *UserDateRange `json:"userDate,omitempty"`

	TagsAnyOf []uuid.UUID `json:"tagsAnyOf,omitempty"`
	TagsAllOf []uuid.UUID `json:"tagsAllOf,omitempty"`
	AclAnyOf  []uuid.UUID `json:"aclAnyOf,omitempty"`
}

// Validate rejects ranges that can never match.
func (f *Filter) Validate() error {
	if f.SecurityRange.Lo < 0 || f.SecurityRange.Hi < f.SecurityRange.Lo {
		return fmt.Errorf("%w: security range [%d, %d]", ErrInvalidArgument, f.SecurityRange.Lo, f.SecurityRange.Hi)
	}
	if f.UserDate != nil && f.UserDate.End < f.UserDate.Start {
		return fmt.Errorf("%w: user date range [%d, %d]", ErrInvalidArgument, f.UserDate.Start, f.UserDate.End)
	}
	return nil
}

// predicate accumulates WHERE clauses written with "?" placeholders.
// Slice arguments are expanded by sqlx.In.
type predicate struct {
	clauses []string
	args    []any
	err     error
}

func (p *predicate) add(clause string, args ...any) {
	if p.err != nil {
		return
	}
	expanded, expandedArgs, err := sqlx.In(clause, args...)
	if err != nil {
		p.err = err
		return
	}
	p.clauses = append(p.clauses, expanded)
	p.args = append(p.args, expandedArgs...)
}

func (p *predicate) sql() string {
	return strings.Join(p.clauses, " AND ")
}

// apply adds the filter's clauses for the main_index alias m.
func (f *Filter) apply(p *predicate) {
	security := "m.required_security_group BETWEEN ? AND ?"
	if len(f.AclAnyOf) > 0 {
		p.add("("+security+" OR EXISTS (SELECT 1 FROM acl_index a WHERE a.drive_id = m.drive_id AND a.file_id = m.file_id AND a.principal_id IN (?)))",
			f.SecurityRange.Lo, f.SecurityRange.Hi, f.AclAnyOf)
	} else {
		p.add(security, f.SecurityRange.Lo, f.SecurityRange.Hi)
	}

	if len(f.FileTypes) > 0 {
		p.add("m.file_type IN (?)", f.FileTypes)
	}
	if len(f.DataTypes) > 0 {
		p.add("m.data_type IN (?)", f.DataTypes)
	}
	if len(f.SenderIDs) > 0 {
		p.add("m.sender_id IN (?)", f.SenderIDs)
	}
	if len(f.GroupIDs) > 0 {
		p.add("m.group_id IN (?)", f.GroupIDs)
	}
	if len(f.GlobalTransitIDs) > 0 {
		p.add("m.global_transit_id IN (?)", f.GlobalTransitIDs)
	}
	if len(f.UniqueIDs) > 0 {
		p.add("m.unique_id IN (?)", f.UniqueIDs)
	}
	if len(f.ArchivalStatus) > 0 {
		p.add("m.archival_status IN (?)", f.ArchivalStatus)
	}
	if len(f.FileStates) > 0 {
		p.add("m.file_state IN (?)", f.FileStates)
	}
	if f.UserDate != nil {
		p.add("m.user_date BETWEEN ? AND ?", f.UserDate.Start, f.UserDate.End)
	}

	if len(f.TagsAnyOf) > 0 {
		p.add("EXISTS (SELECT 1 FROM tag_index t WHERE t.drive_id = m.drive_id AND t.file_id = m.file_id AND t.tag_id IN (?))",
			f.TagsAnyOf)
	}
	seen := make(map[uuid.UUID]struct{}, len(f.TagsAllOf))
	for _, tag := range f.TagsAllOf {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		p.add("EXISTS (SELECT 1 FROM tag_index t WHERE t.drive_id = m.drive_id AND t.file_id = m.file_id AND t.tag_id = ?)", tag)
	}
}
