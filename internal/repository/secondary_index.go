package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/db"
	"github.com/templui/driveindex/internal/fileid"
)

// SecondaryIndexRepository is a multi-valued join table keyed by
// (drive_id, file_id). The ACL index stores security principals, the tag
// index stores free-form tag ids; both behave identically.
type SecondaryIndexRepository interface {
	InsertRows(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, members []uuid.UUID) error
	Get(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) ([]uuid.UUID, error)
	DeleteRows(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, members []uuid.UUID) error
	DeleteAll(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) error
	WithTx(tx *sqlx.Tx) SecondaryIndexRepository
}

// IndexTable names a secondary index table and its member column.
type IndexTable struct {
	Table  string
	Column string
}

var (
	AclIndex = IndexTable{Table: "acl_index", Column: "principal_id"}
	TagIndex = IndexTable{Table: "tag_index", Column: "tag_id"}
)

type secondaryIndexRepository struct {
	db    db.Ext
	table IndexTable
}

func NewSecondaryIndexRepository(ext db.Ext, table IndexTable) SecondaryIndexRepository {
	return &secondaryIndexRepository{db: ext, table: table}
}

func NewAclIndexRepository(ext db.Ext) SecondaryIndexRepository {
	return NewSecondaryIndexRepository(ext, AclIndex)
}

func NewTagIndexRepository(ext db.Ext) SecondaryIndexRepository {
	return NewSecondaryIndexRepository(ext, TagIndex)
}

func (r *secondaryIndexRepository) WithTx(tx *sqlx.Tx) SecondaryIndexRepository {
	return &secondaryIndexRepository{db: tx, table: r.table}
}

// InsertRows adds every member or none. A member repeated in the call, a
// member already present, or a missing main index record aborts the batch.
func (r *secondaryIndexRepository) InsertRows(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, members []uuid.UUID) error {
	if len(members) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m]; dup {
			return fmt.Errorf("%w: %s repeated in %s insert", ErrDuplicateMember, m, r.table.Table)
		}
		seen[m] = struct{}{}
	}

	query := fmt.Sprintf(`INSERT INTO %s (drive_id, file_id, %s) VALUES (?, ?, ?)`, r.table.Table, r.table.Column)

	return db.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range members {
			_, err := stmt.ExecContext(ctx, driveID, fileID, m)
			if err != nil {
				mapped := secondaryIndexError(err)
				slog.Debug("secondary index insert failed",
					"table", r.table.Table, "drive_id", driveID, "file_id", fileID, "member", m, "error", mapped)
				return mapped
			}
		}
		return nil
	})
}

// Get returns the members of a key in ascending order, or an empty slice.
func (r *secondaryIndexRepository) Get(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) ([]uuid.UUID, error) {
	members := []uuid.UUID{}
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE drive_id = ? AND file_id = ?`, r.table.Column, r.table.Table))

	err := sqlx.SelectContext(ctx, r.db, &members, query, driveID, fileID)
	if err != nil {
		return nil, err
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].String() < members[j].String()
	})
	return members, nil
}

// DeleteRows removes exactly the given members. Members that are not
// present are ignored.
func (r *secondaryIndexRepository) DeleteRows(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, members []uuid.UUID) error {
	if len(members) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		fmt.Sprintf(`DELETE FROM %s WHERE drive_id = ? AND file_id = ? AND %s IN (?)`, r.table.Table, r.table.Column),
		driveID, fileID, members)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *secondaryIndexRepository) DeleteAll(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) error {
	query := r.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE drive_id = ? AND file_id = ?`, r.table.Table))
	_, err := r.db.ExecContext(ctx, query, driveID, fileID)
	return err
}
