package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/db"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/model"
	"github.com/templui/driveindex/internal/timestamp"
	"github.com/templui/driveindex/internal/validation"
)

// MainIndexColumns lists every main_index column in model field order.
var MainIndexColumns = []string{
	"drive_id", "file_id", "global_transit_id", "unique_id", "created", "modified",
	"file_type", "data_type", "sender_id", "group_id", "user_date",
	"required_security_group", "archival_status", "file_state", "file_system_type", "byte_count",
	"hdr_encrypted_key_header", "hdr_version_tag", "hdr_app_data", "hdr_reaction_summary",
	"hdr_server_data", "hdr_transfer_history", "hdr_file_meta_data",
}

// SelectColumns renders MainIndexColumns, optionally qualified by a table alias.
func SelectColumns(alias string) string {
	if alias == "" {
		return strings.Join(MainIndexColumns, ", ")
	}
	cols := make([]string, len(MainIndexColumns))
	for i, c := range MainIndexColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// updatableColumns are replaced by Update; the key and created never change.
var updatableColumns = []string{
	"global_transit_id", "unique_id", "modified",
	"file_type", "data_type", "sender_id", "group_id", "user_date",
	"required_security_group", "archival_status", "file_state", "file_system_type", "byte_count",
	"hdr_encrypted_key_header", "hdr_version_tag", "hdr_app_data", "hdr_reaction_summary",
	"hdr_server_data", "hdr_transfer_history", "hdr_file_meta_data",
}

var (
	insertMainIndexQuery = fmt.Sprintf(`INSERT INTO main_index (%s) VALUES (:%s)`,
		strings.Join(MainIndexColumns, ", "), strings.Join(MainIndexColumns, ", :"))

	updateMainIndexQuery = func() string {
		sets := make([]string, len(updatableColumns))
		for i, c := range updatableColumns {
			sets[i] = c + " = :" + c
		}
		return fmt.Sprintf(`UPDATE main_index SET %s WHERE drive_id = :drive_id AND file_id = :file_id`,
			strings.Join(sets, ", "))
	}()
)

type MainIndexRepository interface {
	Insert(ctx context.Context, rec *model.MainIndexRecord) error
	Update(ctx context.Context, rec *model.MainIndexRecord) error
	Get(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (*model.MainIndexRecord, error)
	GetByUniqueID(ctx context.Context, driveID, uniqueID uuid.UUID) (*model.MainIndexRecord, error)
	GetByGlobalTransitID(ctx context.Context, driveID, globalTransitID uuid.UUID) (*model.MainIndexRecord, error)
	Exists(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (bool, error)
	DriveSize(ctx context.Context, driveID uuid.UUID) (model.DriveSize, error)
	Touch(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (timestamp.UniqueTime, error)
	UpdateTransferHistory(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, history []byte) (timestamp.UniqueTime, error)
	UpdateReactionSummary(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, summary []byte) (timestamp.UniqueTime, error)
	Delete(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) error
	WithTx(tx *sqlx.Tx) MainIndexRepository
}

type mainIndexRepository struct {
	db    db.Ext
	clock *timestamp.Generator
}

// NewMainIndexRepository binds the repository to a pool (or transaction).
// clock supplies created/modified ticks and must be shared by every
// repository writing to the same database.
func NewMainIndexRepository(ext db.Ext, clock *timestamp.Generator) MainIndexRepository {
	return &mainIndexRepository{db: ext, clock: clock}
}

func (r *mainIndexRepository) WithTx(tx *sqlx.Tx) MainIndexRepository {
	return &mainIndexRepository{db: tx, clock: r.clock}
}

// Insert writes a new record. Created is stamped here and Modified is
// cleared; both fields of rec are updated to the stored values. When ext is
// a caller's transaction those values only hold once it commits.
func (r *mainIndexRepository) Insert(ctx context.Context, rec *model.MainIndexRecord) error {
	err := validation.ValidateRecord(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	row := *rec
	row.Modified = nil

	// The tick is taken inside the transaction so that, with writers
	// serialized by the engine, commit order matches tick order.
	err = db.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		created, err := r.nextTick(ctx, tx, rec.DriveID)
		if err != nil {
			return err
		}
		row.Created = created
		_, err = sqlx.NamedExecContext(ctx, tx, insertMainIndexQuery, &row)
		return err
	})
	if err != nil {
		mapped := mainIndexError(err)
		if errors.Is(mapped, ErrConflict) {
			slog.Debug("main index insert conflict", "drive_id", rec.DriveID, "file_id", rec.FileID, "error", mapped)
		}
		return mapped
	}

	rec.Created = row.Created
	rec.Modified = nil
	return nil
}

// Update replaces every mutable column of an existing record and stamps
// Modified. The stored Created value is kept and copied back into rec.
func (r *mainIndexRepository) Update(ctx context.Context, rec *model.MainIndexRecord) error {
	err := validation.ValidateRecord(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	row := *rec
	var created timestamp.UniqueTime

	err = db.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		modified, err := r.nextTick(ctx, tx, rec.DriveID)
		if err != nil {
			return err
		}
		row.Modified = modified.Ptr()

		result, err := sqlx.NamedExecContext(ctx, tx, updateMainIndexQuery, &row)
		if err != nil {
			return mainIndexError(err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rows == 0 {
			return ErrNotFound
		}

		query := tx.Rebind(`SELECT created FROM main_index WHERE drive_id = ? AND file_id = ?`)
		return sqlx.GetContext(ctx, tx, &created, query, rec.DriveID, rec.FileID)
	})
	if err != nil {
		return err
	}

	rec.Created = created
	rec.Modified = row.Modified
	return nil
}

// nextTick returns a tick greater than every created and modified value
// already stored for the drive, including those written by other processes.
func (r *mainIndexRepository) nextTick(ctx context.Context, tx *sqlx.Tx, driveID uuid.UUID) (timestamp.UniqueTime, error) {
	var stored struct {
		Created  timestamp.UniqueTime `db:"max_created"`
		Modified timestamp.UniqueTime `db:"max_modified"`
	}
	query := tx.Rebind(`SELECT COALESCE(MAX(created), 0) AS max_created, COALESCE(MAX(modified), 0) AS max_modified
	          FROM main_index WHERE drive_id = ?`)

	err := sqlx.GetContext(ctx, tx, &stored, query, driveID)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest tick: %w", err)
	}

	r.clock.Observe(stored.Created)
	r.clock.Observe(stored.Modified)
	return r.clock.Next(), nil
}

func (r *mainIndexRepository) get(ctx context.Context, where string, args ...any) (*model.MainIndexRecord, error) {
	rec := &model.MainIndexRecord{}
	query := r.db.Rebind(`SELECT ` + SelectColumns("") + ` FROM main_index WHERE ` + where)

	err := sqlx.GetContext(ctx, r.db, rec, query, args...)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *mainIndexRepository) Get(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (*model.MainIndexRecord, error) {
	return r.get(ctx, `drive_id = ? AND file_id = ?`, driveID, fileID)
}

func (r *mainIndexRepository) GetByUniqueID(ctx context.Context, driveID, uniqueID uuid.UUID) (*model.MainIndexRecord, error) {
	return r.get(ctx, `drive_id = ? AND unique_id = ?`, driveID, uniqueID)
}

func (r *mainIndexRepository) GetByGlobalTransitID(ctx context.Context, driveID, globalTransitID uuid.UUID) (*model.MainIndexRecord, error) {
	return r.get(ctx, `drive_id = ? AND global_transit_id = ?`, driveID, globalTransitID)
}

func (r *mainIndexRepository) Exists(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (bool, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM main_index WHERE drive_id = ? AND file_id = ?`)

	err := sqlx.GetContext(ctx, r.db, &n, query, driveID, fileID)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *mainIndexRepository) DriveSize(ctx context.Context, driveID uuid.UUID) (model.DriveSize, error) {
	var size model.DriveSize
	query := r.db.Rebind(`SELECT COUNT(*) AS count, COALESCE(SUM(byte_count), 0) AS total_bytes
	          FROM main_index WHERE drive_id = ?`)

	err := sqlx.GetContext(ctx, r.db, &size, query, driveID)
	if err != nil {
		return model.DriveSize{}, err
	}

	return size, nil
}

// Touch advances modified without changing anything else, marking the
// record dirty for incremental sync.
func (r *mainIndexRepository) Touch(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (timestamp.UniqueTime, error) {
	return r.stampModified(ctx, "", nil, driveID, fileID)
}

func (r *mainIndexRepository) UpdateTransferHistory(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, history []byte) (timestamp.UniqueTime, error) {
	return r.stampModified(ctx, "hdr_transfer_history", history, driveID, fileID)
}

func (r *mainIndexRepository) UpdateReactionSummary(ctx context.Context, driveID uuid.UUID, fileID fileid.ID, summary []byte) (timestamp.UniqueTime, error) {
	return r.stampModified(ctx, "hdr_reaction_summary", summary, driveID, fileID)
}

// stampModified sets modified to a fresh tick and, when column is given,
// overwrites that single blob column.
func (r *mainIndexRepository) stampModified(ctx context.Context, column string, value []byte, driveID uuid.UUID, fileID fileid.ID) (timestamp.UniqueTime, error) {
	var modified timestamp.UniqueTime

	err := db.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		modified, err = r.nextTick(ctx, tx, driveID)
		if err != nil {
			return err
		}

		var result sql.Result
		if column == "" {
			query := tx.Rebind(`UPDATE main_index SET modified = ? WHERE drive_id = ? AND file_id = ?`)
			result, err = tx.ExecContext(ctx, query, modified, driveID, fileID)
		} else {
			query := tx.Rebind(`UPDATE main_index SET ` + column + ` = ?, modified = ? WHERE drive_id = ? AND file_id = ?`)
			result, err = tx.ExecContext(ctx, query, value, modified, driveID, fileID)
		}
		if err != nil {
			return err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return modified, nil
}

// Delete removes the record. Secondary index rows go with it through the
// foreign key cascade; callers that cannot rely on foreign keys being
// enforced delete them explicitly first (see the service layer).
func (r *mainIndexRepository) Delete(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) error {
	query := r.db.Rebind(`DELETE FROM main_index WHERE drive_id = ? AND file_id = ?`)

	result, err := r.db.ExecContext(ctx, query, driveID, fileID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
