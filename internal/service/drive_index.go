package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/db"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/metrics"
	"github.com/templui/driveindex/internal/model"
	"github.com/templui/driveindex/internal/query"
	"github.com/templui/driveindex/internal/repository"
	"github.com/templui/driveindex/internal/storage"
	"github.com/templui/driveindex/internal/timestamp"
)

// ErrNoStorage is returned by ExportDrive when no snapshot storage is set.
var ErrNoStorage = errors.New("snapshot storage not configured")

// exportPageSize is the QueryBatch limit used while exporting.
const exportPageSize = 500

// DriveIndexService keeps the main index and its ACL and tag indexes
// consistent. Writes that touch more than one table commit together.
type DriveIndexService struct {
	db      *sqlx.DB
	records repository.MainIndexRepository
	acl     repository.SecondaryIndexRepository
	tags    repository.SecondaryIndexRepository
	engine  *query.Engine
	cache   *RecordCache
	storage storage.Storage
}

// NewDriveIndexService wires the repositories over database. cache and
// snapshots may be nil.
func NewDriveIndexService(database *sqlx.DB, cache *RecordCache, snapshots storage.Storage) *DriveIndexService {
	return &DriveIndexService{
		db:      database,
		records: repository.NewMainIndexRepository(database, timestamp.NewGenerator()),
		acl:     repository.NewAclIndexRepository(database),
		tags:    repository.NewTagIndexRepository(database),
		engine:  query.NewEngine(database),
		cache:   cache,
		storage: snapshots,
	}
}

// Tx is a unit of work. Everything done through it commits or rolls back
// together when the UnitOfWork callback returns.
type Tx struct {
	records repository.MainIndexRepository
	acl     repository.SecondaryIndexRepository
	tags    repository.SecondaryIndexRepository
	engine  *query.Engine
	touched map[model.FileKey]struct{}
	// restore puts back the ticks the repositories copied into caller
	// records, run when the transaction rolls back.
	restore []func()
}

// UnitOfWork runs fn in one transaction. Cached records written by fn are
// dropped once the transaction has committed. On rollback the Created and
// Modified fields of records passed to Insert/UpdateFile are reset to the
// values they had before the call.
func (s *DriveIndexService) UnitOfWork(ctx context.Context, fn func(tx *Tx) error) error {
	var uow *Tx

	err := db.WithTx(ctx, s.db, func(sqlTx *sqlx.Tx) error {
		uow = &Tx{
			records: s.records.WithTx(sqlTx),
			acl:     s.acl.WithTx(sqlTx),
			tags:    s.tags.WithTx(sqlTx),
			engine:  s.engine.WithTx(sqlTx),
			touched: make(map[model.FileKey]struct{}),
		}
		return fn(uow)
	})
	if err != nil {
		if uow != nil {
			for i := len(uow.restore) - 1; i >= 0; i-- {
				uow.restore[i]()
			}
		}
		return err
	}

	for key := range uow.touched {
		s.cache.Remove(key)
	}
	return nil
}

func (tx *Tx) touch(key model.FileKey) {
	tx.touched[key] = struct{}{}
}

func (tx *Tx) keepTicks(rec *model.MainIndexRecord) {
	created, modified := rec.Created, rec.Modified
	tx.restore = append(tx.restore, func() {
		rec.Created, rec.Modified = created, modified
	})
}

// InsertFile adds a record together with its ACL principals and tags.
func (tx *Tx) InsertFile(ctx context.Context, rec *model.MainIndexRecord, acl, tags []uuid.UUID) error {
	tx.keepTicks(rec)
	err := tx.records.Insert(ctx, rec)
	if err != nil {
		return err
	}
	tx.touch(rec.Key())

	err = tx.acl.InsertRows(ctx, rec.DriveID, rec.FileID, acl)
	if err != nil {
		return fmt.Errorf("acl: %w", err)
	}

	err = tx.tags.InsertRows(ctx, rec.DriveID, rec.FileID, tags)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}

	return nil
}

// UpdateFile replaces a record. A non-nil acl or tags slice replaces that
// set (an empty slice clears it); nil leaves it unchanged.
func (tx *Tx) UpdateFile(ctx context.Context, rec *model.MainIndexRecord, acl, tags []uuid.UUID) error {
	tx.keepTicks(rec)
	err := tx.records.Update(ctx, rec)
	if err != nil {
		return err
	}
	tx.touch(rec.Key())

	err = replaceMembers(ctx, tx.acl, rec, acl)
	if err != nil {
		return fmt.Errorf("acl: %w", err)
	}

	err = replaceMembers(ctx, tx.tags, rec, tags)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}

	return nil
}

func replaceMembers(ctx context.Context, index repository.SecondaryIndexRepository, rec *model.MainIndexRecord, members []uuid.UUID) error {
	if members == nil {
		return nil
	}

	err := index.DeleteAll(ctx, rec.DriveID, rec.FileID)
	if err != nil {
		return err
	}

	return index.InsertRows(ctx, rec.DriveID, rec.FileID, members)
}

// UpsertFile inserts the record, or updates it when the key already exists
// (with UpdateFile's handling of acl and tags). It reports whether a new
// record was created.
func (tx *Tx) UpsertFile(ctx context.Context, rec *model.MainIndexRecord, acl, tags []uuid.UUID) (bool, error) {
	exists, err := tx.records.Exists(ctx, rec.DriveID, rec.FileID)
	if err != nil {
		return false, err
	}

	if exists {
		return false, tx.UpdateFile(ctx, rec, acl, tags)
	}

	return true, tx.InsertFile(ctx, rec, acl, tags)
}

// DeleteFile removes a record and its secondary index rows. The index rows
// are deleted explicitly so the result does not depend on the database
// enforcing foreign keys.
func (tx *Tx) DeleteFile(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) error {
	err := tx.acl.DeleteAll(ctx, driveID, fileID)
	if err != nil {
		return err
	}

	err = tx.tags.DeleteAll(ctx, driveID, fileID)
	if err != nil {
		return err
	}

	err = tx.records.Delete(ctx, driveID, fileID)
	if err != nil {
		return err
	}

	tx.touch(model.FileKey{DriveID: driveID, FileID: fileID})
	return nil
}

func (tx *Tx) TouchFile(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (timestamp.UniqueTime, error) {
	modified, err := tx.records.Touch(ctx, driveID, fileID)
	if err != nil {
		return 0, err
	}

	tx.touch(model.FileKey{DriveID: driveID, FileID: fileID})
	return modified, nil
}

// GetFile reads through the transaction, seeing its uncommitted writes.
func (tx *Tx) GetFile(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (*model.MainIndexRecord, error) {
	return tx.records.Get(ctx, driveID, fileID)
}

func (tx *Tx) QueryBatch(ctx context.Context, driveID uuid.UUID, opts query.BatchOptions) (*query.BatchResult, error) {
	return tx.engine.QueryBatch(ctx, driveID, opts)
}

func (s *DriveIndexService) InsertFile(ctx context.Context, rec *model.MainIndexRecord, acl, tags []uuid.UUID) error {
	err := s.UnitOfWork(ctx, func(tx *Tx) error {
		return tx.InsertFile(ctx, rec, acl, tags)
	})
	observeWrite("insert", err)
	return err
}

func (s *DriveIndexService) UpdateFile(ctx context.Context, rec *model.MainIndexRecord, acl, tags []uuid.UUID) error {
	err := s.UnitOfWork(ctx, func(tx *Tx) error {
		return tx.UpdateFile(ctx, rec, acl, tags)
	})
	observeWrite("update", err)
	return err
}

func (s *DriveIndexService) UpsertFile(ctx context.Context, rec *model.MainIndexRecord, acl, tags []uuid.UUID) (bool, error) {
	var created bool
	err := s.UnitOfWork(ctx, func(tx *Tx) error {
		var err error
		created, err = tx.UpsertFile(ctx, rec, acl, tags)
		return err
	})
	observeWrite("upsert", err)
	return created, err
}

func (s *DriveIndexService) DeleteFile(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) error {
	err := s.UnitOfWork(ctx, func(tx *Tx) error {
		return tx.DeleteFile(ctx, driveID, fileID)
	})
	observeWrite("delete", err)
	return err
}

// TouchFile advances the modified tick so the record shows up in the next
// QueryModified page.
func (s *DriveIndexService) TouchFile(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (timestamp.UniqueTime, error) {
	var modified timestamp.UniqueTime
	err := s.UnitOfWork(ctx, func(tx *Tx) error {
		var err error
		modified, err = tx.TouchFile(ctx, driveID, fileID)
		return err
	})
	observeWrite("touch", err)
	return modified, err
}

// GetFile serves point lookups from the record cache when possible.
func (s *DriveIndexService) GetFile(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) (*model.MainIndexRecord, error) {
	key := model.FileKey{DriveID: driveID, FileID: fileID}
	if rec, ok := s.cache.Get(key); ok {
		return rec, nil
	}

	rec, err := s.records.Get(ctx, driveID, fileID)
	if err != nil {
		return nil, err
	}

	s.cache.Add(rec)
	return rec, nil
}

func (s *DriveIndexService) GetFileByUniqueID(ctx context.Context, driveID, uniqueID uuid.UUID) (*model.MainIndexRecord, error) {
	return s.records.GetByUniqueID(ctx, driveID, uniqueID)
}

func (s *DriveIndexService) GetFileByGlobalTransitID(ctx context.Context, driveID, globalTransitID uuid.UUID) (*model.MainIndexRecord, error) {
	return s.records.GetByGlobalTransitID(ctx, driveID, globalTransitID)
}

func (s *DriveIndexService) DriveSize(ctx context.Context, driveID uuid.UUID) (model.DriveSize, error) {
	return s.records.DriveSize(ctx, driveID)
}

func (s *DriveIndexService) Acl(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) ([]uuid.UUID, error) {
	return s.acl.Get(ctx, driveID, fileID)
}

func (s *DriveIndexService) Tags(ctx context.Context, driveID uuid.UUID, fileID fileid.ID) ([]uuid.UUID, error) {
	return s.tags.Get(ctx, driveID, fileID)
}

func (s *DriveIndexService) QueryBatch(ctx context.Context, driveID uuid.UUID, opts query.BatchOptions) (*query.BatchResult, error) {
	return s.engine.QueryBatch(ctx, driveID, opts)
}

func (s *DriveIndexService) QueryModified(ctx context.Context, driveID uuid.UUID, opts query.ModifiedOptions) (*query.ModifiedResult, error) {
	return s.engine.QueryModified(ctx, driveID, opts)
}

// SnapshotLine is one JSON line of an exported snapshot.
type SnapshotLine struct {
	Record *model.MainIndexRecord `json:"record"`
	Acl    []uuid.UUID            `json:"acl"`
	Tags   []uuid.UUID            `json:"tags"`
}

// Snapshot describes an exported object.
type Snapshot struct {
	Path    string       `json:"path"`
	URL     string       `json:"url"`
	Records int          `json:"records"`
	Bytes   int          `json:"bytes"`
	Cursor  query.Cursor `json:"cursor"`
}

// ExportDrive writes every record of a drive added after since (oldest
// first, with its ACL and tags) as JSON lines to snapshot storage. Passing
// the returned Cursor as since on the next export yields only newer records.
func (s *DriveIndexService) ExportDrive(ctx context.Context, driveID uuid.UUID, since query.Cursor) (*Snapshot, error) {
	if s.storage == nil {
		return nil, ErrNoStorage
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	opts := query.BatchOptions{
		Limit:     exportPageSize,
		Cursor:    since,
		Direction: query.OldestFirst,
		// Every record is exported whatever its security group.
		Filter: query.Filter{
			SecurityRange: query.SecurityRange{Lo: 0, Hi: math.MaxInt32},
		},
	}

	count := 0
	for {
		page, err := s.engine.QueryBatch(ctx, driveID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to read drive: %w", err)
		}

		for _, rec := range page.Records {
			line, err := s.snapshotLine(ctx, rec)
			if err != nil {
				return nil, err
			}
			err = enc.Encode(line)
			if err != nil {
				return nil, fmt.Errorf("failed to encode record %s: %w", rec.Key(), err)
			}
		}

		count += len(page.Records)
		opts.Cursor = page.Cursor
		if !page.HasMore {
			break
		}
	}

	path := fmt.Sprintf("snapshots/%s/%d.jsonl", driveID, time.Now().UnixMilli())
	size := buf.Len()

	err := s.storage.Save(ctx, path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		slog.Error("failed to save drive snapshot", "drive_id", driveID, "path", path, "error", err)
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	slog.Info("drive snapshot exported", "drive_id", driveID, "path", path, "records", count, "bytes", size)

	return &Snapshot{
		Path:    path,
		URL:     s.storage.URL(path),
		Records: count,
		Bytes:   size,
		Cursor:  opts.Cursor,
	}, nil
}

// ImportSnapshot upserts every line of a snapshot written by ExportDrive in
// one unit of work and returns the number of records. File ids are kept;
// created and modified are stamped by this index.
func (s *DriveIndexService) ImportSnapshot(ctx context.Context, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	count := 0

	err := s.UnitOfWork(ctx, func(tx *Tx) error {
		for {
			var line SnapshotLine
			err := dec.Decode(&line)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: snapshot line %d: %v", repository.ErrInvalidArgument, count+1, err)
			}
			if line.Record == nil {
				return fmt.Errorf("%w: snapshot line %d has no record", repository.ErrInvalidArgument, count+1)
			}

			// A snapshot is authoritative: missing sets are imported as empty.
			acl, tags := line.Acl, line.Tags
			if acl == nil {
				acl = []uuid.UUID{}
			}
			if tags == nil {
				tags = []uuid.UUID{}
			}

			_, err = tx.UpsertFile(ctx, line.Record, acl, tags)
			if err != nil {
				return fmt.Errorf("snapshot line %d: %w", count+1, err)
			}
			count++
		}
	})
	observeWrite("import", err)
	if err != nil {
		return 0, err
	}

	slog.Info("drive snapshot imported", "records", count)
	return count, nil
}

func (s *DriveIndexService) snapshotLine(ctx context.Context, rec *model.MainIndexRecord) (*SnapshotLine, error) {
	acl, err := s.acl.Get(ctx, rec.DriveID, rec.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read acl of %s: %w", rec.Key(), err)
	}

	tags, err := s.tags.Get(ctx, rec.DriveID, rec.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags of %s: %w", rec.Key(), err)
	}

	return &SnapshotLine{Record: rec, Acl: acl, Tags: tags}, nil
}

func observeWrite(op string, err error) {
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		result = metrics.ResultConflict
	case errors.Is(err, repository.ErrNotFound):
		result = metrics.ResultNotFound
	case errors.Is(err, repository.ErrInvalidArgument):
		result = metrics.ResultInvalid
	default:
		result = metrics.ResultError
	}
	metrics.ObserveWrite(op, result)
}
