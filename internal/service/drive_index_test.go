package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/driveindex/internal/db/dbtest"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/model"
	"github.com/templui/driveindex/internal/query"
	"github.com/templui/driveindex/internal/repository"
	"github.com/templui/driveindex/internal/storage"
	"github.com/templui/driveindex/internal/timestamp"
)

func newService(t *testing.T) (*DriveIndexService, string) {
	t.Helper()

	dir := t.TempDir()
	snapshots, err := storage.NewDirStorage(dir)
	require.NoError(t, err)

	return NewDriveIndexService(dbtest.Open(t), NewRecordCache(100, time.Minute), snapshots), dir
}

func newRecord(drive uuid.UUID) *model.MainIndexRecord {
	return &model.MainIndexRecord{
		DriveID:   drive,
		FileID:    fileid.New(),
		UserDate:  timestamp.Now(),
		ByteCount: 1,
	}
}

func allVisible() query.Filter {
	return query.Filter{SecurityRange: query.SecurityRange{Lo: 0, Hi: 3}}
}

func TestInsertFile_WritesAllTables(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	principal, tag := uuid.New(), uuid.New()
	require.NoError(t, svc.InsertFile(ctx, rec, []uuid.UUID{principal}, []uuid.UUID{tag}))

	acl, err := svc.Acl(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{principal}, acl)

	tags, err := svc.Tags(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tag}, tags)
}

func TestInsertFile_IsAtomic(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	tag := uuid.New()
	err := svc.InsertFile(ctx, rec, nil, []uuid.UUID{tag, tag})
	require.ErrorIs(t, err, repository.ErrDuplicateMember)

	_, err = svc.GetFile(ctx, rec.DriveID, rec.FileID)
	assert.ErrorIs(t, err, repository.ErrNotFound, "main index row is rolled back with the tags")
}

func TestUpdateFile_ReplacesSets(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	oldTag, newTag, principal := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, svc.InsertFile(ctx, rec, []uuid.UUID{principal}, []uuid.UUID{oldTag}))

	rec.ByteCount = 2
	require.NoError(t, svc.UpdateFile(ctx, rec, nil, []uuid.UUID{newTag}))

	tags, err := svc.Tags(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{newTag}, tags)

	acl, err := svc.Acl(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{principal}, acl, "nil acl leaves the set unchanged")

	require.NoError(t, svc.UpdateFile(ctx, rec, []uuid.UUID{}, nil))
	acl, err = svc.Acl(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Empty(t, acl)
}

func TestUpsertFile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	created, err := svc.UpsertFile(ctx, rec, nil, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, rec.Modified)

	rec.FileState = 2
	created, err = svc.UpsertFile(ctx, rec, nil, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NotNil(t, rec.Modified)
}

func TestGetFile_CacheIsInvalidatedOnWrite(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	require.NoError(t, svc.InsertFile(ctx, rec, nil, nil))

	first, err := svc.GetFile(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.cache.Len())

	first.ByteCount = 999
	cached, err := svc.GetFile(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.ByteCount, "cached records are copies")

	rec.ByteCount = 5
	require.NoError(t, svc.UpdateFile(ctx, rec, nil, nil))
	assert.Equal(t, 0, svc.cache.Len())

	fresh, err := svc.GetFile(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), fresh.ByteCount)

	require.NoError(t, svc.DeleteFile(ctx, rec.DriveID, rec.FileID))
	_, err = svc.GetFile(ctx, rec.DriveID, rec.FileID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteFile_RemovesIndexRows(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	require.NoError(t, svc.InsertFile(ctx, rec, []uuid.UUID{uuid.New()}, []uuid.UUID{uuid.New()}))
	require.NoError(t, svc.DeleteFile(ctx, rec.DriveID, rec.FileID))

	acl, err := svc.Acl(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Empty(t, acl)

	tags, err := svc.Tags(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	assert.ErrorIs(t, svc.DeleteFile(ctx, rec.DriveID, rec.FileID), repository.ErrNotFound)
}

func TestUnitOfWork_CommitsTogether(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	drive := uuid.New()

	a, b := newRecord(drive), newRecord(drive)
	err := svc.UnitOfWork(ctx, func(tx *Tx) error {
		require.NoError(t, tx.InsertFile(ctx, a, nil, nil))
		require.NoError(t, tx.InsertFile(ctx, b, nil, nil))

		page, err := tx.QueryBatch(ctx, drive, query.BatchOptions{Limit: 10, Filter: allVisible()})
		require.NoError(t, err)
		assert.Len(t, page.Records, 2, "the unit of work sees its own writes")

		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	size, err := svc.DriveSize(ctx, drive)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size.Count)

	err = svc.UnitOfWork(ctx, func(tx *Tx) error {
		err := tx.InsertFile(ctx, a, nil, nil)
		if err != nil {
			return err
		}
		_, err = tx.TouchFile(ctx, drive, a.FileID)
		return err
	})
	require.NoError(t, err)

	got, err := svc.GetFile(ctx, drive, a.FileID)
	require.NoError(t, err)
	assert.NotNil(t, got.Modified)
}

func TestTouchFile_FeedsQueryModified(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	require.NoError(t, svc.InsertFile(ctx, rec, nil, nil))

	modified, err := svc.TouchFile(ctx, rec.DriveID, rec.FileID)
	require.NoError(t, err)

	res, err := svc.QueryModified(ctx, rec.DriveID, query.ModifiedOptions{Limit: 10, Filter: allVisible()})
	require.NoError(t, err)
	assert.Equal(t, []fileid.ID{rec.FileID}, res.FileIDs())
	assert.Equal(t, modified, res.Cursor)
}

func readSnapshot(t *testing.T, dir, path string) []SnapshotLine {
	t.Helper()

	f, err := os.Open(filepath.Join(dir, path))
	require.NoError(t, err)
	defer f.Close()

	var lines []SnapshotLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line SnapshotLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestExportDrive(t *testing.T) {
	svc, dir := newService(t)
	ctx := context.Background()
	drive := uuid.New()
	tag := uuid.New()

	var ids []fileid.ID
	for i := 0; i < 3; i++ {
		rec := newRecord(drive)
		require.NoError(t, svc.InsertFile(ctx, rec, nil, []uuid.UUID{tag}))
		ids = append(ids, rec.FileID)
	}
	require.NoError(t, svc.InsertFile(ctx, newRecord(uuid.New()), nil, nil))

	snap, err := svc.ExportDrive(ctx, drive, query.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Records)
	assert.True(t, strings.HasPrefix(snap.Path, "snapshots/"+drive.String()+"/"))
	assert.True(t, strings.HasPrefix(snap.URL, "file://"))

	lines := readSnapshot(t, dir, snap.Path)
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Equal(t, ids[i], line.Record.FileID, "oldest first")
		assert.Equal(t, []uuid.UUID{tag}, line.Tags)
	}

	newer := newRecord(drive)
	require.NoError(t, svc.InsertFile(ctx, newer, nil, nil))

	time.Sleep(2 * time.Millisecond)
	next, err := svc.ExportDrive(ctx, drive, snap.Cursor)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Records)
	assert.Equal(t, newer.FileID, readSnapshot(t, dir, next.Path)[0].Record.FileID)
}

func TestExportDrive_IncludesEverySecurityGroup(t *testing.T) {
	svc, dir := newService(t)
	ctx := context.Background()
	drive := uuid.New()

	var ids []fileid.ID
	for _, group := range []int32{0, 3, 7} {
		rec := newRecord(drive)
		rec.RequiredSecurityGroup = group
		require.NoError(t, svc.InsertFile(ctx, rec, nil, nil))
		ids = append(ids, rec.FileID)
	}

	size, err := svc.DriveSize(ctx, drive)
	require.NoError(t, err)

	snap, err := svc.ExportDrive(ctx, drive, query.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, int(size.Count), snap.Records)

	lines := readSnapshot(t, dir, snap.Path)
	require.Len(t, lines, 3)
	assert.Equal(t, ids[2], lines[2].Record.FileID)
	assert.Equal(t, int32(7), lines[2].Record.RequiredSecurityGroup)
}

func TestInsertFile_RollbackRestoresTicks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec := newRecord(uuid.New())
	principal := uuid.New()
	err := svc.InsertFile(ctx, rec, []uuid.UUID{principal, principal}, nil)
	require.ErrorIs(t, err, repository.ErrDuplicateMember)
	assert.Equal(t, timestamp.UniqueTime(0), rec.Created)
	assert.Nil(t, rec.Modified)

	stored := newRecord(uuid.New())
	require.NoError(t, svc.InsertFile(ctx, stored, nil, nil))
	created := stored.Created

	err = svc.UnitOfWork(ctx, func(tx *Tx) error {
		err := tx.UpdateFile(ctx, stored, nil, nil)
		if err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")
	assert.Equal(t, created, stored.Created)
	assert.Nil(t, stored.Modified)

	_, err = svc.GetFile(ctx, rec.DriveID, rec.FileID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

type failingStorage struct{}

func (failingStorage) Save(ctx context.Context, path string, body io.Reader) error {
	return errors.New("bucket unavailable")
}
func (failingStorage) Delete(ctx context.Context, path string) error { return nil }
func (failingStorage) URL(path string) string                        { return "" }

func TestExportDrive_StorageErrors(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)

	_, err := NewDriveIndexService(conn, nil, nil).ExportDrive(ctx, uuid.New(), query.Cursor{})
	assert.ErrorIs(t, err, ErrNoStorage)

	_, err = NewDriveIndexService(conn, nil, failingStorage{}).ExportDrive(ctx, uuid.New(), query.Cursor{})
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestImportSnapshot_RoundTrip(t *testing.T) {
	src, dir := newService(t)
	dst, _ := newService(t)
	ctx := context.Background()
	drive := uuid.New()
	principal, tag := uuid.New(), uuid.New()

	a, b := newRecord(drive), newRecord(drive)
	a.HdrAppData = []byte("payload")
	require.NoError(t, src.InsertFile(ctx, a, []uuid.UUID{principal}, nil))
	require.NoError(t, src.InsertFile(ctx, b, nil, []uuid.UUID{tag}))

	snap, err := src.ExportDrive(ctx, drive, query.Cursor{})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, snap.Path))
	require.NoError(t, err)
	defer f.Close()

	n, err := dst.ImportSnapshot(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.GetFile(ctx, drive, a.FileID)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.HdrAppData)

	acl, err := dst.Acl(ctx, drive, a.FileID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{principal}, acl)

	tags, err := dst.Tags(ctx, drive, b.FileID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tag}, tags)
}

func TestImportSnapshot_RejectsGarbage(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ImportSnapshot(ctx, strings.NewReader("{\"record\": null}\n"))
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)

	_, err = svc.ImportSnapshot(ctx, strings.NewReader("not json"))
	assert.ErrorIs(t, err, repository.ErrInvalidArgument)
}
