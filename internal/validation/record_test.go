package validation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/model"
)

func validRecord() *model.MainIndexRecord {
	return &model.MainIndexRecord{
		DriveID:   uuid.New(),
		FileID:    fileid.New(),
		ByteCount: 1,
	}
}

func TestValidateRecord(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, ValidateRecord(validRecord()))
	})

	t.Run("Nil", func(t *testing.T) {
		assert.Error(t, ValidateRecord(nil))
	})

	t.Run("ZeroByteCount", func(t *testing.T) {
		rec := validRecord()
		rec.ByteCount = 0

		err := ValidateRecord(rec)
		assert.ErrorContains(t, err, "ByteCount")
	})

	t.Run("NegativeByteCount", func(t *testing.T) {
		rec := validRecord()
		rec.ByteCount = -10

		assert.ErrorContains(t, ValidateRecord(rec), "gt=0")
	})

	t.Run("MissingDrive", func(t *testing.T) {
		rec := validRecord()
		rec.DriveID = uuid.Nil

		assert.ErrorContains(t, ValidateRecord(rec), "drive id")
	})

	t.Run("MissingFileID", func(t *testing.T) {
		rec := validRecord()
		rec.FileID = fileid.Nil

		assert.ErrorContains(t, ValidateRecord(rec), "file id")
	})

	t.Run("NegativeSecurityGroup", func(t *testing.T) {
		rec := validRecord()
		rec.RequiredSecurityGroup = -1

		assert.ErrorContains(t, ValidateRecord(rec), "RequiredSecurityGroup")
	})
}
