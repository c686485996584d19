package model

import (
	"github.com/google/uuid"
	"github.com/templui/driveindex/internal/fileid"
	"github.com/templui/driveindex/internal/timestamp"
)

// Security group ordinals. Queries state an inclusive range of visible levels.
const (
	SecurityGroupOwner         int32 = 0
	SecurityGroupConnected     int32 = 1
	SecurityGroupAuthenticated int32 = 2
	SecurityGroupAnonymous     int32 = 3
)

// MainIndexRecord is the metadata row kept for every file on a drive.
// The hdr* blobs are produced by the encryption layer and stored verbatim.
type MainIndexRecord struct {
	DriveID         uuid.UUID             `db:"drive_id" json:"driveId"`
	FileID          fileid.ID             `db:"file_id" json:"fileId"`
	GlobalTransitID *uuid.UUID            `db:"global_transit_id" json:"globalTransitId,omitempty"` // unique per drive
	UniqueID        *uuid.UUID            `db:"unique_id" json:"uniqueId,omitempty"`                // unique per drive
	Created         timestamp.UniqueTime  `db:"created" json:"created"`                             // set once on insert
	Modified        *timestamp.UniqueTime `db:"modified" json:"modified,omitempty"`                 // nil until first update

	FileType              int32              `db:"file_type" json:"fileType"`
	DataType              int32              `db:"data_type" json:"dataType"`
	SenderID              *string            `db:"sender_id" json:"senderId,omitempty"`
	GroupID               *uuid.UUID         `db:"group_id" json:"groupId,omitempty"`
	UserDate              timestamp.UnixTime `db:"user_date" json:"userDate"`
	RequiredSecurityGroup int32              `db:"required_security_group" json:"requiredSecurityGroup" validate:"gte=0"`
	ArchivalStatus        int32              `db:"archival_status" json:"archivalStatus"`
	FileState             int32              `db:"file_state" json:"fileState"`
	FileSystemType        int32              `db:"file_system_type" json:"fileSystemType"`
	ByteCount             int64              `db:"byte_count" json:"byteCount" validate:"gt=0"`

	HdrEncryptedKeyHeader []byte     `db:"hdr_encrypted_key_header" json:"hdrEncryptedKeyHeader,omitempty"`
	HdrVersionTag         *uuid.UUID `db:"hdr_version_tag" json:"hdrVersionTag,omitempty"`
	HdrAppData            []byte     `db:"hdr_app_data" json:"hdrAppData,omitempty"`
	HdrReactionSummary    []byte     `db:"hdr_reaction_summary" json:"hdrReactionSummary,omitempty"`
	HdrServerData         []byte     `db:"hdr_server_data" json:"hdrServerData,omitempty"`
	HdrTransferHistory    []byte     `db:"hdr_transfer_history" json:"hdrTransferHistory,omitempty"`
	HdrFileMetaData       []byte     `db:"hdr_file_meta_data" json:"hdrFileMetaData,omitempty"`
}

// Key returns the composite primary key.
func (r *MainIndexRecord) Key() FileKey {
	return FileKey{DriveID: r.DriveID, FileID: r.FileID}
}

// Clone returns a deep copy, so cached records cannot be mutated by callers.
func (r *MainIndexRecord) Clone() *MainIndexRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.GlobalTransitID = cloneUUID(r.GlobalTransitID)
	c.UniqueID = cloneUUID(r.UniqueID)
	c.GroupID = cloneUUID(r.GroupID)
	c.HdrVersionTag = cloneUUID(r.HdrVersionTag)
	if r.Modified != nil {
		m := *r.Modified
		c.Modified = &m
	}
	if r.SenderID != nil {
		s := *r.SenderID
		c.SenderID = &s
	}
	c.HdrEncryptedKeyHeader = cloneBytes(r.HdrEncryptedKeyHeader)
	c.HdrAppData = cloneBytes(r.HdrAppData)
	c.HdrReactionSummary = cloneBytes(r.HdrReactionSummary)
	c.HdrServerData = cloneBytes(r.HdrServerData)
	c.HdrTransferHistory = cloneBytes(r.HdrTransferHistory)
	c.HdrFileMetaData = cloneBytes(r.HdrFileMetaData)
	return &c
}

// FileKey identifies a record across drives.
type FileKey struct {
	DriveID uuid.UUID
	FileID  fileid.ID
}

func (k FileKey) String() string {
	return k.DriveID.String() + "/" + k.FileID.String()
}

// DriveSize is the aggregate of all records on a drive.
type DriveSize struct {
	Count      int64 `db:"count" json:"count"`
	TotalBytes int64 `db:"total_bytes" json:"totalBytes"`
}

func cloneUUID(u *uuid.UUID) *uuid.UUID {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
