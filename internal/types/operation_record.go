package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KindDefault  = "DEFAULT"
	KindUpload   = "UPLOAD"
	KindMerge    = "MERGE"
	KindSplit    = "SPLIT"
	KindCompress = "COMPRESS"

	KindErrorConvert    = "ERROR_CONVERT"
	KindErrorMerge      = "ERROR_MERGE"
	KindErrorSplit      = "ERROR_SPLIT"
	KindErrorCompress   = "ERROR_COMPRESS"
	KindErrorDeleteData = "ERROR_DELETE_DATA"
)

// ConvertKind builds the conversion-specific tag, e.g. CONVERT_DOCX_TO_PDF.
func ConvertKind(fromType, toType string) string {
	return "CONVERT_" + strings.ToUpper(fromType) + "_TO_" + strings.ToUpper(toType)
}

// OperationRecord is one ledger row per user-facing document operation. The
// record is never physically removed; Deleted flips when the sweeper reclaims
// the backing artifacts.
type OperationRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ArtifactKeys   datatypes.JSON `gorm:"column:artifact_keys;not null;default:'[]'" json:"artifact_keys"`
	OperationKind  string         `gorm:"column:operation_kind;not null;default:'DEFAULT'" json:"operation_kind"`
	StartedAt      time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	EndedAt        time.Time      `gorm:"column:ended_at;not null" json:"ended_at"`
	FailureReason  string         `gorm:"column:failure_reason;not null;default:''" json:"failure_reason"`
	Deleted        bool           `gorm:"column:deleted;not null;default:false;index" json:"deleted"`
	RequestContext datatypes.JSON `gorm:"column:request_context" json:"request_context,omitempty"`
}

func (OperationRecord) TableName() string { return "operation_record" }

func (r *OperationRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = r.StartedAt
	}
	if len(r.ArtifactKeys) == 0 {
		r.ArtifactKeys = datatypes.JSON([]byte("[]"))
	}
	if r.OperationKind == "" {
		r.OperationKind = KindDefault
	}
	return nil
}

// Keys decodes artifact_keys. A record reclaimed by the sweeper decodes to an
// empty slice.
func (r *OperationRecord) Keys() []string {
	if len(r.ArtifactKeys) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(r.ArtifactKeys, &keys); err != nil {
		return nil
	}
	return keys
}

func (r *OperationRecord) SetKeys(keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	r.ArtifactKeys = datatypes.JSON(raw)
	return nil
}

// Failed reports whether this record carries a recorded failure.
func (r *OperationRecord) Failed() bool { return r.FailureReason != "" }
