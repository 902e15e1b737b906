package repos

import (
  "context"
  "encoding/json"
  "fmt"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/docpress/docpress-backend/internal/logger"
  "github.com/docpress/docpress-backend/internal/types"
)

// OperationRecordRepo is the ledger store boundary. Mutations are keyed
// single-record updates; AppendKeysAndRetag and MarkFailed refuse to touch a
// record the sweeper already reclaimed.
type OperationRecordRepo interface {
  Create(ctx context.Context, tx *gorm.DB, rec *types.OperationRecord) (*types.OperationRecord, error)
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.OperationRecord, error)
  AppendKeysAndRetag(ctx context.Context, tx *gorm.DB, id uuid.UUID, keys []string, kind string) error
  MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, kind, reason string) error
  ListExpired(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.OperationRecord, error)
  ReclaimByStartedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
  ListAll(ctx context.Context, tx *gorm.DB) ([]*types.OperationRecord, error)
}

type operationRecordRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewOperationRecordRepo(db *gorm.DB, baseLog *logger.Logger) OperationRecordRepo {
  repoLog := baseLog.With("repo", "OperationRecordRepo")
  return &operationRecordRepo{db: db, log: repoLog}
}

func (r *operationRecordRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.OperationRecord) (*types.OperationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if rec == nil {
    return nil, fmt.Errorf("No record given")
  }

  if err := transaction.WithContext(ctx).Create(rec).Error; err != nil {
    return nil, err
  }
  return rec, nil
}

func (r *operationRecordRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.OperationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var rec types.OperationRecord
  if err := transaction.WithContext(ctx).
    Where("id = ?", id).
    First(&rec).Error; err != nil {
    return nil, err
  }
  return &rec, nil
}

// AppendKeysAndRetag appends keys in the given order, rewrites the kind and
// bumps ended_at, all in one keyed update. The write is conditioned on
// deleted = false so it can never race the sweeper's reclaim.
func (r *operationRecordRepo) AppendKeysAndRetag(ctx context.Context, tx *gorm.DB, id uuid.UUID, keys []string, kind string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(keys) == 0 {
    return fmt.Errorf("No keys to append for record %s", id)
  }

  rec, err := r.GetByID(ctx, transaction, id)
  if err != nil {
    return err
  }
  merged := append(rec.Keys(), keys...)
  raw, err := json.Marshal(merged)
  if err != nil {
    return err
  }

  res := transaction.WithContext(ctx).
    Model(&types.OperationRecord{}).
    Where("id = ? AND deleted = ?", id, false).
    Updates(map[string]interface{}{
      "artifact_keys":  datatypes.JSON(raw),
      "operation_kind": kind,
      "ended_at":       time.Now().UTC(),
    })
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return fmt.Errorf("Append on record %s: %w", id, gorm.ErrRecordNotFound)
  }
  return nil
}

func (r *operationRecordRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, kind, reason string) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if reason == "" {
    reason = "unknown failure"
  }

  res := transaction.WithContext(ctx).
    Model(&types.OperationRecord{}).
    Where("id = ? AND deleted = ?", id, false).
    Updates(map[string]interface{}{
      "operation_kind": kind,
      "failure_reason": reason,
      "ended_at":       time.Now().UTC(),
    })
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return fmt.Errorf("MarkFailed on record %s: %w", id, gorm.ErrRecordNotFound)
  }
  return nil
}

func (r *operationRecordRepo) ListExpired(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.OperationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.OperationRecord
  if err := transaction.WithContext(ctx).
    Where("deleted = ? AND started_at <= ?", false, cutoff).
    Order("started_at asc").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

// ReclaimByStartedBefore flips deleted and clears artifact_keys for every
// expired record in a single statement, so a record is never observed deleted
// while still holding keys.
func (r *operationRecordRepo) ReclaimByStartedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  res := transaction.WithContext(ctx).
    Model(&types.OperationRecord{}).
    Where("deleted = ? AND started_at <= ?", false, cutoff).
    Updates(map[string]interface{}{
      "deleted":       true,
      "artifact_keys": datatypes.JSON([]byte("[]")),
    })
  if res.Error != nil {
    return 0, res.Error
  }
  return res.RowsAffected, nil
}

// ListAll returns the projection the analytics rollups need. Artifact keys
// and request context are left out on purpose.
func (r *operationRecordRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.OperationRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.OperationRecord
  if err := transaction.WithContext(ctx).
    Select("id", "operation_kind", "started_at", "ended_at", "failure_reason", "deleted").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
