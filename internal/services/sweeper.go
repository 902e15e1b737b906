package services

import (
  "context"
  "fmt"
  "sync"
  "time"
  "gorm.io/gorm"
  "github.com/docpress/docpress-backend/internal/logger"
  "github.com/docpress/docpress-backend/internal/repos"
  "github.com/docpress/docpress-backend/internal/types"
)

type SweepState string

const (
  SweepStateIdle     SweepState = "idle"
  SweepStateScanning SweepState = "scanning"
  SweepStateDeleting SweepState = "deleting"
  SweepStateUpdating SweepState = "updating"
)

// RetentionSweeper reclaims artifacts of records older than the retention
// window. It only ever selects records past that window, so it cannot race an
// orchestrator still appending keys; one sweep runs at a time.
type RetentionSweeper struct {
  db        *gorm.DB
  log       *logger.Logger
  records   repos.OperationRecordRepo
  bucket    BucketService
  retention time.Duration
  interval  time.Duration
  batchSize int

  running sync.Mutex

  stateMu sync.Mutex
  state   SweepState
}

func NewRetentionSweeper(
  db *gorm.DB,
  baseLog *logger.Logger,
  records repos.OperationRecordRepo,
  bucket BucketService,
  retention time.Duration,
  interval time.Duration,
  batchSize int,
) *RetentionSweeper {
  if retention <= 0 {
    retention = time.Hour
  }
  if interval <= 0 {
    interval = 30 * time.Minute
  }
  if batchSize <= 0 {
    batchSize = 1000
  }
  return &RetentionSweeper{
    db:        db,
    log:       baseLog.With("service", "RetentionSweeper"),
    records:   records,
    bucket:    bucket,
    retention: retention,
    interval:  interval,
    batchSize: batchSize,
    state:     SweepStateIdle,
  }
}

// Start runs the sweep loop until ctx is cancelled. A tick that fires while
// the previous sweep is still running is skipped, never run in parallel.
func (s *RetentionSweeper) Start(ctx context.Context) {
  go func() {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()
    s.log.Info("Retention sweeper started", "interval", s.interval, "retention", s.retention, "batch_size", s.batchSize)
    for {
      select {
      case <-ctx.Done():
        return
      case <-ticker.C:
        if !s.running.TryLock() {
          s.log.Warn("Previous sweep still running, skipping tick")
          continue
        }
        if err := s.sweepLocked(ctx, time.Now().UTC()); err != nil {
          s.log.Error("Sweep failed", "error", err)
        }
        s.running.Unlock()
      }
    }
  }()
}

// SweepOnce runs a single sweep cycle, serialized against the ticker loop.
func (s *RetentionSweeper) SweepOnce(ctx context.Context, now time.Time) error {
  s.running.Lock()
  defer s.running.Unlock()
  return s.sweepLocked(ctx, now)
}

func (s *RetentionSweeper) State() SweepState {
  s.stateMu.Lock()
  defer s.stateMu.Unlock()
  return s.state
}

func (s *RetentionSweeper) setState(st SweepState) {
  s.stateMu.Lock()
  s.state = st
  s.stateMu.Unlock()
}

func (s *RetentionSweeper) sweepLocked(ctx context.Context, now time.Time) error {
  defer s.setState(SweepStateIdle)

  s.setState(SweepStateScanning)
  cutoff := now.Add(-s.retention)
  expired, err := s.records.ListExpired(ctx, nil, cutoff)
  if err != nil {
    return fmt.Errorf("Failed to list expired records: %w", err)
  }
  if len(expired) == 0 {
    return nil
  }

  keys := make([]string, 0, len(expired))
  for _, rec := range expired {
    keys = append(keys, rec.Keys()...)
  }
  s.log.Info("Sweep selected expired records", "records", len(expired), "keys", len(keys), "cutoff", cutoff)

  s.setState(SweepStateDeleting)
  for _, chunk := range chunkKeys(keys, s.batchSize) {
    failed, err := s.bucket.DeleteFiles(ctx, chunk)
    if err != nil || len(failed) > 0 {
      cause := fmt.Sprintf("batch delete failed for %d of %d keys: %v", len(failed), len(chunk), err)
      s.recordSweepFailure(ctx, now, cause)
      // The matched records stay untouched so the next tick retries them.
      return fmt.Errorf("%s", cause)
    }
  }

  s.setState(SweepStateUpdating)
  reclaimed, err := s.records.ReclaimByStartedBefore(ctx, nil, cutoff)
  if err != nil {
    cause := fmt.Sprintf("reclaim update failed: %v", err)
    s.recordSweepFailure(ctx, now, cause)
    return fmt.Errorf("%s", cause)
  }
  s.log.Info("Sweep reclaimed records", "records", reclaimed, "keys_deleted", len(keys))
  return nil
}

// recordSweepFailure writes the synthetic ERROR_DELETE_DATA record. It is
// born deleted so it never becomes a sweep candidate itself.
func (s *RetentionSweeper) recordSweepFailure(ctx context.Context, now time.Time, cause string) {
  rec := &types.OperationRecord{
    OperationKind: types.KindErrorDeleteData,
    StartedAt:     now,
    EndedAt:       now,
    FailureReason: cause,
    Deleted:       true,
  }
  if _, err := s.records.Create(ctx, nil, rec); err != nil {
    s.log.Error("Failed to write sweep failure record", "error", err)
  }
}

func chunkKeys(keys []string, size int) [][]string {
  if size <= 0 || len(keys) == 0 {
    return nil
  }
  chunks := make([][]string, 0, (len(keys)+size-1)/size)
  for start := 0; start < len(keys); start += size {
    end := start + size
    if end > len(keys) {
      end = len(keys)
    }
    chunks = append(chunks, keys[start:end])
  }
  return chunks
}
