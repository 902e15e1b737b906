package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docpress/docpress-backend/internal/logger"
	"github.com/docpress/docpress-backend/internal/repos"
	"github.com/docpress/docpress-backend/internal/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.OperationRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedDBRecord(t *testing.T, db *gorm.DB, startedAt time.Time, kind string, keys ...string) uuid.UUID {
	t.Helper()
	rec := &types.OperationRecord{
		ID:            uuid.New(),
		OperationKind: kind,
		StartedAt:     startedAt,
		EndedAt:       startedAt,
	}
	if err := rec.SetKeys(keys); err != nil {
		t.Fatalf("SetKeys: %v", err)
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec.ID
}

type sweepEnv struct {
	db      *gorm.DB
	records repos.OperationRecordRepo
	bucket  *fakeBucket
	sweeper *RetentionSweeper
}

func newSweepEnv(t *testing.T, retention time.Duration, batchSize int) *sweepEnv {
	t.Helper()
	db := openTestDB(t)
	log := logger.NewNop()
	records := repos.NewOperationRecordRepo(db, log)
	bucket := newFakeBucket()
	sweeper := NewRetentionSweeper(db, log, records, bucket, retention, time.Minute, batchSize)
	return &sweepEnv{db: db, records: records, bucket: bucket, sweeper: sweeper}
}

func TestSweepReclaimsOnlyExpiredRecords(t *testing.T) {
	env := newSweepEnv(t, time.Hour, 1000)
	ctx := context.Background()
	now := time.Now().UTC()

	env.bucket.objects["old-a"] = []byte("a")
	env.bucket.objects["old-b"] = []byte("b")
	env.bucket.objects["fresh-c"] = []byte("c")
	oldID := seedDBRecord(t, env.db, now.Add(-90*time.Minute), types.KindUpload, "old-a", "old-b")
	freshID := seedDBRecord(t, env.db, now.Add(-10*time.Minute), types.KindUpload, "fresh-c")

	if err := env.sweeper.SweepOnce(ctx, now); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	old, err := env.records.GetByID(ctx, nil, oldID)
	if err != nil {
		t.Fatalf("GetByID old: %v", err)
	}
	if !old.Deleted {
		t.Fatalf("record past the retention window should be reclaimed")
	}
	if keys := old.Keys(); len(keys) != 0 {
		t.Fatalf("reclaimed record should hold no keys, got %v", keys)
	}

	fresh, err := env.records.GetByID(ctx, nil, freshID)
	if err != nil {
		t.Fatalf("GetByID fresh: %v", err)
	}
	if fresh.Deleted {
		t.Fatalf("record inside the retention window must never be touched")
	}
	if keys := fresh.Keys(); len(keys) != 1 || keys[0] != "fresh-c" {
		t.Fatalf("fresh record keys = %v, want [fresh-c]", keys)
	}

	if _, ok := env.bucket.get("old-a"); ok {
		t.Fatalf("expired artifact old-a should be deleted")
	}
	if _, ok := env.bucket.get("old-b"); ok {
		t.Fatalf("expired artifact old-b should be deleted")
	}
	if _, ok := env.bucket.get("fresh-c"); !ok {
		t.Fatalf("fresh artifact must survive the sweep")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	env := newSweepEnv(t, time.Hour, 1000)
	ctx := context.Background()
	now := time.Now().UTC()

	env.bucket.objects["k"] = []byte("x")
	seedDBRecord(t, env.db, now.Add(-2*time.Hour), types.KindUpload, "k")

	if err := env.sweeper.SweepOnce(ctx, now); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	callsAfterFirst := len(env.bucket.deleteCalls)
	if err := env.sweeper.SweepOnce(ctx, now); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(env.bucket.deleteCalls) != callsAfterFirst {
		t.Fatalf("second sweep over a reclaimed ledger must not delete anything, calls went %d -> %d",
			callsAfterFirst, len(env.bucket.deleteCalls))
	}
}

func TestSweepPartialFailureLeavesRecordsForRetry(t *testing.T) {
	env := newSweepEnv(t, time.Hour, 1000)
	ctx := context.Background()
	now := time.Now().UTC()

	env.bucket.objects["good"] = []byte("g")
	env.bucket.objects["stuck"] = []byte("s")
	env.bucket.failKeys["stuck"] = true
	id := seedDBRecord(t, env.db, now.Add(-2*time.Hour), types.KindUpload, "good", "stuck")

	if err := env.sweeper.SweepOnce(ctx, now); err == nil {
		t.Fatalf("sweep with a failing delete must report an error")
	}

	rec, err := env.records.GetByID(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Deleted {
		t.Fatalf("record must stay live when its artifacts could not all be deleted")
	}
	if keys := rec.Keys(); len(keys) != 2 {
		t.Fatalf("record keys must be kept for retry, got %v", keys)
	}

	var synthetic types.OperationRecord
	if err := env.db.Where("operation_kind = ?", types.KindErrorDeleteData).First(&synthetic).Error; err != nil {
		t.Fatalf("expected a synthetic failure record: %v", err)
	}
	if !synthetic.Deleted {
		t.Fatalf("the synthetic record must be born deleted so it never becomes a sweep candidate")
	}
	if synthetic.FailureReason == "" {
		t.Fatalf("the synthetic record must carry the failure reason")
	}

	// Once the store recovers the next tick finishes the job.
	delete(env.bucket.failKeys, "stuck")
	if err := env.sweeper.SweepOnce(ctx, now); err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	rec, err = env.records.GetByID(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetByID after retry: %v", err)
	}
	if !rec.Deleted {
		t.Fatalf("record should be reclaimed once the retry succeeds")
	}
	if _, ok := env.bucket.get("stuck"); ok {
		t.Fatalf("the stuck artifact should be gone after the retry")
	}
}

func TestSweepChunksDeletes(t *testing.T) {
	env := newSweepEnv(t, time.Hour, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	for _, k := range keys {
		env.bucket.objects[k] = []byte("x")
	}
	seedDBRecord(t, env.db, now.Add(-2*time.Hour), types.KindUpload, keys...)

	if err := env.sweeper.SweepOnce(ctx, now); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	sizes := make([]int, 0, len(env.bucket.deleteCalls))
	for _, call := range env.bucket.deleteCalls {
		sizes = append(sizes, len(call))
	}
	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("delete call sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("delete call sizes = %v, want %v", sizes, want)
		}
	}
}

func TestSweepEmptyLedgerIsNoop(t *testing.T) {
	env := newSweepEnv(t, time.Hour, 1000)
	if err := env.sweeper.SweepOnce(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("SweepOnce on empty ledger: %v", err)
	}
	if len(env.bucket.deleteCalls) != 0 {
		t.Fatalf("empty ledger must not trigger deletes")
	}
	if st := env.sweeper.State(); st != SweepStateIdle {
		t.Fatalf("state after sweep = %q, want idle", st)
	}
}

func TestChunkKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		size int
		want int
	}{
		{"empty", nil, 10, 0},
		{"single chunk", []string{"a", "b"}, 10, 1},
		{"exact multiple", []string{"a", "b", "c", "d"}, 2, 2},
		{"remainder", []string{"a", "b", "c"}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkKeys(tt.keys, tt.size)
			if len(got) != tt.want {
				t.Fatalf("chunkKeys(%v, %d) produced %d chunks, want %d", tt.keys, tt.size, len(got), tt.want)
			}
			total := 0
			for _, c := range got {
				total += len(c)
			}
			if total != len(tt.keys) {
				t.Fatalf("chunks cover %d keys, want %d", total, len(tt.keys))
			}
		})
	}
}
