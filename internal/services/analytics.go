package services

import (
  "context"
  "sort"
  "gorm.io/gorm"
  "github.com/docpress/docpress-backend/internal/logger"
  "github.com/docpress/docpress-backend/internal/repos"
)

type BucketCount struct {
  Bucket int   `json:"bucket"`
  Count  int64 `json:"count"`
}

type KindCount struct {
  Kind  string `json:"kind"`
  Count int64  `json:"count"`
}

type DeletedCount struct {
  Deleted bool  `json:"deleted"`
  Count   int64 `json:"count"`
}

type AnalyticsReport struct {
  Years      []BucketCount  `json:"years"`
  Weeks      []BucketCount  `json:"weeks"`
  Months     []BucketCount  `json:"months"`
  Days       []BucketCount  `json:"days"`
  Hours      []BucketCount  `json:"hours"`
  Deleted    []DeletedCount `json:"deleted"`
  Failed     int64          `json:"failed"`
  Operations []KindCount    `json:"operations"`
}

// AnalyticsService is a read-only rollup over the ledger: time-bucketed
// counts, deleted-state counts, failure count and operation-kind breakdown.
type AnalyticsService interface {
  Report(ctx context.Context) (*AnalyticsReport, error)
}

type analyticsService struct {
  db      *gorm.DB
  log     *logger.Logger
  records repos.OperationRecordRepo
}

func NewAnalyticsService(db *gorm.DB, baseLog *logger.Logger, records repos.OperationRecordRepo) AnalyticsService {
  return &analyticsService{
    db:      db,
    log:     baseLog.With("service", "AnalyticsService"),
    records: records,
  }
}

func (s *analyticsService) Report(ctx context.Context) (*AnalyticsReport, error) {
  all, err := s.records.ListAll(ctx, nil)
  if err != nil {
    return nil, err
  }

  years := map[int]int64{}
  weeks := map[int]int64{}
  months := map[int]int64{}
  days := map[int]int64{}
  hours := map[int]int64{}
  deleted := map[bool]int64{}
  kinds := map[string]int64{}
  var failed int64

  for _, rec := range all {
    ts := rec.StartedAt.UTC()
    years[ts.Year()]++
    _, week := ts.ISOWeek()
    weeks[week]++
    months[int(ts.Month())]++
    days[ts.Day()]++
    hours[ts.Hour()]++
    deleted[rec.Deleted]++
    kinds[rec.OperationKind]++
    if rec.Failed() {
      failed++
    }
  }

  report := &AnalyticsReport{
    Years:  bucketCounts(years),
    Weeks:  bucketCounts(weeks),
    Months: bucketCounts(months),
    Days:   bucketCounts(days),
    Hours:  bucketCounts(hours),
    Failed: failed,
  }
  for _, d := range []bool{false, true} {
    if n, ok := deleted[d]; ok {
      report.Deleted = append(report.Deleted, DeletedCount{Deleted: d, Count: n})
    }
  }
  for kind, n := range kinds {
    report.Operations = append(report.Operations, KindCount{Kind: kind, Count: n})
  }
  sort.Slice(report.Operations, func(i, j int) bool {
    return report.Operations[i].Kind < report.Operations[j].Kind
  })
  return report, nil
}

func bucketCounts(m map[int]int64) []BucketCount {
  out := make([]BucketCount, 0, len(m))
  for bucket, count := range m {
    out = append(out, BucketCount{Bucket: bucket, Count: count})
  }
  sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
  return out
}
