package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "net/http"
  "path/filepath"
  "time"
  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/docpress/docpress-backend/internal/apierr"
  "github.com/docpress/docpress-backend/internal/convert"
  "github.com/docpress/docpress-backend/internal/logger"
  "github.com/docpress/docpress-backend/internal/pdftools"
  "github.com/docpress/docpress-backend/internal/repos"
  "github.com/docpress/docpress-backend/internal/types"
)

const (
  MergeMinSources = 2
  MergeMaxSources = 5

  uploadFanout = 8
)

type UploadResult struct {
  URL      string    `json:"url"`
  Key      string    `json:"key"`
  RecordID uuid.UUID `json:"record_id"`
}

type ConvertInput struct {
  SourceURL string
  From      string
  To        string
  FromType  string
  ToType    string
  Pages     []int // optional, 1-based; narrows a one-to-many conversion
  RecordID  uuid.UUID
}

type ConvertResult struct {
  URLs     []string  `json:"urls"`
  Keys     []string  `json:"keys"`
  RecordID uuid.UUID `json:"record_id"`
}

type MergeInput struct {
  SourceURLs   []string
  ConsumedKeys []string
  RecordID     uuid.UUID
}

type SplitInput struct {
  SourceURL string
  Pages     []int // 1-based, order and repeats preserved
  RecordID  uuid.UUID
}

type CompressInput struct {
  SourceURL string
  RecordID  uuid.UUID
}

type OperationResult struct {
  URL      string    `json:"url"`
  Key      string    `json:"key"`
  RecordID uuid.UUID `json:"record_id"`
}

// DocumentService orchestrates the five document operations. Each call
// touches exactly one ledger record: the success path appends keys and
// retags, the failure path writes one ERROR_* update and surfaces an opaque
// internal error.
type DocumentService interface {
  Upload(ctx context.Context, data []byte, filename string, requestContext map[string]interface{}) (*UploadResult, error)
  Convert(ctx context.Context, in ConvertInput) (*ConvertResult, error)
  Merge(ctx context.Context, in MergeInput) (*OperationResult, error)
  Split(ctx context.Context, in SplitInput) (*OperationResult, error)
  Compress(ctx context.Context, in CompressInput) (*OperationResult, error)
}

type documentService struct {
  db             *gorm.DB
  log            *logger.Logger
  records        repos.OperationRecordRepo
  bucket         BucketService
  fetch          SourceFetcher
  registry       *convert.Registry
  tools          pdftools.Tools
  maxUploadBytes int64
}

func NewDocumentService(
  db *gorm.DB,
  baseLog *logger.Logger,
  records repos.OperationRecordRepo,
  bucket BucketService,
  fetch SourceFetcher,
  registry *convert.Registry,
  tools pdftools.Tools,
  maxUploadBytes int64,
) DocumentService {
  if maxUploadBytes <= 0 {
    maxUploadBytes = 64 << 20
  }
  return &documentService{
    db:             db,
    log:            baseLog.With("service", "DocumentService"),
    records:        records,
    bucket:         bucket,
    fetch:          fetch,
    registry:       registry,
    tools:          tools,
    maxUploadBytes: maxUploadBytes,
  }
}

func (s *documentService) Upload(ctx context.Context, data []byte, filename string, requestContext map[string]interface{}) (*UploadResult, error) {
  if len(data) == 0 {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("uploaded file is empty"))
  }
  if int64(len(data)) > s.maxUploadBytes {
    return nil, apierr.New(http.StatusRequestEntityTooLarge, apierr.CodePayloadTooLarge, fmt.Errorf("uploaded file exceeds %d bytes", s.maxUploadBytes))
  }

  // The record id exists before the artifact does.
  recordID := uuid.New()
  key := uuid.New().String() + filepath.Ext(filename)

  if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(data)); err != nil {
    s.log.Error("Upload to artifact store failed", "key", key, "error", err)
    return nil, apierr.Internal()
  }

  now := time.Now().UTC()
  rec := &types.OperationRecord{
    ID:            recordID,
    OperationKind: types.KindUpload,
    StartedAt:     now,
    EndedAt:       now,
  }
  if err := rec.SetKeys([]string{key}); err != nil {
    return nil, apierr.Internal()
  }
  if requestContext != nil {
    raw, err := json.Marshal(requestContext)
    if err == nil {
      rec.RequestContext = datatypes.JSON(raw)
    }
  }
  if _, err := s.records.Create(ctx, nil, rec); err != nil {
    s.log.Error("Failed to create operation record", "record_id", recordID, "error", err)
    return nil, apierr.Internal()
  }

  return &UploadResult{
    URL:      s.bucket.GetPublicURL(key),
    Key:      key,
    RecordID: recordID,
  }, nil
}

func (s *documentService) Convert(ctx context.Context, in ConvertInput) (*ConvertResult, error) {
  conv, err := s.registry.Resolve(in.From, in.To)
  if err != nil {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeUnsupportedConversion, err)
  }
  if in.SourceURL == "" {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("source url is required"))
  }
  if in.RecordID == uuid.Nil {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("record id is required"))
  }
  for _, p := range in.Pages {
    if p < 1 {
      return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("pages are 1-based, got %d", p))
    }
  }

  src, err := s.fetch.Fetch(ctx, in.SourceURL)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorConvert, "fetch", err)
  }

  outputs, err := conv.Convert(ctx, src, in.FromType)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorConvert, "convert", err)
  }
  if len(outputs) == 0 {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorConvert, "convert", fmt.Errorf("converter produced no output"))
  }
  if len(in.Pages) > 0 && conv.OneToMany() {
    selected := make([][]byte, 0, len(in.Pages))
    for _, p := range in.Pages {
      if p > len(outputs) {
        return nil, s.failOp(ctx, in.RecordID, types.KindErrorConvert, "convert",
          fmt.Errorf("page %d out of range, document has %d pages", p, len(outputs)))
      }
      selected = append(selected, outputs[p-1])
    }
    outputs = selected
  }

  keys, err := s.uploadAll(ctx, outputs, conv.OutputExt())
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorConvert, "upload", err)
  }

  kind := types.ConvertKind(in.FromType, in.ToType)
  if err := s.records.AppendKeysAndRetag(ctx, nil, in.RecordID, keys, kind); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorConvert, "ledger", err)
  }

  urls := make([]string, len(keys))
  for i, k := range keys {
    urls[i] = s.bucket.GetPublicURL(k)
  }
  return &ConvertResult{URLs: urls, Keys: keys, RecordID: in.RecordID}, nil
}

func (s *documentService) Merge(ctx context.Context, in MergeInput) (*OperationResult, error) {
  if len(in.SourceURLs) < MergeMinSources || len(in.SourceURLs) > MergeMaxSources {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput,
      fmt.Errorf("merge takes between %d and %d sources, got %d", MergeMinSources, MergeMaxSources, len(in.SourceURLs)))
  }
  if in.RecordID == uuid.Nil {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("record id is required"))
  }

  sources, err := s.fetchAll(ctx, in.SourceURLs)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorMerge, "fetch", err)
  }

  merged, err := s.tools.MergePDFs(ctx, sources)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorMerge, "merge", err)
  }

  key := uuid.New().String() + ".pdf"
  if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(merged)); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorMerge, "upload", err)
  }

  // The merged artifact plus the consumed inputs land on the record
  // together: the output and its provenance share one append.
  keys := append([]string{key}, in.ConsumedKeys...)
  if err := s.records.AppendKeysAndRetag(ctx, nil, in.RecordID, keys, types.KindMerge); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorMerge, "ledger", err)
  }

  return &OperationResult{URL: s.bucket.GetPublicURL(key), Key: key, RecordID: in.RecordID}, nil
}

func (s *documentService) Split(ctx context.Context, in SplitInput) (*OperationResult, error) {
  if in.SourceURL == "" {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("source url is required"))
  }
  if len(in.Pages) == 0 {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("at least one page is required"))
  }
  for _, p := range in.Pages {
    if p < 1 {
      return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("pages are 1-based, got %d", p))
    }
  }
  if in.RecordID == uuid.Nil {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("record id is required"))
  }

  src, err := s.fetch.Fetch(ctx, in.SourceURL)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorSplit, "fetch", err)
  }

  out, err := s.tools.ExtractPDFPages(ctx, src, in.Pages)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorSplit, "split", err)
  }

  key := uuid.New().String() + ".pdf"
  if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(out)); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorSplit, "upload", err)
  }

  if err := s.records.AppendKeysAndRetag(ctx, nil, in.RecordID, []string{key}, types.KindSplit); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorSplit, "ledger", err)
  }

  return &OperationResult{URL: s.bucket.GetPublicURL(key), Key: key, RecordID: in.RecordID}, nil
}

func (s *documentService) Compress(ctx context.Context, in CompressInput) (*OperationResult, error) {
  if in.SourceURL == "" {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("source url is required"))
  }
  if in.RecordID == uuid.Nil {
    return nil, apierr.New(http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("record id is required"))
  }

  src, err := s.fetch.Fetch(ctx, in.SourceURL)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorCompress, "fetch", err)
  }

  out, err := s.tools.CompressPDF(ctx, src)
  if err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorCompress, "compress", err)
  }

  key := uuid.New().String() + ".pdf"
  if err := s.bucket.UploadFile(ctx, key, bytes.NewReader(out)); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorCompress, "upload", err)
  }

  if err := s.records.AppendKeysAndRetag(ctx, nil, in.RecordID, []string{key}, types.KindCompress); err != nil {
    return nil, s.failOp(ctx, in.RecordID, types.KindErrorCompress, "ledger", err)
  }

  return &OperationResult{URL: s.bucket.GetPublicURL(key), Key: key, RecordID: in.RecordID}, nil
}

// failOp records the failure once and hands the caller an opaque internal
// error. Artifacts uploaded before the failure stay in the bucket without a
// ledger entry; the retention sweep ages them out.
func (s *documentService) failOp(ctx context.Context, id uuid.UUID, errKind, stage string, cause error) error {
  s.log.Error("Operation failed", "record_id", id, "kind", errKind, "stage", stage, "error", cause)
  reason := fmt.Sprintf("%s: %v", stage, cause)
  if err := s.records.MarkFailed(ctx, nil, id, errKind, reason); err != nil {
    s.log.Error("Failed to write failure to ledger", "record_id", id, "error", err)
  }
  return apierr.Internal()
}

// fetchAll loads every source concurrently while keeping input order: slot i
// always holds the bytes of url i, whatever order the fetches complete in.
func (s *documentService) fetchAll(ctx context.Context, urls []string) ([][]byte, error) {
  results := make([][]byte, len(urls))
  g, gctx := errgroup.WithContext(ctx)
  for i, url := range urls {
    i, url := i, url
    g.Go(func() error {
      data, err := s.fetch.Fetch(gctx, url)
      if err != nil {
        return err
      }
      results[i] = data
      return nil
    })
  }
  if err := g.Wait(); err != nil {
    return nil, err
  }
  return results, nil
}

// uploadAll stores every output concurrently. Keys are generated up front so
// the appended key order is page order, not upload completion order.
func (s *documentService) uploadAll(ctx context.Context, outputs [][]byte, ext string) ([]string, error) {
  keys := make([]string, len(outputs))
  for i := range outputs {
    keys[i] = uuid.New().String() + ext
  }
  g, gctx := errgroup.WithContext(ctx)
  g.SetLimit(uploadFanout)
  for i := range outputs {
    i := i
    g.Go(func() error {
      return s.bucket.UploadFile(gctx, keys[i], bytes.NewReader(outputs[i]))
    })
  }
  if err := g.Wait(); err != nil {
    return nil, err
  }
  return keys, nil
}
