package services

import (
  "context"
  "errors"
  "fmt"
  "io"
  "os"
  "strings"
  "sync"
  "time"
  "cloud.google.com/go/storage"
  "golang.org/x/sync/errgroup"
  "google.golang.org/api/option"
  "github.com/docpress/docpress-backend/internal/logger"
)

// BucketService is the artifact store boundary: raw blobs by key. DeleteFiles
// is the batch call the sweeper issues once per chunk; it reports the keys it
// could not delete instead of failing the whole batch.
type BucketService interface {
  UploadFile(ctx context.Context, key string, file io.Reader) error
  DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
  DeleteFiles(ctx context.Context, keys []string) ([]string, error)
  GetPublicURL(key string) string
}

type bucketService struct {
  log           *logger.Logger
  storageClient *storage.Client
  bucketName    string
  cdnDomain     string
  deleteWorkers int
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
  serviceLog := log.With("service", "BucketService")
  bucket := os.Getenv("GCS_BUCKET_NAME")
  if bucket == "" {
    return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
  }
  cdnDomain := os.Getenv("CDN_DOMAIN")
  saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")
  emulatorHost := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))

  ctx := context.Background()
  var stClient *storage.Client
  var err error
  switch {
  case emulatorHost != "":
    stClient, err = storage.NewClient(ctx, option.WithoutAuthentication())
  case saPath != "":
    stClient, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
  default:
    serviceLog.Warn("GOOGLE_APPLICATION_CREDENTIALS_JSON not set, relying on ambient ADC")
    stClient, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
  }
  if err != nil {
    return nil, fmt.Errorf("Failed to create storage client: %w", err)
  }
  return &bucketService{
    log:           serviceLog,
    storageClient: stClient,
    bucketName:    bucket,
    cdnDomain:     cdnDomain,
    deleteWorkers: 16,
  }, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
  if _, err := io.Copy(w, file); err != nil {
    _ = w.Close()
    return fmt.Errorf("Failed to write data to GCS: %w", err)
  }
  if err := w.Close(); err != nil {
    return fmt.Errorf("Failed to close GCS writer: %w", err)
  }
  return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  r, err := bs.storageClient.Bucket(bs.bucketName).Object(key).NewReader(ctx)
  if err != nil {
    return nil, fmt.Errorf("Failed to open GCS object %q: %w", key, err)
  }
  return r, nil
}

// DeleteFiles deletes one chunk of keys concurrently. GCS has no multi-object
// delete call, so a batch is a bounded fan-out of single deletes. A key that
// no longer exists counts as deleted, which keeps sweep retries idempotent.
func (bs *bucketService) DeleteFiles(ctx context.Context, keys []string) ([]string, error) {
  if len(keys) == 0 {
    return nil, nil
  }
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()

  var mu sync.Mutex
  var failed []string
  g, gctx := errgroup.WithContext(ctx)
  g.SetLimit(bs.deleteWorkers)
  for _, key := range keys {
    key := key
    g.Go(func() error {
      err := bs.storageClient.Bucket(bs.bucketName).Object(key).Delete(gctx)
      if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
        bs.log.Warn("Failed to delete GCS object", "key", key, "error", err)
        mu.Lock()
        failed = append(failed, key)
        mu.Unlock()
      }
      return nil
    })
  }
  if err := g.Wait(); err != nil {
    return failed, err
  }
  if len(failed) > 0 {
    return failed, fmt.Errorf("Failed to delete %d of %d objects", len(failed), len(keys))
  }
  return nil, nil
}

func (bs *bucketService) GetPublicURL(key string) string {
  if bs.cdnDomain != "" {
    return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
  }
  return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}
