package services

import (
  "context"
  "fmt"
  "io"
  "net/http"
  "time"
  "github.com/docpress/docpress-backend/internal/logger"
)

// SourceFetcher loads the bytes behind a source URL handed to convert, merge,
// split and compress requests.
type SourceFetcher interface {
  Fetch(ctx context.Context, url string) ([]byte, error)
}

type httpSourceFetcher struct {
  log      *logger.Logger
  client   *http.Client
  maxBytes int64
}

func NewHTTPSourceFetcher(log *logger.Logger, maxBytes int64) SourceFetcher {
  if maxBytes <= 0 {
    maxBytes = 256 << 20
  }
  return &httpSourceFetcher{
    log:      log.With("service", "SourceFetcher"),
    client:   &http.Client{Timeout: 2 * time.Minute},
    maxBytes: maxBytes,
  }
}

func (f *httpSourceFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
  req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
  if err != nil {
    return nil, fmt.Errorf("Failed to build request for %q: %w", url, err)
  }
  resp, err := f.client.Do(req)
  if err != nil {
    return nil, fmt.Errorf("Failed to fetch %q: %w", url, err)
  }
  defer resp.Body.Close()
  if resp.StatusCode != http.StatusOK {
    return nil, fmt.Errorf("Fetch %q returned status %d", url, resp.StatusCode)
  }
  data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
  if err != nil {
    return nil, fmt.Errorf("Failed to read body of %q: %w", url, err)
  }
  if int64(len(data)) > f.maxBytes {
    return nil, fmt.Errorf("Source %q exceeds max fetch size of %d bytes", url, f.maxBytes)
  }
  if len(data) == 0 {
    return nil, fmt.Errorf("Source %q is empty", url)
  }
  return data, nil
}
