package middleware

import (
  "github.com/gin-gonic/gin"
)

const RequestContextKey = "request_context"

// RequestInfo captures the client origin metadata that gets frozen onto a
// ledger record at creation time.
func RequestInfo() gin.HandlerFunc {
  return func(c *gin.Context) {
    info := map[string]interface{}{
      "client_ip":  c.ClientIP(),
      "user_agent": c.Request.UserAgent(),
      "referer":    c.Request.Referer(),
      "method":     c.Request.Method,
      "path":       c.Request.URL.Path,
    }
    c.Set(RequestContextKey, info)
    c.Next()
  }
}

// RequestContextFrom reads what RequestInfo captured, nil when the middleware
// did not run.
func RequestContextFrom(c *gin.Context) map[string]interface{} {
  v, ok := c.Get(RequestContextKey)
  if !ok {
    return nil
  }
  info, ok := v.(map[string]interface{})
  if !ok {
    return nil
  }
  return info
}
