package handlers

import (
  "fmt"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/docpress/docpress-backend/internal/apierr"
  "github.com/docpress/docpress-backend/internal/services"
)

type AnalyticsHandler struct {
  analyticsService services.AnalyticsService
  username         string
  password         string
}

func NewAnalyticsHandler(analyticsService services.AnalyticsService, username, password string) *AnalyticsHandler {
  return &AnalyticsHandler{
    analyticsService: analyticsService,
    username:         username,
    password:         password,
  }
}

func (ah *AnalyticsHandler) Report(c *gin.Context) {
  var req struct {
    Username string `json:"username"`
    Password string `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  if ah.username == "" || req.Username != ah.username || req.Password != ah.password {
    RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("invalid analytics credentials"))
    return
  }

  report, err := ah.analyticsService.Report(c.Request.Context())
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, report)
}
