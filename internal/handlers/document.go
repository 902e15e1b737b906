package handlers

import (
  "io"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/docpress/docpress-backend/internal/apierr"
  "github.com/docpress/docpress-backend/internal/middleware"
  "github.com/docpress/docpress-backend/internal/services"
)

type DocumentHandler struct {
  documentService services.DocumentService
}

func NewDocumentHandler(documentService services.DocumentService) *DocumentHandler {
  return &DocumentHandler{documentService: documentService}
}

func (dh *DocumentHandler) Upload(c *gin.Context) {
  fileHeader, err := c.FormFile("file")
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  f, err := fileHeader.Open()
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  defer f.Close()
  data, err := io.ReadAll(f)
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }

  result, err := dh.documentService.Upload(c.Request.Context(), data, fileHeader.Filename, middleware.RequestContextFrom(c))
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

func (dh *DocumentHandler) Convert(c *gin.Context) {
  var req struct {
    URL      string `json:"url" binding:"required,url"`
    From     string `json:"from" binding:"required"`
    To       string `json:"to" binding:"required"`
    FromType string `json:"fromType" binding:"required"`
    ToType   string `json:"toType" binding:"required"`
    Pages    []int  `json:"pages"`
    RecordID string `json:"recordId" binding:"required"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  recordID, err := uuid.Parse(req.RecordID)
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }

  result, err := dh.documentService.Convert(c.Request.Context(), services.ConvertInput{
    SourceURL: req.URL,
    From:      req.From,
    To:        req.To,
    FromType:  req.FromType,
    ToType:    req.ToType,
    Pages:     req.Pages,
    RecordID:  recordID,
  })
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

func (dh *DocumentHandler) Merge(c *gin.Context) {
  var req struct {
    URLs     []string `json:"urls" binding:"required,min=2,max=5,dive,url"`
    Keys     []string `json:"keys"`
    RecordID string   `json:"recordId" binding:"required"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  recordID, err := uuid.Parse(req.RecordID)
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }

  result, err := dh.documentService.Merge(c.Request.Context(), services.MergeInput{
    SourceURLs:   req.URLs,
    ConsumedKeys: req.Keys,
    RecordID:     recordID,
  })
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

func (dh *DocumentHandler) Split(c *gin.Context) {
  var req struct {
    URL      string `json:"url" binding:"required,url"`
    Pages    []int  `json:"pages" binding:"required,min=1"`
    RecordID string `json:"recordId" binding:"required"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  recordID, err := uuid.Parse(req.RecordID)
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }

  result, err := dh.documentService.Split(c.Request.Context(), services.SplitInput{
    SourceURL: req.URL,
    Pages:     req.Pages,
    RecordID:  recordID,
  })
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

func (dh *DocumentHandler) Compress(c *gin.Context) {
  var req struct {
    URL      string `json:"url" binding:"required,url"`
    RecordID string `json:"recordId" binding:"required"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }
  recordID, err := uuid.Parse(req.RecordID)
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, err)
    return
  }

  result, err := dh.documentService.Compress(c.Request.Context(), services.CompressInput{
    SourceURL: req.URL,
    RecordID:  recordID,
  })
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}
