package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docproc/internal/app"
	"docproc/internal/model"
	"docproc/internal/transport/http/response"
)

type DocumentService interface {
	Upload(ctx context.Context, input app.UploadInput) (*model.Document, error)
	Create(ctx context.Context, input app.CreateInput) (*model.Document, error)
	Update(ctx context.Context, id string, details model.DocumentDetails) (*model.Document, error)
	List(ctx context.Context, botID int64) ([]model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	Delete(ctx context.Context, id string) error
	Reprocess(ctx context.Context, id string) (*model.Document, error)
}

type DocumentHandler struct {
	documents DocumentService
}

func NewDocumentHandler(documents DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload accepts a multipart form with "file" and "bot_id" and queues the file for processing.
func (h *DocumentHandler) Upload(c *gin.Context) {
	botID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("bot_id")), 10, 64)
	if err != nil || botID <= 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid bot_id")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > app.MaxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 10MB)")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, app.MaxUploadSize+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		BotID:    botID,
		Filename: file.Filename,
		Data:     data,
	})
	if err != nil {
		writeDocumentError(c, err, "upload document failed")
		return
	}
	response.OK(c, doc)
}

type CreateDocumentRequest struct {
	BotID      int64  `json:"bot_id" binding:"required,gt=0"`
	Filename   string `json:"filename" binding:"required"`
	StorageKey string `json:"storage_key" binding:"required"`
	MimeType   string `json:"mime_type"`
	FileSize   int64  `json:"file_size"`
}

// Create registers an object that is already in storage and queues it for processing.
func (h *DocumentHandler) Create(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), app.CreateInput{
		BotID:      req.BotID,
		Filename:   req.Filename,
		StorageKey: req.StorageKey,
		MimeType:   req.MimeType,
		FileSize:   req.FileSize,
	})
	if err != nil {
		writeDocumentError(c, err, "create document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Update(c *gin.Context) {
	var details model.DocumentDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}

	doc, err := h.documents.Update(c.Request.Context(), c.Param("id"), details)
	if err != nil {
		writeDocumentError(c, err, "update document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	var botID int64
	if s := c.Query("bot_id"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil || parsed < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid bot_id")
			return
		}
		botID = parsed
	}

	docs, err := h.documents.List(c.Request.Context(), botID)
	if err != nil {
		writeDocumentError(c, err, "list documents failed")
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDocumentError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		writeDocumentError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	doc, err := h.documents.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDocumentError(c, err, "reprocess document failed")
		return
	}
	response.OK(c, doc)
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentBusy):
		response.Error(c, http.StatusConflict, response.CodeDocumentBusy, err.Error())
	case errors.Is(err, app.ErrJobEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeQueueUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
