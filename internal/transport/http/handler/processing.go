package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docproc/internal/app"
	"docproc/internal/transport/http/response"
)

type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) (*app.ProcessingResult, error)
}

type ProcessingHandler struct {
	processor DocumentProcessor
}

func NewProcessingHandler(processor DocumentProcessor) *ProcessingHandler {
	return &ProcessingHandler{processor: processor}
}

// Sync runs the pipeline for one document inside the request and returns its result.
func (h *ProcessingHandler) Sync(c *gin.Context) {
	result, err := h.processor.ProcessByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		case errors.Is(err, app.ErrDocumentBusy):
			response.Error(c, http.StatusConflict, response.CodeDocumentBusy, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case result != nil:
			response.ErrorWithData(c, http.StatusInternalServerError, response.CodeInternalServer, "processing failed: "+err.Error(), result)
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "processing failed")
		}
		return
	}
	response.OK(c, result)
}
