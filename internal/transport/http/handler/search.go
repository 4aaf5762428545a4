package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docproc/internal/app"
	"docproc/internal/transport/http/response"
)

type Searcher interface {
	Search(ctx context.Context, input app.SearchInput) ([]app.SearchHit, error)
}

type SearchHandler struct {
	searcher Searcher
}

type SearchRequest struct {
	BotID int64  `json:"bot_id" binding:"required"`
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	hits, err := h.searcher.Search(c.Request.Context(), app.SearchInput{
		BotID: req.BotID,
		Query: req.Query,
		TopK:  req.TopK,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNoSearchableDocuments), errors.Is(err, app.ErrNoChunks):
			response.Error(c, http.StatusNotFound, response.CodeNothingToSearch, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search failed")
		}
		return
	}
	response.OK(c, gin.H{"hits": hits})
}
