package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskforge-io/taskforge/internal/cache"
	"github.com/taskforge-io/taskforge/internal/pages"
)

const maxSectionBodyBytes = 1 << 20

func (h *httpHandler) handleGetContent(c *gin.Context) {
	if cached, ok := h.cache.Get(cache.ContentKey); ok {
		respond(c, http.StatusOK, "content", cached)
		return
	}

	sections, err := h.content.All(c.Request.Context())
	if err != nil {
		h.logger.Error("content listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "content_failed")
		return
	}

	h.cache.Set(cache.ContentKey, sections)
	respond(c, http.StatusOK, "content", sections)
}

func (h *httpHandler) handleUpsertContent(c *gin.Context) {
	body, ok := readSectionBody(c)
	if !ok {
		return
	}

	if err := h.content.Upsert(c.Request.Context(), c.Param("section"), body); err != nil {
		h.logger.Error("content upsert failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "upsert_failed")
		return
	}

	h.cache.Delete(cache.ContentKey)
	respond(c, http.StatusOK, "content updated", nil)
}

func (h *httpHandler) handleListPublishedPages(c *gin.Context) {
	if cached, ok := h.cache.Get(cache.PagesPublishedKey); ok {
		respond(c, http.StatusOK, "pages", cached)
		return
	}

	listing, err := h.pages.ListPublished(c.Request.Context())
	if err != nil {
		h.logger.Error("page listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "list_failed")
		return
	}

	h.cache.Set(cache.PagesPublishedKey, listing)
	respond(c, http.StatusOK, "pages", listing)
}

func (h *httpHandler) handleListAllPages(c *gin.Context) {
	if cached, ok := h.cache.Get(cache.PagesAllKey); ok {
		respond(c, http.StatusOK, "pages", cached)
		return
	}

	listing, err := h.pages.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("page listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "list_failed")
		return
	}

	h.cache.Set(cache.PagesAllKey, listing)
	respond(c, http.StatusOK, "pages", listing)
}

type pageCreatePayload struct {
	Title   string `json:"title"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (h *httpHandler) handleCreatePage(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request pageCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Title == "" {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	page, err := h.pages.Create(c.Request.Context(), userID, request.Title, request.Path, request.Content)
	switch {
	case errors.Is(err, pages.ErrInvalidPath):
		respondError(c, http.StatusBadRequest, "invalid_path")
		return
	case errors.Is(err, pages.ErrPathTaken):
		respondError(c, http.StatusBadRequest, "path_taken")
		return
	case err != nil:
		h.logger.Error("page create failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "create_failed")
		return
	}

	h.invalidatePageListings()
	respond(c, http.StatusCreated, "page created", page)
}

type pageUpdatePayload struct {
	Title     *string `json:"title"`
	Path      *string `json:"path"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
}

func (h *httpHandler) handleUpdatePage(c *gin.Context) {
	pageID := c.Param("id")

	var request pageUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	page, err := h.pages.Update(c.Request.Context(), pageID, pages.Update{
		Title:     request.Title,
		Path:      request.Path,
		Content:   request.Content,
		Published: request.Published,
	})
	switch {
	case errors.Is(err, pages.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, pages.ErrInvalidPath):
		respondError(c, http.StatusBadRequest, "invalid_path")
		return
	case errors.Is(err, pages.ErrPathTaken):
		respondError(c, http.StatusBadRequest, "path_taken")
		return
	case err != nil:
		h.logger.Error("page update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "update_failed")
		return
	}

	h.invalidatePageListings()
	respond(c, http.StatusOK, "page updated", page)
}

func (h *httpHandler) handleDeletePage(c *gin.Context) {
	pageID := c.Param("id")

	if _, err := h.pages.Get(c.Request.Context(), pageID); errors.Is(err, pages.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}

	if err := h.pages.Delete(c.Request.Context(), pageID); err != nil {
		h.logger.Error("page delete failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "delete_failed")
		return
	}

	h.invalidatePageListings()
	h.cache.Delete(cache.PageContentKey(pageID))
	respond(c, http.StatusOK, "page deleted", nil)
}

func (h *httpHandler) handleGetPageContent(c *gin.Context) {
	pageID := c.Param("id")

	if cached, ok := h.cache.Get(cache.PageContentKey(pageID)); ok {
		respond(c, http.StatusOK, "page content", cached)
		return
	}

	if _, err := h.pages.Get(c.Request.Context(), pageID); errors.Is(err, pages.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}

	sections, err := h.pages.SectionMap(c.Request.Context(), pageID)
	if err != nil {
		h.logger.Error("page content failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "content_failed")
		return
	}

	h.cache.Set(cache.PageContentKey(pageID), sections)
	respond(c, http.StatusOK, "page content", sections)
}

func (h *httpHandler) handleUpsertPageSection(c *gin.Context) {
	pageID := c.Param("id")

	body, ok := readSectionBody(c)
	if !ok {
		return
	}

	err := h.pages.UpsertSection(c.Request.Context(), pageID, c.Param("section"), body)
	if errors.Is(err, pages.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("page section upsert failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "upsert_failed")
		return
	}

	h.cache.Delete(cache.PageContentKey(pageID))
	respond(c, http.StatusOK, "page content updated", nil)
}

func (h *httpHandler) invalidatePageListings() {
	h.cache.Delete(cache.PagesAllKey)
	h.cache.Delete(cache.PagesPublishedKey)
}

// readSectionBody accepts any valid JSON document as the section content.
func readSectionBody(c *gin.Context) (json.RawMessage, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSectionBodyBytes))
	if err != nil || !json.Valid(raw) {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return nil, false
	}
	return json.RawMessage(raw), true
}
