package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskforge-io/taskforge/internal/cache"
	"github.com/taskforge-io/taskforge/internal/notifications"
	"github.com/taskforge-io/taskforge/internal/realtime"
	"github.com/taskforge-io/taskforge/internal/todos"
)

type todoPagePayload struct {
	Todos      []todos.Todo
	Pagination *paginationPayload
}

func (h *httpHandler) handleListTodos(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	page, limit, ok := paginationParams(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_pagination")
		return
	}
	status := todos.ParseStatusFilter(c.Query("status"))

	cacheKey := cache.TodosKey(userID, page, limit, string(status))
	if cached, ok := h.cache.Get(cacheKey); ok {
		if payload, ok := cached.(todoPagePayload); ok {
			respondPage(c, "todos", payload.Todos, payload.Pagination)
			return
		}
	}

	result, err := h.todos.List(c.Request.Context(), userID, page, limit, status)
	if err != nil {
		h.logger.Error("todo listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "list_failed")
		return
	}

	pagination := newPagination(page, result.HasMore, result.TotalCount)
	h.cache.Set(cacheKey, todoPagePayload{Todos: result.Todos, Pagination: pagination})
	respondPage(c, "todos", result.Todos, pagination)
}

type todoCreatePayload struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Collaborators []string `json:"collaborators"`
}

func (h *httpHandler) handleCreateTodo(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request todoCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	todo, granted, err := h.todos.Create(c.Request.Context(), userID, request.Title, request.Content, request.Collaborators)
	if errors.Is(err, todos.ErrEmptyTitle) {
		respondError(c, http.StatusBadRequest, "title_required")
		return
	}
	if err != nil {
		h.logger.Error("todo create failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "create_failed")
		return
	}

	ctx := c.Request.Context()
	actorName := h.displayName(ctx, userID)
	for _, collaboratorID := range granted {
		message := fmt.Sprintf("%s shared %q with you", actorName, todo.Title)
		h.notify(ctx, collaboratorID, message, &todo.ID)
		h.gateway.EmitToUser(ctx, collaboratorID, realtime.EventTodoShared, todo)
	}
	h.gateway.BroadcastAll(ctx, realtime.EventTodoCreated, todo)

	h.cache.DeletePrefix(cache.TodosPrefix(userID))
	respond(c, http.StatusCreated, "todo created", todo)
}

func (h *httpHandler) handleGetTodo(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	todo, err := h.todos.Get(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, todos.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("todo lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "lookup_failed")
		return
	}
	respond(c, http.StatusOK, "todo", todo)
}

type todoUpdatePayload struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Completed *bool   `json:"completed"`
}

func (h *httpHandler) handleUpdateTodo(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	todoID := c.Param("id")

	var request todoUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	todo, err := h.todos.ApplyUpdate(c.Request.Context(), todoID, userID, todos.Update{
		Title:     request.Title,
		Content:   request.Content,
		Completed: request.Completed,
	})
	switch {
	case errors.Is(err, todos.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, todos.ErrNoFields):
		respondError(c, http.StatusBadRequest, "no_fields")
		return
	case err != nil:
		h.logger.Error("todo update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "update_failed")
		return
	}

	ctx := c.Request.Context()
	if todo.OwnerID != userID {
		message := fmt.Sprintf("%s updated %q", h.displayName(ctx, userID), todo.Title)
		h.notify(ctx, todo.OwnerID, message, &todo.ID)
	}
	h.gateway.EmitToRoom(ctx, todo.ID, realtime.EventTodoUpdated, todo)

	h.cache.DeletePrefix(cache.TodosPrefix(todo.OwnerID))
	respond(c, http.StatusOK, "todo updated", todo)
}

func (h *httpHandler) handleDeleteTodo(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	todoID := c.Param("id")

	todo, collaboratorIDs, err := h.todos.Delete(c.Request.Context(), todoID, userID)
	if errors.Is(err, todos.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("todo delete failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "delete_failed")
		return
	}

	ctx := c.Request.Context()
	actorName := h.displayName(ctx, userID)
	for _, collaboratorID := range collaboratorIDs {
		message := fmt.Sprintf("%s deleted %q", actorName, todo.Title)
		h.notify(ctx, collaboratorID, message, nil)
	}
	h.gateway.EmitToRoom(ctx, todo.ID, realtime.EventTodoDeleted, todo)

	h.cache.DeletePrefix(cache.TodosPrefix(userID))
	respond(c, http.StatusOK, "todo deleted", todo)
}

type collaboratorAddPayload struct {
	UserID string `json:"user_id"`
}

func (h *httpHandler) handleAddCollaborator(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	todoID := c.Param("id")

	var request collaboratorAddPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	grant, err := h.todos.AddCollaborator(c.Request.Context(), todoID, userID, request.UserID)
	switch {
	case errors.Is(err, todos.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, todos.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "user_not_found")
		return
	case errors.Is(err, todos.ErrAlreadyCollaborator):
		respondError(c, http.StatusBadRequest, "already_collaborator")
		return
	case err != nil:
		h.logger.Error("collaborator add failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "grant_failed")
		return
	}

	ctx := c.Request.Context()
	todo, lookupErr := h.todos.Get(ctx, todoID, userID)
	if lookupErr == nil {
		message := fmt.Sprintf("%s shared %q with you", h.displayName(ctx, userID), todo.Title)
		h.notify(ctx, request.UserID, message, &todo.ID)
		h.gateway.EmitToUser(ctx, request.UserID, realtime.EventTodoShared, todo)
	}

	respond(c, http.StatusCreated, "collaborator added", grant)
}

type commentCreatePayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	todoID := c.Param("id")

	var request commentCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Content) == "" {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	comment, err := h.todos.AddComment(c.Request.Context(), todoID, userID, request.Content)
	if errors.Is(err, todos.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("comment failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "comment_failed")
		return
	}

	ctx := c.Request.Context()
	if todo, lookupErr := h.todos.Get(ctx, todoID, userID); lookupErr == nil && todo.OwnerID != userID {
		message := fmt.Sprintf("%s commented on %q", h.displayName(ctx, userID), todo.Title)
		h.notify(ctx, todo.OwnerID, message, &todo.ID)
	}
	h.gateway.EmitToRoom(ctx, todoID, realtime.EventTodoComment, comment)

	respond(c, http.StatusCreated, "comment added", comment)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	comments, err := h.todos.ListComments(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, todos.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("comment listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "list_failed")
		return
	}
	respond(c, http.StatusOK, "comments", comments)
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	records, err := h.notifications.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("notification listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "list_failed")
		return
	}
	respond(c, http.StatusOK, "notifications", records)
}

func (h *httpHandler) handleMarkNotificationRead(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	notification, err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, notifications.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("notification update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "update_failed")
		return
	}
	respond(c, http.StatusOK, "notification read", notification)
}

// notify writes the durable notification row and pushes it to the recipient's
// live connections. Push failures never surface to the HTTP response.
func (h *httpHandler) notify(ctx context.Context, recipientID, message string, todoID *string) {
	notification, err := h.notifications.Create(ctx, recipientID, message, todoID)
	if err != nil {
		h.logger.Error("notification write failed",
			zap.String("recipient_id", recipientID),
			zap.Error(err))
		return
	}
	h.gateway.EmitToUser(ctx, recipientID, realtime.EventNotification, notification)
}

func (h *httpHandler) displayName(ctx context.Context, userID string) string {
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		return "A collaborator"
	}
	return user.Name
}
