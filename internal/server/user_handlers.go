package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskforge-io/taskforge/internal/auth"
	"github.com/taskforge-io/taskforge/internal/cache"
	"github.com/taskforge-io/taskforge/internal/users"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	if cached, ok := h.cache.Get(cache.UserKey(userID)); ok {
		respond(c, http.StatusOK, "profile", cached)
		return
	}

	user, err := h.users.Get(c.Request.Context(), userID)
	if errors.Is(err, users.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("profile lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "profile_failed")
		return
	}

	h.cache.Set(cache.UserKey(userID), user.Public())
	respond(c, http.StatusOK, "profile", user.Public())
}

type profileUpdatePayload struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request profileUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, users.ProfileUpdate{
		Name:            request.Name,
		Email:           request.Email,
		CurrentPassword: request.CurrentPassword,
		NewPassword:     request.NewPassword,
	})
	switch {
	case errors.Is(err, users.ErrNoFields):
		respondError(c, http.StatusBadRequest, "no_fields")
		return
	case errors.Is(err, users.ErrEmailTaken):
		respondError(c, http.StatusBadRequest, "email_taken")
		return
	case errors.Is(err, users.ErrWrongPassword):
		respondError(c, http.StatusForbidden, "wrong_password")
		return
	case errors.Is(err, users.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found")
		return
	case err != nil:
		h.logger.Error("profile update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "update_failed")
		return
	}

	h.cache.Delete(cache.UserKey(userID))
	respond(c, http.StatusOK, "profile updated", user.Public())
}

type accountDeletePayload struct {
	Password string `json:"password"`
}

func (h *httpHandler) handleDeleteAccount(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request accountDeletePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	err := h.users.DeleteAccount(c.Request.Context(), userID, request.Password)
	switch {
	case errors.Is(err, users.ErrWrongPassword):
		respondError(c, http.StatusForbidden, "wrong_password")
		return
	case errors.Is(err, users.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found")
		return
	case err != nil:
		h.logger.Error("account delete failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "delete_failed")
		return
	}

	h.cache.Delete(cache.UserKey(userID))
	h.cache.DeletePrefix(cache.TodosPrefix(userID))
	h.clearRefreshCookie(c)
	respond(c, http.StatusOK, "account deleted", nil)
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	page, limit, ok := paginationParams(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_pagination")
		return
	}

	result, err := h.users.List(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.Error("user listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "list_failed")
		return
	}

	listing := make([]users.PublicUser, 0, len(result.Users))
	for _, user := range result.Users {
		listing = append(listing, user.Public())
	}
	respondPage(c, "users", listing, newPagination(page, result.HasMore, result.TotalCount))
}

func (h *httpHandler) handlePromoteUser(c *gin.Context) {
	h.applyAdminUserAction(c, func(c *gin.Context, targetID string) (users.User, error) {
		return h.users.SetRole(c.Request.Context(), targetID, auth.RoleAdmin)
	}, "user promoted")
}

func (h *httpHandler) handleDemoteUser(c *gin.Context) {
	h.applyAdminUserAction(c, func(c *gin.Context, targetID string) (users.User, error) {
		return h.users.SetRole(c.Request.Context(), targetID, auth.RoleUser)
	}, "user demoted")
}

func (h *httpHandler) handleSuspendUser(c *gin.Context) {
	h.applyAdminUserAction(c, func(c *gin.Context, targetID string) (users.User, error) {
		return h.users.SetSuspended(c.Request.Context(), targetID, true)
	}, "user suspended")
}

func (h *httpHandler) handleUnsuspendUser(c *gin.Context) {
	h.applyAdminUserAction(c, func(c *gin.Context, targetID string) (users.User, error) {
		return h.users.SetSuspended(c.Request.Context(), targetID, false)
	}, "user unsuspended")
}

func (h *httpHandler) applyAdminUserAction(c *gin.Context, action func(*gin.Context, string) (users.User, error), message string) {
	targetID := c.Param("id")

	user, err := action(c, targetID)
	if errors.Is(err, users.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.logger.Error("admin user action failed",
			zap.String("target_id", targetID),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "update_failed")
		return
	}

	h.cache.Delete(cache.UserKey(targetID))
	respond(c, http.StatusOK, message, user.Public())
}

func paginationParams(c *gin.Context) (int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 0, 0, false
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 || limit > maxPageSize {
		return 0, 0, false
	}
	return page, limit, true
}
