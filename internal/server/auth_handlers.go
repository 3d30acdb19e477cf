package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskforge-io/taskforge/internal/users"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

type signupRequestPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponsePayload struct {
	AccessToken string           `json:"access_token"`
	ExpiresIn   int64            `json:"expires_in"`
	TokenType   string           `json:"token_type"`
	User        users.PublicUser `json:"user"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Name) == "" ||
		strings.TrimSpace(request.Email) == "" ||
		request.Password == "" {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := h.users.Register(c.Request.Context(), request.Name, request.Email, request.Password)
	if errors.Is(err, users.ErrEmailTaken) {
		respondError(c, http.StatusBadRequest, "email_taken")
		return
	}
	if err != nil {
		h.logger.Error("signup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "signup_failed")
		return
	}

	respond(c, http.StatusCreated, "signup successful", user.Public())
}

func (h *httpHandler) handleSignin(c *gin.Context) {
	var request signinRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Email) == "" ||
		request.Password == "" {
		respondError(c, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		respondError(c, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if errors.Is(err, users.ErrAccountSuspended) {
		respondError(c, http.StatusForbidden, "account_suspended")
		return
	}
	if err != nil {
		h.logger.Error("signin failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "signin_failed")
		return
	}

	h.issueSession(c, user, "signin successful")
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil || refreshToken == "" {
		respondError(c, http.StatusUnauthorized, "refresh_token_missing")
		return
	}

	claims, err := h.refreshTokens.ValidateToken(refreshToken)
	if err != nil {
		h.clearRefreshCookie(c)
		respondError(c, http.StatusUnauthorized, "refresh_token_invalid")
		return
	}

	// The stored account is the source of truth; a suspension applied after
	// the refresh token was minted still blocks the renewal.
	user, err := h.users.Get(c.Request.Context(), claims.Subject)
	if errors.Is(err, users.ErrNotFound) {
		h.clearRefreshCookie(c)
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		h.logger.Error("refresh lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "refresh_failed")
		return
	}
	if user.Suspended {
		h.clearRefreshCookie(c)
		respondError(c, http.StatusForbidden, "account_suspended")
		return
	}

	h.issueSession(c, user, "token refreshed")
}

func (h *httpHandler) handleSignout(c *gin.Context) {
	h.clearRefreshCookie(c)
	respond(c, http.StatusOK, "signed out", nil)
}

// issueSession writes the access token to the body and rotates the refresh
// cookie.
func (h *httpHandler) issueSession(c *gin.Context, user users.User, message string) {
	accessToken, expiresIn, err := h.accessTokens.IssueToken(user.ID, user.Role, user.Suspended)
	if err != nil {
		h.logger.Error("access token issue failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "token_issue_failed")
		return
	}
	refreshToken, _, err := h.refreshTokens.IssueToken(user.ID, user.Role, user.Suspended)
	if err != nil {
		h.logger.Error("refresh token issue failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "token_issue_failed")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, refreshToken, int(h.refreshTTL.Seconds()), refreshCookiePath, "", false, true)

	respond(c, http.StatusOK, message, tokenResponsePayload{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        user.Public(),
	})
}

func (h *httpHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", false, true)
}
