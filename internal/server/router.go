package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/taskforge-io/taskforge/internal/auth"
	"github.com/taskforge-io/taskforge/internal/cache"
	"github.com/taskforge-io/taskforge/internal/content"
	"github.com/taskforge-io/taskforge/internal/notifications"
	"github.com/taskforge-io/taskforge/internal/pages"
	"github.com/taskforge-io/taskforge/internal/realtime"
	"github.com/taskforge-io/taskforge/internal/todos"
	"github.com/taskforge-io/taskforge/internal/users"
)

const (
	userIDContextKey   = "taskforge_user_id"
	userRoleContextKey = "taskforge_user_role"
)

var (
	errMissingUsersService        = errors.New("users service dependency required")
	errMissingTodosService        = errors.New("todos service dependency required")
	errMissingNotificationStore   = errors.New("notification store dependency required")
	errMissingContentService      = errors.New("content service dependency required")
	errMissingPagesService        = errors.New("pages service dependency required")
	errMissingAccessTokenIssuer   = errors.New("access token issuer dependency required")
	errMissingRefreshTokenIssuer  = errors.New("refresh token issuer dependency required")
	errMissingGateway             = errors.New("realtime gateway dependency required")
	errInvalidAuthorizationHeader = errors.New("authorization header missing or invalid")
)

// Dependencies carries everything the HTTP layer needs. All services are
// required; Cache, Logger and the rate limits fall back to safe defaults.
type Dependencies struct {
	Users         *users.Service
	Todos         *todos.Service
	Notifications *notifications.Store
	Content       *content.Service
	Pages         *pages.Service
	AccessTokens  *auth.TokenIssuer
	RefreshTokens *auth.TokenIssuer
	Gateway       *realtime.Gateway
	Cache         *cache.Cache
	Logger        *zap.Logger

	CORSOrigins []string
	RefreshTTL  time.Duration

	APIRatePerMinute  int
	AuthRatePerMinute int
}

// NewHTTPHandler wires the REST and websocket surface into one handler.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Todos == nil {
		return nil, errMissingTodosService
	}
	if deps.Notifications == nil {
		return nil, errMissingNotificationStore
	}
	if deps.Content == nil {
		return nil, errMissingContentService
	}
	if deps.Pages == nil {
		return nil, errMissingPagesService
	}
	if deps.AccessTokens == nil {
		return nil, errMissingAccessTokenIssuer
	}
	if deps.RefreshTokens == nil {
		return nil, errMissingRefreshTokenIssuer
	}
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	responseCache := deps.Cache
	if responseCache == nil {
		responseCache = cache.New(cache.Config{})
	}
	// Wildcard origins and credentialed requests are mutually exclusive, so
	// the cookie-bearing auth flow only works against configured origins.
	origins := deps.CORSOrigins
	allowCredentials := true
	if len(origins) == 0 {
		origins = []string{"*"}
		allowCredentials = false
	}
	refreshTTL := deps.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 5 * time.Hour
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		users:         deps.Users,
		todos:         deps.Todos,
		notifications: deps.Notifications,
		content:       deps.Content,
		pages:         deps.Pages,
		accessTokens:  deps.AccessTokens,
		refreshTokens: deps.RefreshTokens,
		gateway:       deps.Gateway,
		cache:         responseCache,
		logger:        logger,
		refreshTTL:    refreshTTL,
	}

	api := router.Group("/api/v1")
	api.Use(rateLimitByClientIP(deps.APIRatePerMinute))

	authRoutes := api.Group("/auth")
	authRoutes.Use(rateLimitByClientIP(deps.AuthRatePerMinute))
	authRoutes.POST("/signup", handler.handleSignup)
	authRoutes.POST("/signin", handler.handleSignin)
	authRoutes.POST("/refresh", handler.handleRefresh)
	authRoutes.POST("/signout", handler.handleSignout)

	api.GET("/content", handler.handleGetContent)
	api.GET("/pages", handler.handleListPublishedPages)
	api.GET("/pages/:id/content", handler.handleGetPageContent)

	protected := api.Group("")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users/me", handler.handleGetProfile)
	protected.PUT("/users/me", handler.handleUpdateProfile)
	protected.DELETE("/users/me", handler.handleDeleteAccount)

	protected.GET("/todos", handler.handleListTodos)
	protected.POST("/todos", handler.handleCreateTodo)
	protected.GET("/todos/:id", handler.handleGetTodo)
	protected.PUT("/todos/:id", handler.handleUpdateTodo)
	protected.DELETE("/todos/:id", handler.handleDeleteTodo)
	protected.POST("/todos/:id/collaborators", handler.handleAddCollaborator)
	protected.GET("/todos/:id/comments", handler.handleListComments)
	protected.POST("/todos/:id/comments", handler.handleAddComment)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.PUT("/notifications/:id/read", handler.handleMarkNotificationRead)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.GET("/users", handler.handleListUsers)
	admin.POST("/users/:id/promote", handler.handlePromoteUser)
	admin.POST("/users/:id/demote", handler.handleDemoteUser)
	admin.POST("/users/:id/suspend", handler.handleSuspendUser)
	admin.POST("/users/:id/unsuspend", handler.handleUnsuspendUser)
	admin.PUT("/content/:section", handler.handleUpsertContent)
	admin.GET("/pages", handler.handleListAllPages)
	admin.POST("/pages", handler.handleCreatePage)
	admin.PUT("/pages/:id", handler.handleUpdatePage)
	admin.DELETE("/pages/:id", handler.handleDeletePage)
	admin.PUT("/pages/:id/content/:section", handler.handleUpsertPageSection)

	router.GET("/ws", handler.handleWebsocket)

	return router, nil
}

type httpHandler struct {
	users         *users.Service
	todos         *todos.Service
	notifications *notifications.Store
	content       *content.Service
	pages         *pages.Service
	accessTokens  *auth.TokenIssuer
	refreshTokens *auth.TokenIssuer
	gateway       *realtime.Gateway
	cache         *cache.Cache
	logger        *zap.Logger
	refreshTTL    time.Duration
}

type responseEnvelope struct {
	Message    string             `json:"message"`
	Data       any                `json:"data,omitempty"`
	Pagination *paginationPayload `json:"pagination,omitempty"`
}

type paginationPayload struct {
	NextPage   *int  `json:"next_page"`
	TotalItems int64 `json:"total_items"`
}

func newPagination(page int, hasMore bool, totalItems int64) *paginationPayload {
	payload := &paginationPayload{TotalItems: totalItems}
	if hasMore {
		next := page + 1
		payload.NextPage = &next
	}
	return payload
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, responseEnvelope{Message: message, Data: data})
}

func respondPage(c *gin.Context, message string, data any, pagination *paginationPayload) {
	c.JSON(http.StatusOK, responseEnvelope{Message: message, Data: data, Pagination: pagination})
}

func respondError(c *gin.Context, status int, code string) {
	c.JSON(status, gin.H{"error": code})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorizationHeader.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorizationHeader.Error()})
		return
	}
	claims, err := h.accessTokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine client behavior, not a fault worth
		// alerting on.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if claims.Suspended {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account_suspended"})
		return
	}
	c.Set(userIDContextKey, claims.Subject)
	c.Set(userRoleContextKey, claims.Role)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if c.GetString(userRoleContextKey) != auth.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_only"})
		return
	}
	c.Next()
}
