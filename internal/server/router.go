package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/notification"
	"github.com/mprlab/colist/internal/realtime"
	"github.com/mprlab/colist/internal/task"
	"github.com/mprlab/colist/internal/todolist"
	"github.com/mprlab/colist/internal/users"
)

const userIDContextKey = "colist_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingListsService  = errors.New("lists service dependency required")
	errMissingTasksService  = errors.New("tasks service dependency required")
	errMissingNotifications = errors.New("notification engine dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens.
type TokenManager interface {
	IssueToken(userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the services into the HTTP surface.
type Dependencies struct {
	TokenManager  TokenManager
	UsersService  *users.Service
	ListsService  *todolist.Service
	TasksService  *task.Service
	Notifications *notification.Engine
	Hub           *realtime.Hub
	Logger        *zap.Logger
}

// NewHTTPHandler assembles the router. The hub may be nil, which disables the
// websocket endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.ListsService == nil {
		return nil, errMissingListsService
	}
	if deps.TasksService == nil {
		return nil, errMissingTasksService
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		users:         deps.UsersService,
		lists:         deps.ListsService,
		tasks:         deps.TasksService,
		notifications: deps.Notifications,
		hub:           deps.Hub,
		logger:        logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/users/me", handler.handleMe)
	protected.PATCH("/users/me", handler.handleEditProfile)
	protected.PUT("/users/me/password", handler.handleChangePassword)

	protected.POST("/lists", handler.handleCreateList)
	protected.GET("/lists", handler.handleListLists)
	protected.GET("/lists/:listID", handler.handleGetList)
	protected.PATCH("/lists/:listID", handler.handleUpdateList)
	protected.DELETE("/lists/:listID", handler.handleDeleteList)
	protected.GET("/lists/:listID/collaborators", handler.handleListCollaborators)
	protected.POST("/lists/:listID/collaborators", handler.handleAddCollaborator)
	protected.DELETE("/lists/:listID/collaborators/:userID", handler.handleKickCollaborator)
	protected.POST("/lists/:listID/leave", handler.handleLeaveList)
	protected.POST("/lists/:listID/join", handler.handleJoinList)
	protected.POST("/lists/:listID/join/:userID/approve", handler.handleApproveJoin)
	protected.POST("/lists/:listID/join/:userID/reject", handler.handleRejectJoin)

	protected.POST("/lists/:listID/tasks", handler.handleCreateTask)
	protected.GET("/lists/:listID/tasks", handler.handleListTasks)
	protected.GET("/lists/:listID/tasks/:taskID", handler.handleGetTask)
	protected.PATCH("/lists/:listID/tasks/:taskID", handler.handleUpdateTask)
	protected.DELETE("/lists/:listID/tasks/:taskID", handler.handleDeleteTask)
	protected.POST("/lists/:listID/tasks/:taskID/complete", handler.handleCompleteTask)
	protected.POST("/lists/:listID/tasks/:taskID/comments", handler.handleAddComment)
	protected.POST("/lists/:listID/tasks/:taskID/attachments", handler.handleAddAttachment)
	protected.GET("/tasks/mine", handler.handleMyTasks)
	protected.GET("/tasks/overdue", handler.handleOverdueTasks)
	protected.GET("/stats", handler.handleStats)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.PUT("/notifications/read-all", handler.handleMarkAllNotificationsRead)
	protected.PUT("/notifications/:notificationID/read", handler.handleMarkNotificationRead)
	protected.DELETE("/notifications/:notificationID", handler.handleDeleteNotification)
	protected.DELETE("/notifications", handler.handleDeleteAllNotifications)

	router.GET("/ws", handler.handleWebsocket)

	return router, nil
}

type httpHandler struct {
	tokens        TokenManager
	users         *users.Service
	lists         *todolist.Service
	tasks         *task.Service
	notifications *notification.Engine
	hub           *realtime.Hub
	logger        *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error onto an HTTP status. Internal failures are
// logged and masked; everything else carries its message to the client.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}

	message := err.Error()
	var domainErr *domain.Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		message = domainErr.Message
	}
	c.JSON(status, gin.H{"error": message})
}
