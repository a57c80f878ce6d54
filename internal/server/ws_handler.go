package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mprlab/colist/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set custom headers on websocket dials; origins are
	// checked by the token instead.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsToken pulls the bearer token from the Authorization header or, for
// browser clients, the token query parameter.
func wsToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

// handleWebsocket authenticates before upgrading so a bad token costs a plain
// 401, not a torn-down socket.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "realtime disabled"})
		return
	}

	token := wsToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("websocket token validation failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := realtime.NewSession(uuid.NewString(), user.ID, user.Username, conn)
	h.hub.Register(session)
	session.Serve(c.Request.Context(), h.hub)
}
