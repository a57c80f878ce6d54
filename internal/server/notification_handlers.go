package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mprlab/colist/internal/model"
)

type notificationPayload struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Priority   string         `json:"priority"`
	IsRead     bool           `json:"is_read"`
	IsArchived bool           `json:"is_archived"`
	Data       map[string]any `json:"data,omitempty"`
	ExpiresAt  string         `json:"expires_at,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func toNotificationPayload(record model.Notification) notificationPayload {
	data := record.Data()
	payload := notificationPayload{
		ID:         record.ID,
		Type:       string(record.Type),
		Title:      record.Title,
		Message:    record.Message,
		Priority:   string(record.Priority),
		IsRead:     record.IsRead,
		IsArchived: record.IsArchived,
		ExpiresAt:  formatOptionalTime(record.ExpiresAt),
		CreatedAt:  record.CreatedAt.UTC().Format(time.RFC3339),
	}
	payload.Data = map[string]any{}
	if data.ListID != "" {
		payload.Data["list_id"] = data.ListID
	}
	if data.TaskID != "" {
		payload.Data["task_id"] = data.TaskID
	}
	if data.FromUserID != "" {
		payload.Data["from_user_id"] = data.FromUserID
	}
	for key, value := range data.Metadata {
		payload.Data[key] = value
	}
	return payload
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread_only") == "true"
	result, err := h.notifications.List(c.Request.Context(), c.GetString(userIDContextKey),
		queryInt(c, "page", 1), queryInt(c, "limit", 10), unreadOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payloads := make([]notificationPayload, 0, len(result.Notifications))
	for _, record := range result.Notifications {
		payloads = append(payloads, toNotificationPayload(record))
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": payloads,
		"pagination":    result.Pagination,
		"unread_count":  result.UnreadCount,
	})
}

func (h *httpHandler) handleMarkNotificationRead(c *gin.Context) {
	record, err := h.notifications.MarkRead(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("notificationID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotificationPayload(record))
}

func (h *httpHandler) handleMarkAllNotificationsRead(c *gin.Context) {
	if err := h.notifications.MarkAllRead(c.Request.Context(), c.GetString(userIDContextKey)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "all_read"})
}

func (h *httpHandler) handleDeleteNotification(c *gin.Context) {
	err := h.notifications.Delete(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("notificationID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *httpHandler) handleDeleteAllNotifications(c *gin.Context) {
	deleted, err := h.notifications.DeleteAll(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "count": deleted})
}
