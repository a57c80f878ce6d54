package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mprlab/colist/internal/todolist"
)

type listPayload struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	OwnerID              string   `json:"owner_id"`
	Collaborators        []string `json:"collaborators"`
	PendingCollaborators []string `json:"pending_collaborators,omitempty"`
	Role                 string   `json:"role,omitempty"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

func toListPayload(view todolist.View) listPayload {
	collaborators := view.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	return listPayload{
		ID:                   view.List.ID,
		Name:                 view.List.Name,
		OwnerID:              view.List.OwnerID,
		Collaborators:        collaborators,
		PendingCollaborators: view.PendingCollaborators,
		Role:                 view.Role,
		CreatedAt:            view.List.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            view.List.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

type listNameRequestPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateList(c *gin.Context) {
	var request listNameRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	list, err := h.lists.Create(c.Request.Context(), c.GetString(userIDContextKey), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toListPayload(todolist.View{List: list, Role: "owner"}))
}

func (h *httpHandler) handleListLists(c *gin.Context) {
	page, err := h.lists.List(c.Request.Context(), c.GetString(userIDContextKey),
		queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		h.respondError(c, err)
		return
	}

	payloads := make([]listPayload, 0, len(page.Lists))
	for _, view := range page.Lists {
		payloads = append(payloads, toListPayload(view))
	}
	c.JSON(http.StatusOK, gin.H{"lists": payloads, "pagination": page.Pagination})
}

func (h *httpHandler) handleGetList(c *gin.Context) {
	view, err := h.lists.Get(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListPayload(view))
}

func (h *httpHandler) handleUpdateList(c *gin.Context) {
	var request listNameRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	list, err := h.lists.Update(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID"), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toListPayload(todolist.View{List: list}))
}

func (h *httpHandler) handleDeleteList(c *gin.Context) {
	if err := h.lists.Delete(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *httpHandler) handleListCollaborators(c *gin.Context) {
	members, err := h.lists.ListCollaborators(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	payloads := make([]userPayload, 0, len(members))
	for _, member := range members {
		payloads = append(payloads, toUserPayload(member))
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": payloads})
}

type collaboratorRequestPayload struct {
	UserID string `json:"user_id"`
}

func (h *httpHandler) handleAddCollaborator(c *gin.Context) {
	var request collaboratorRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.lists.AddCollaborator(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID"), request.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "collaborator_added"})
}

func (h *httpHandler) handleKickCollaborator(c *gin.Context) {
	err := h.lists.KickCollaborator(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "collaborator_kicked"})
}

func (h *httpHandler) handleLeaveList(c *gin.Context) {
	if err := h.lists.Leave(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (h *httpHandler) handleJoinList(c *gin.Context) {
	if err := h.lists.Join(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "join_requested"})
}

func (h *httpHandler) handleApproveJoin(c *gin.Context) {
	err := h.lists.ApproveJoin(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "join_approved"})
}

func (h *httpHandler) handleRejectJoin(c *gin.Context) {
	err := h.lists.RejectJoin(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "join_rejected"})
}
