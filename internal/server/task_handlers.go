package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mprlab/colist/internal/model"
	"github.com/mprlab/colist/internal/task"
)

type taskPayload struct {
	ID           string   `json:"id"`
	ListID       string   `json:"list_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Completed    bool     `json:"completed"`
	CompletedAt  string   `json:"completed_at,omitempty"`
	CompletedBy  string   `json:"completed_by,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
	Priority     string   `json:"priority"`
	Status       string   `json:"status"`
	AssignedTo   string   `json:"assigned_to,omitempty"`
	AssignedBy   string   `json:"assigned_by,omitempty"`
	AssignedAt   string   `json:"assigned_at,omitempty"`
	CreatedBy    string   `json:"created_by"`
	ParentTaskID string   `json:"parent_task_id,omitempty"`
	Tags         []string `json:"tags"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func toTaskPayload(t model.Task) taskPayload {
	tags := t.Tags()
	if tags == nil {
		tags = []string{}
	}
	return taskPayload{
		ID:           t.ID,
		ListID:       t.ListID,
		Title:        t.Title,
		Description:  t.Description,
		Completed:    t.Completed,
		CompletedAt:  formatOptionalTime(t.CompletedAt),
		CompletedBy:  t.CompletedBy,
		DueDate:      formatOptionalTime(t.DueDate),
		Priority:     string(t.Priority),
		Status:       string(t.Status),
		AssignedTo:   t.AssignedTo,
		AssignedBy:   t.AssignedBy,
		AssignedAt:   formatOptionalTime(t.AssignedAt),
		CreatedBy:    t.CreatedBy,
		ParentTaskID: t.ParentTaskID,
		Tags:         tags,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toTaskPayloads(tasks []model.Task) []taskPayload {
	payloads := make([]taskPayload, 0, len(tasks))
	for _, t := range tasks {
		payloads = append(payloads, toTaskPayload(t))
	}
	return payloads
}

type createTaskRequestPayload struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	DueDate      string   `json:"due_date"`
	Priority     string   `json:"priority"`
	Status       string   `json:"status"`
	AssignedTo   string   `json:"assigned_to"`
	Tags         []string `json:"tags"`
	ParentTaskID string   `json:"parent_task_id"`
}

func parseOptionalTime(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &value, true
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	var request createTaskRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	dueDate, ok := parseOptionalTime(request.DueDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_due_date"})
		return
	}

	created, err := h.tasks.Create(c.Request.Context(), c.GetString(userIDContextKey), c.Param("listID"), task.CreateInput{
		Title:        request.Title,
		Description:  request.Description,
		DueDate:      dueDate,
		Priority:     model.TaskPriority(request.Priority),
		Status:       model.TaskStatus(request.Status),
		AssignedTo:   request.AssignedTo,
		Tags:         request.Tags,
		ParentTaskID: request.ParentTaskID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTaskPayload(created))
}

func listOptionsFromQuery(c *gin.Context) task.ListOptions {
	includeCompleted := c.DefaultQuery("include_completed", "true") != "false"
	return task.ListOptions{
		Page:             queryInt(c, "page", 1),
		Limit:            queryInt(c, "limit", 20),
		IncludeCompleted: includeCompleted,
		Status:           model.TaskStatus(c.Query("status")),
		Priority:         model.TaskPriority(c.Query("priority")),
		AssignedTo:       c.Query("assigned_to"),
		Search:           c.Query("search"),
		SortBy:           c.Query("sort_by"),
		SortOrder:        c.Query("sort_order"),
	}
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	page, err := h.tasks.ListByList(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), listOptionsFromQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": toTaskPayloads(page.Tasks), "pagination": page.Pagination})
}

type commentPayload struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func toCommentPayload(comment model.TaskComment) commentPayload {
	return commentPayload{
		ID:        comment.ID,
		TaskID:    comment.TaskID,
		AuthorID:  comment.AuthorID,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type activityPayload struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

type attachmentPayload struct {
	ID           string `json:"id"`
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	URL          string `json:"url"`
	UploadedBy   string `json:"uploaded_by"`
	UploadedAt   string `json:"uploaded_at"`
}

func (h *httpHandler) handleGetTask(c *gin.Context) {
	detail, err := h.tasks.Get(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("taskID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	comments := make([]commentPayload, 0, len(detail.Comments))
	for _, comment := range detail.Comments {
		comments = append(comments, toCommentPayload(comment))
	}
	activities := make([]activityPayload, 0, len(detail.Activities))
	for _, activity := range detail.Activities {
		activities = append(activities, activityPayload{
			ID:        activity.ID,
			Action:    string(activity.Action),
			ActorID:   activity.ActorID,
			Detail:    activity.DetailJSON,
			CreatedAt: activity.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	attachments := make([]attachmentPayload, 0, len(detail.Attachments))
	for _, attachment := range detail.Attachments {
		attachments = append(attachments, attachmentPayload{
			ID:           attachment.ID,
			FileName:     attachment.FileName,
			OriginalName: attachment.OriginalName,
			MimeType:     attachment.MimeType,
			SizeBytes:    attachment.SizeBytes,
			URL:          attachment.URL,
			UploadedBy:   attachment.UploadedBy,
			UploadedAt:   attachment.UploadedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"task":        toTaskPayload(detail.Task),
		"subtasks":    toTaskPayloads(detail.Subtasks),
		"comments":    comments,
		"activities":  activities,
		"attachments": attachments,
	})
}

type updateTaskRequestPayload struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	DueDate     *string   `json:"due_date"`
	Priority    *string   `json:"priority"`
	Status      *string   `json:"status"`
	AssignedTo  *string   `json:"assigned_to"`
	Tags        *[]string `json:"tags"`
}

func (h *httpHandler) handleUpdateTask(c *gin.Context) {
	var request updateTaskRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	input := task.UpdateInput{
		Title:       request.Title,
		Description: request.Description,
		AssignedTo:  request.AssignedTo,
		Tags:        request.Tags,
	}
	if request.DueDate != nil {
		dueDate, ok := parseOptionalTime(*request.DueDate)
		if !ok || dueDate == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_due_date"})
			return
		}
		input.DueDate = dueDate
	}
	if request.Priority != nil {
		priority := model.TaskPriority(*request.Priority)
		input.Priority = &priority
	}
	if request.Status != nil {
		status := model.TaskStatus(*request.Status)
		input.Status = &status
	}

	updated, err := h.tasks.Update(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("taskID"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskPayload(updated))
}

func (h *httpHandler) handleDeleteTask(c *gin.Context) {
	err := h.tasks.Delete(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("taskID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *httpHandler) handleCompleteTask(c *gin.Context) {
	updated, err := h.tasks.Complete(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("taskID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskPayload(updated))
}

type addCommentRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	var request addCommentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := h.tasks.AddComment(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("taskID"), request.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCommentPayload(comment))
}

type addAttachmentRequestPayload struct {
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	URL          string `json:"url"`
}

func (h *httpHandler) handleAddAttachment(c *gin.Context) {
	var request addAttachmentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	attachment, err := h.tasks.AddAttachment(c.Request.Context(), c.GetString(userIDContextKey),
		c.Param("listID"), c.Param("taskID"), task.AttachmentInput{
			FileName:     request.FileName,
			OriginalName: request.OriginalName,
			MimeType:     request.MimeType,
			SizeBytes:    request.SizeBytes,
			URL:          request.URL,
		})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachmentPayload{
		ID:           attachment.ID,
		FileName:     attachment.FileName,
		OriginalName: attachment.OriginalName,
		MimeType:     attachment.MimeType,
		SizeBytes:    attachment.SizeBytes,
		URL:          attachment.URL,
		UploadedBy:   attachment.UploadedBy,
		UploadedAt:   attachment.UploadedAt.UTC().Format(time.RFC3339),
	})
}

func (h *httpHandler) handleMyTasks(c *gin.Context) {
	opts := listOptionsFromQuery(c)
	if c.Query("include_completed") == "" {
		opts.IncludeCompleted = false
	}
	page, err := h.tasks.ListMine(c.Request.Context(), c.GetString(userIDContextKey), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": toTaskPayloads(page.Tasks), "pagination": page.Pagination})
}

func (h *httpHandler) handleOverdueTasks(c *gin.Context) {
	tasks, err := h.tasks.Overdue(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": toTaskPayloads(tasks)})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	stats, err := h.tasks.Stats(c.Request.Context(), c.GetString(userIDContextKey), c.Query("list_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
