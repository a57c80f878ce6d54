package model

import (
	"encoding/json"
	"time"
)

// NotificationType is the closed taxonomy of events a user can be notified of.
// Unknown types are rejected at creation so client handling stays exhaustive.
type NotificationType string

const (
	NotificationTodoListDeleted     NotificationType = "TODO_LIST_DELETED"
	NotificationCollaboratorAdded   NotificationType = "COLLABORATOR_ADDED"
	NotificationCollaboratorKicked  NotificationType = "COLLABORATOR_KICKED"
	NotificationCollaboratorLeft    NotificationType = "COLLABORATOR_LEFT"
	NotificationJoinRequestAccepted NotificationType = "JOIN_REQUEST_ACCEPTED"
	NotificationJoinRequestRejected NotificationType = "JOIN_REQUEST_REJECTED"
	NotificationJoinRequestSent     NotificationType = "JOIN_REQUEST_SENT"
	NotificationRequestToJoin       NotificationType = "REQUEST_TO_JOIN"
	NotificationTaskAssigned        NotificationType = "TASK_ASSIGNED"
	NotificationTaskCompleted       NotificationType = "TASK_COMPLETED"
	NotificationTaskUpdated         NotificationType = "TASK_UPDATED"
	NotificationTaskDeleted         NotificationType = "TASK_DELETED"
	NotificationTodoListShared      NotificationType = "TODO_LIST_SHARED"
	NotificationCustom              NotificationType = "CUSTOM"
)

// ValidNotificationType reports whether value is a member of the closed set.
func ValidNotificationType(value NotificationType) bool {
	switch value {
	case NotificationTodoListDeleted, NotificationCollaboratorAdded,
		NotificationCollaboratorKicked, NotificationCollaboratorLeft,
		NotificationJoinRequestAccepted, NotificationJoinRequestRejected,
		NotificationJoinRequestSent, NotificationRequestToJoin,
		NotificationTaskAssigned, NotificationTaskCompleted,
		NotificationTaskUpdated, NotificationTaskDeleted,
		NotificationTodoListShared, NotificationCustom:
		return true
	}
	return false
}

// NotificationPriority orders notifications for client display.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityMedium NotificationPriority = "MEDIUM"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// ValidNotificationPriority reports whether value is a member of the closed set.
func ValidNotificationPriority(value NotificationPriority) bool {
	switch value {
	case NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh:
		return true
	}
	return false
}

// NotificationData references the entities a notification is about.
type NotificationData struct {
	ListID     string         `json:"list_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	FromUserID string         `json:"from_user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Notification is a durable record of a domain event addressed to one user.
// Only isRead/isArchived ever change after creation.
type Notification struct {
	ID         string               `gorm:"column:id;primaryKey;size:36;not null"`
	UserID     string               `gorm:"column:user_id;size:36;not null;index:idx_notifications_user_time,priority:1"`
	Type       NotificationType     `gorm:"column:type;size:32;not null;index"`
	Title      string               `gorm:"column:title;size:100;not null"`
	Message    string               `gorm:"column:message;size:500;not null"`
	DataJSON   string               `gorm:"column:data_json;type:text;not null;default:'{}'"`
	IsRead     bool                 `gorm:"column:is_read;not null;default:false;index"`
	IsArchived bool                 `gorm:"column:is_archived;not null;default:false;index"`
	Priority   NotificationPriority `gorm:"column:priority;size:16;not null;default:MEDIUM"`
	ExpiresAt  *time.Time           `gorm:"column:expires_at;index"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime;index:idx_notifications_user_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// Data decodes the structured payload. A corrupt column yields the zero value.
func (n Notification) Data() NotificationData {
	if n.DataJSON == "" {
		return NotificationData{}
	}
	var data NotificationData
	if err := json.Unmarshal([]byte(n.DataJSON), &data); err != nil {
		return NotificationData{}
	}
	return data
}

// SetData encodes the structured payload for storage.
func (n *Notification) SetData(data NotificationData) {
	encoded, err := json.Marshal(data)
	if err != nil {
		n.DataJSON = "{}"
		return
	}
	n.DataJSON = string(encoded)
}
