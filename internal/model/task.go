package model

import (
	"encoding/json"
	"time"
)

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

// ValidTaskPriority reports whether value is a member of the closed priority set.
func ValidTaskPriority(value TaskPriority) bool {
	switch value {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// TaskStatus tracks a task through its workflow.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
)

// ValidTaskStatus reports whether value is a member of the closed status set.
func ValidTaskStatus(value TaskStatus) bool {
	switch value {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusReview, TaskStatusDone:
		return true
	}
	return false
}

// ActivityAction tags an entry in a task's append-only activity log.
type ActivityAction string

const (
	ActivityCreated   ActivityAction = "CREATED"
	ActivityUpdated   ActivityAction = "UPDATED"
	ActivityCompleted ActivityAction = "COMPLETED"
	ActivityAssigned  ActivityAction = "ASSIGNED"
	ActivityCommented ActivityAction = "COMMENTED"
	ActivityAttached  ActivityAction = "ATTACHED"
)

// Task belongs to exactly one list. Assignment fields are all-or-nothing and
// deletion is a tombstone; a scheduled sweep removes old tombstones.
type Task struct {
	ID           string       `gorm:"column:id;primaryKey;size:36;not null"`
	ListID       string       `gorm:"column:list_id;size:36;not null;index:idx_tasks_list_deleted,priority:1"`
	Title        string       `gorm:"column:title;size:200;not null"`
	Description  string       `gorm:"column:description;size:1000"`
	Completed    bool         `gorm:"column:completed;not null;default:false;index"`
	CompletedAt  *time.Time   `gorm:"column:completed_at"`
	CompletedBy  string       `gorm:"column:completed_by;size:36"`
	DueDate      *time.Time   `gorm:"column:due_date;index"`
	Priority     TaskPriority `gorm:"column:priority;size:16;not null;default:MEDIUM;index"`
	Status       TaskStatus   `gorm:"column:status;size:16;not null;default:TODO;index"`
	AssignedTo   string       `gorm:"column:assigned_to;size:36;index"`
	AssignedBy   string       `gorm:"column:assigned_by;size:36"`
	AssignedAt   *time.Time   `gorm:"column:assigned_at"`
	CreatedBy    string       `gorm:"column:created_by;size:36;not null;index"`
	ParentTaskID string       `gorm:"column:parent_task_id;size:36;index"`
	TagsJSON     string       `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	IsDeleted    bool         `gorm:"column:is_deleted;not null;default:false;index:idx_tasks_list_deleted,priority:2"`
	DeletedAt    *time.Time   `gorm:"column:deleted_at"`
	DeletedBy    string       `gorm:"column:deleted_by;size:36"`
	CreatedAt    time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Task) TableName() string {
	return "tasks"
}

// Tags decodes the stored tag set. A corrupt column yields an empty set.
func (t Task) Tags() []string {
	if t.TagsJSON == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(t.TagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}

// SetTags encodes the tag set for storage.
func (t *Task) SetTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		t.TagsJSON = "[]"
		return
	}
	t.TagsJSON = string(encoded)
}

// IsOverdue reports whether the task has a due date in the past and is not done.
func (t Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil || t.Completed {
		return false
	}
	return now.After(*t.DueDate)
}

// TaskComment is an ordered note attached to a task.
type TaskComment struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	TaskID    string    `gorm:"column:task_id;size:36;not null;index:idx_comments_task_time,priority:1"`
	AuthorID  string    `gorm:"column:author_id;size:36;not null"`
	Text      string    `gorm:"column:text;size:500;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_comments_task_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (TaskComment) TableName() string {
	return "task_comments"
}

// TaskActivity is one entry in a task's append-only audit trail.
type TaskActivity struct {
	ID         string         `gorm:"column:id;primaryKey;size:36;not null"`
	TaskID     string         `gorm:"column:task_id;size:36;not null;index:idx_activity_task_time,priority:1"`
	Action     ActivityAction `gorm:"column:action;size:16;not null"`
	ActorID    string         `gorm:"column:actor_id;size:36;not null"`
	DetailJSON string         `gorm:"column:detail_json;type:text;not null;default:'{}'"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_activity_task_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (TaskActivity) TableName() string {
	return "task_activities"
}

// TaskAttachment stores file metadata only; the bytes live with an external host.
type TaskAttachment struct {
	ID           string    `gorm:"column:id;primaryKey;size:36;not null"`
	TaskID       string    `gorm:"column:task_id;size:36;not null;index"`
	FileName     string    `gorm:"column:file_name;size:255;not null"`
	OriginalName string    `gorm:"column:original_name;size:255"`
	MimeType     string    `gorm:"column:mime_type;size:127"`
	SizeBytes    int64     `gorm:"column:size_bytes;not null;default:0"`
	URL          string    `gorm:"column:url;size:512;not null"`
	UploadedBy   string    `gorm:"column:uploaded_by;size:36;not null"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (TaskAttachment) TableName() string {
	return "task_attachments"
}
