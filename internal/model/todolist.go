package model

import "time"

// MemberState distinguishes accepted collaborators from pending join requests.
type MemberState string

const (
	MemberStateCollaborator MemberState = "collaborator"
	MemberStatePending      MemberState = "pending"
)

// TodoList is a named collection of tasks owned by exactly one user.
type TodoList struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	Name      string    `gorm:"column:name;size:200;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:36;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (TodoList) TableName() string {
	return "todo_lists"
}

// ListMember records one user's relationship to one list. The composite key
// guarantees a user id appears at most once per list, so a user can never be
// collaborator and pending at the same time. The owner is never stored here.
type ListMember struct {
	ListID    string      `gorm:"column:list_id;primaryKey;size:36;not null"`
	UserID    string      `gorm:"column:user_id;primaryKey;size:36;not null;index"`
	State     MemberState `gorm:"column:state;size:16;not null;index"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ListMember) TableName() string {
	return "list_members"
}
