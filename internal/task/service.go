package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/access"
	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/model"
	"github.com/mprlab/colist/internal/notification"
)

const (
	opCreate        = "task.create"
	opGet           = "task.get"
	opListByList    = "task.list_by_list"
	opListMine      = "task.list_mine"
	opOverdue       = "task.overdue"
	opUpdate        = "task.update"
	opComplete      = "task.complete"
	opDelete        = "task.delete"
	opAddComment    = "task.add_comment"
	opAddAttachment = "task.add_attachment"
	opStats         = "task.stats"
)

var errMissingDatabase = errors.New("database handle is required")

// ServiceConfig describes the dependencies for the task service.
type ServiceConfig struct {
	Database *gorm.DB
	Notifier *notification.Engine
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service orchestrates task state transitions within a list.
type Service struct {
	db       *gorm.DB
	notifier *notification.Engine
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, domain.Wrap(domain.KindInternal, opCreate, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, notifier: cfg.Notifier, clock: clock, logger: logger}, nil
}

func (s *Service) dispatch(op string, fn func() error) {
	if s.notifier == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.Error("notification dispatch failed", zap.String("operation", op), zap.Error(err))
	}
}

func (s *Service) loadList(ctx context.Context, op, listID string) (model.TodoList, access.ListACL, error) {
	var list model.TodoList
	err := s.db.WithContext(ctx).Where("id = ?", listID).Take(&list).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TodoList{}, access.ListACL{}, domain.E(domain.KindNotFound, op, "todo list not found")
	}
	if err != nil {
		return model.TodoList{}, access.ListACL{}, domain.Wrap(domain.KindInternal, op, err)
	}

	var collaborators []string
	if err := s.db.WithContext(ctx).Model(&model.ListMember{}).
		Where("list_id = ? AND state = ?", listID, model.MemberStateCollaborator).
		Pluck("user_id", &collaborators).Error; err != nil {
		return model.TodoList{}, access.ListACL{}, domain.Wrap(domain.KindInternal, op, err)
	}

	return list, access.ListACL{OwnerID: list.OwnerID, Collaborators: collaborators}, nil
}

// loadTask loads a live (non-tombstoned) task and verifies it belongs to the
// list it is being accessed through.
func (s *Service) loadTask(ctx context.Context, op, listID, taskID string) (model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", taskID, false).
		Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Task{}, domain.E(domain.KindNotFound, op, "task not found")
	}
	if err != nil {
		return model.Task{}, domain.Wrap(domain.KindInternal, op, err)
	}
	if task.ListID != listID {
		return model.Task{}, domain.E(domain.KindInvalidRequest, op, "task does not belong to this todo list")
	}
	return task, nil
}

func (s *Service) userExists(ctx context.Context, op, userID string) (model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, domain.E(domain.KindNotFound, op, "user not found")
	}
	if err != nil {
		return model.User{}, domain.Wrap(domain.KindInternal, op, err)
	}
	return user, nil
}

func newActivity(taskID string, action model.ActivityAction, actorID string, detail map[string]any, at time.Time) model.TaskActivity {
	detailJSON := "{}"
	if len(detail) > 0 {
		if encoded, err := json.Marshal(detail); err == nil {
			detailJSON = string(encoded)
		}
	}
	return model.TaskActivity{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		Action:     action,
		ActorID:    actorID,
		DetailJSON: detailJSON,
		CreatedAt:  at,
	}
}

// CreateInput carries the fields for a new task.
type CreateInput struct {
	Title        string
	Description  string
	DueDate      *time.Time
	Priority     model.TaskPriority
	Status       model.TaskStatus
	AssignedTo   string
	Tags         []string
	ParentTaskID string
}

// Create adds a task to a list. Requires list access. A parent task must be a
// top-level task of the same list; an assignee must exist and is notified
// unless they are the actor.
func (s *Service) Create(ctx context.Context, actorID, listID string, in CreateInput) (model.Task, error) {
	list, acl, err := s.loadList(ctx, opCreate, listID)
	if err != nil {
		return model.Task{}, err
	}
	if !access.CanAccessList(actorID, acl) {
		return model.Task{}, domain.E(domain.KindForbidden, opCreate, "you don't have access to this todo list")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Task{}, domain.E(domain.KindInvalidRequest, opCreate, "task title is required")
	}

	priority := in.Priority
	if priority == "" {
		priority = model.TaskPriorityMedium
	}
	if !model.ValidTaskPriority(priority) {
		return model.Task{}, domain.E(domain.KindInvalidRequest, opCreate, "unknown task priority")
	}
	status := in.Status
	if status == "" {
		status = model.TaskStatusTodo
	}
	if !model.ValidTaskStatus(status) {
		return model.Task{}, domain.E(domain.KindInvalidRequest, opCreate, "unknown task status")
	}

	if in.AssignedTo != "" {
		if _, err := s.userExists(ctx, opCreate, in.AssignedTo); err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return model.Task{}, domain.E(domain.KindNotFound, opCreate, "assignee user not found")
			}
			return model.Task{}, err
		}
	}

	if in.ParentTaskID != "" {
		parent, err := s.loadTask(ctx, opCreate, listID, in.ParentTaskID)
		if err != nil {
			if domain.IsKind(err, domain.KindInvalidRequest) {
				return model.Task{}, domain.E(domain.KindInvalidRequest, opCreate, "parent task must belong to the same todo list")
			}
			return model.Task{}, err
		}
		if parent.ParentTaskID != "" {
			return model.Task{}, domain.E(domain.KindInvalidRequest, opCreate, "subtasks cannot be nested deeper than one level")
		}
	}

	now := s.clock().UTC()
	task := model.Task{
		ID:           uuid.NewString(),
		ListID:       listID,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		DueDate:      in.DueDate,
		Priority:     priority,
		Status:       status,
		CreatedBy:    actorID,
		ParentTaskID: in.ParentTaskID,
	}
	task.SetTags(in.Tags)
	if in.AssignedTo != "" {
		task.AssignedTo = in.AssignedTo
		task.AssignedBy = actorID
		assignedAt := now
		task.AssignedAt = &assignedAt
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		activity := newActivity(task.ID, model.ActivityCreated, actorID, map[string]any{
			"title":    title,
			"priority": priority,
			"status":   status,
		}, now)
		return tx.Create(&activity).Error
	})
	if txErr != nil {
		return model.Task{}, domain.Wrap(domain.KindInternal, opCreate, txErr)
	}

	if task.AssignedTo != "" && task.AssignedTo != actorID {
		s.dispatch(opCreate, func() error {
			actor, err := s.userExists(ctx, opCreate, actorID)
			if err != nil {
				return err
			}
			_, err = s.notifier.TaskAssigned(ctx, task.AssignedTo, task.ID, task.Title, listID, list.Name, actorID, actor.Username)
			return err
		})
	}

	return task, nil
}

// UpdateInput carries partial task fields; nil means unchanged. AssignedTo
// set to the empty string clears the assignment.
type UpdateInput struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Priority    *model.TaskPriority
	Status      *model.TaskStatus
	AssignedTo  *string
	Tags        *[]string
}

// Update applies partial changes to a task. Only the list owner or the task
// creator may. Changed scalar fields are diffed into one UPDATED activity
// entry; the current assignee and the creator are notified when different
// from the actor.
func (s *Service) Update(ctx context.Context, actorID, listID, taskID string, in UpdateInput) (model.Task, error) {
	list, acl, err := s.loadList(ctx, opUpdate, listID)
	if err != nil {
		return model.Task{}, err
	}
	task, err := s.loadTask(ctx, opUpdate, listID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !access.CanMutateTask(actorID, acl, task.CreatedBy) {
		return model.Task{}, domain.E(domain.KindForbidden, opUpdate, "you can only update tasks you created or if you're the todo list owner")
	}

	changes := map[string]any{}
	newlyAssigned := ""

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return model.Task{}, domain.E(domain.KindInvalidRequest, opUpdate, "task title is required")
		}
		if title != task.Title {
			changes["title"] = map[string]any{"from": task.Title, "to": title}
			task.Title = title
		}
	}
	if in.Description != nil && *in.Description != task.Description {
		changes["description"] = map[string]any{"from": task.Description, "to": *in.Description}
		task.Description = *in.Description
	}
	if in.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*in.DueDate)) {
		changes["due_date"] = map[string]any{"to": in.DueDate.UTC().Format(time.RFC3339)}
		task.DueDate = in.DueDate
	}
	if in.Priority != nil {
		if !model.ValidTaskPriority(*in.Priority) {
			return model.Task{}, domain.E(domain.KindInvalidRequest, opUpdate, "unknown task priority")
		}
		if *in.Priority != task.Priority {
			changes["priority"] = map[string]any{"from": task.Priority, "to": *in.Priority}
			task.Priority = *in.Priority
		}
	}
	if in.Status != nil {
		if !model.ValidTaskStatus(*in.Status) {
			return model.Task{}, domain.E(domain.KindInvalidRequest, opUpdate, "unknown task status")
		}
		if *in.Status != task.Status {
			changes["status"] = map[string]any{"from": task.Status, "to": *in.Status}
			task.Status = *in.Status
		}
	}
	if in.Tags != nil {
		task.SetTags(*in.Tags)
	}

	now := s.clock().UTC()
	if in.AssignedTo != nil {
		switch {
		case *in.AssignedTo == "" && task.AssignedTo != "":
			changes["assigned_to"] = map[string]any{"from": task.AssignedTo, "to": ""}
			task.AssignedTo = ""
			task.AssignedBy = ""
			task.AssignedAt = nil
		case *in.AssignedTo != "" && *in.AssignedTo != task.AssignedTo:
			if _, err := s.userExists(ctx, opUpdate, *in.AssignedTo); err != nil {
				if domain.IsKind(err, domain.KindNotFound) {
					return model.Task{}, domain.E(domain.KindNotFound, opUpdate, "assignee user not found")
				}
				return model.Task{}, err
			}
			changes["assigned_to"] = map[string]any{"from": task.AssignedTo, "to": *in.AssignedTo}
			task.AssignedTo = *in.AssignedTo
			task.AssignedBy = actorID
			assignedAt := now
			task.AssignedAt = &assignedAt
			newlyAssigned = *in.AssignedTo
		}
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		activity := newActivity(task.ID, model.ActivityUpdated, actorID, map[string]any{"changes": changes}, now)
		return tx.Create(&activity).Error
	})
	if txErr != nil {
		return model.Task{}, domain.Wrap(domain.KindInternal, opUpdate, txErr)
	}

	if len(changes) > 0 {
		s.dispatch(opUpdate, func() error {
			actor, err := s.userExists(ctx, opUpdate, actorID)
			if err != nil {
				return err
			}
			if newlyAssigned != "" && newlyAssigned != actorID {
				if _, err := s.notifier.TaskAssigned(ctx, newlyAssigned, task.ID, task.Title, listID, list.Name, actorID, actor.Username); err != nil {
					return err
				}
			}
			// The freshly assigned user already received TASK_ASSIGNED.
			for _, target := range dedupe([]string{task.AssignedTo, task.CreatedBy}) {
				if target == "" || target == actorID || target == newlyAssigned {
					continue
				}
				if _, err := s.notifier.TaskUpdated(ctx, target, task.ID, task.Title, listID, list.Name, actorID, actor.Username); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return task, nil
}

// Complete toggles completion. Anyone with list access may toggle an
// unassigned task; an assigned task only by its assignee. Completing sets
// status DONE; un-completing reverts to TODO.
func (s *Service) Complete(ctx context.Context, actorID, listID, taskID string) (model.Task, error) {
	list, acl, err := s.loadList(ctx, opComplete, listID)
	if err != nil {
		return model.Task{}, err
	}
	if !access.CanAccessList(actorID, acl) {
		return model.Task{}, domain.E(domain.KindForbidden, opComplete, "you don't have access to this todo list")
	}
	task, err := s.loadTask(ctx, opComplete, listID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !access.CanCompleteTask(actorID, task.AssignedTo) {
		return model.Task{}, domain.E(domain.KindForbidden, opComplete, "you can only complete tasks assigned to you")
	}

	now := s.clock().UTC()
	var activity model.TaskActivity
	if task.Completed {
		task.Completed = false
		task.CompletedAt = nil
		task.CompletedBy = ""
		task.Status = model.TaskStatusTodo
		activity = newActivity(task.ID, model.ActivityUpdated, actorID, map[string]any{
			"changes": map[string]any{"completed": map[string]any{"from": true, "to": false}},
		}, now)
	} else {
		previousStatus := task.Status
		task.Completed = true
		completedAt := now
		task.CompletedAt = &completedAt
		task.CompletedBy = actorID
		task.Status = model.TaskStatusDone
		activity = newActivity(task.ID, model.ActivityCompleted, actorID, map[string]any{
			"previous_status": previousStatus,
		}, now)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		return tx.Create(&activity).Error
	})
	if txErr != nil {
		return model.Task{}, domain.Wrap(domain.KindInternal, opComplete, txErr)
	}

	if task.Completed && task.AssignedTo != "" && task.AssignedTo != actorID {
		s.dispatch(opComplete, func() error {
			actor, err := s.userExists(ctx, opComplete, actorID)
			if err != nil {
				return err
			}
			_, err = s.notifier.TaskCompleted(ctx, task.AssignedTo, task.ID, task.Title, listID, list.Name, actorID, actor.Username)
			return err
		})
	}

	return task, nil
}

// Delete tombstones a task and cascades the tombstone to its subtasks. Only
// the list owner or the task creator may. The assignee, if any, is notified.
func (s *Service) Delete(ctx context.Context, actorID, listID, taskID string) error {
	list, acl, err := s.loadList(ctx, opDelete, listID)
	if err != nil {
		return err
	}
	task, err := s.loadTask(ctx, opDelete, listID, taskID)
	if err != nil {
		return err
	}
	if !access.CanMutateTask(actorID, acl, task.CreatedBy) {
		return domain.E(domain.KindForbidden, opDelete, "you can only delete tasks you created or if you're the todo list owner")
	}

	now := s.clock().UTC()
	tombstone := map[string]interface{}{
		"is_deleted": true,
		"deleted_at": now,
		"deleted_by": actorID,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).
			Where("id = ?", taskID).
			Updates(tombstone).Error; err != nil {
			return err
		}
		// Subtasks reference the parent by id, so tombstoning them also
		// removes them from the parent's visible subtask set.
		return tx.Model(&model.Task{}).
			Where("parent_task_id = ? AND is_deleted = ?", taskID, false).
			Updates(tombstone).Error
	})
	if txErr != nil {
		return domain.Wrap(domain.KindInternal, opDelete, txErr)
	}

	if task.AssignedTo != "" && task.AssignedTo != actorID {
		s.dispatch(opDelete, func() error {
			actor, err := s.userExists(ctx, opDelete, actorID)
			if err != nil {
				return err
			}
			_, err = s.notifier.TaskDeleted(ctx, task.AssignedTo, task.Title, list.Name, actorID, actor.Username)
			return err
		})
	}

	return nil
}

// AddComment appends a comment and notifies every other participant (owner
// included) exactly once each.
func (s *Service) AddComment(ctx context.Context, actorID, listID, taskID, text string) (model.TaskComment, error) {
	list, acl, err := s.loadList(ctx, opAddComment, listID)
	if err != nil {
		return model.TaskComment{}, err
	}
	if !access.CanAccessList(actorID, acl) {
		return model.TaskComment{}, domain.E(domain.KindForbidden, opAddComment, "you don't have access to this todo list")
	}
	task, err := s.loadTask(ctx, opAddComment, listID, taskID)
	if err != nil {
		return model.TaskComment{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return model.TaskComment{}, domain.E(domain.KindInvalidRequest, opAddComment, "comment text is required")
	}

	now := s.clock().UTC()
	comment := model.TaskComment{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		AuthorID:  actorID,
		Text:      text,
		CreatedAt: now,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		activity := newActivity(task.ID, model.ActivityCommented, actorID, map[string]any{"comment": text}, now)
		return tx.Create(&activity).Error
	})
	if txErr != nil {
		return model.TaskComment{}, domain.Wrap(domain.KindInternal, opAddComment, txErr)
	}

	participants := make([]string, 0, len(acl.Collaborators)+1)
	participants = append(participants, acl.OwnerID)
	participants = append(participants, acl.Collaborators...)
	targets := make([]string, 0, len(participants))
	for _, participant := range dedupe(participants) {
		if participant != actorID {
			targets = append(targets, participant)
		}
	}

	if len(targets) > 0 {
		s.dispatch(opAddComment, func() error {
			actor, err := s.userExists(ctx, opAddComment, actorID)
			if err != nil {
				return err
			}
			_, err = s.notifier.TaskCommented(ctx, targets, task.ID, task.Title, listID, list.Name, actorID, actor.Username, text)
			return err
		})
	}

	return comment, nil
}

// AttachmentInput carries attachment metadata; the bytes live externally.
type AttachmentInput struct {
	FileName     string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	URL          string
}

// AddAttachment records attachment metadata and an ATTACHED activity entry.
func (s *Service) AddAttachment(ctx context.Context, actorID, listID, taskID string, in AttachmentInput) (model.TaskAttachment, error) {
	_, acl, err := s.loadList(ctx, opAddAttachment, listID)
	if err != nil {
		return model.TaskAttachment{}, err
	}
	if !access.CanAccessList(actorID, acl) {
		return model.TaskAttachment{}, domain.E(domain.KindForbidden, opAddAttachment, "you don't have access to this todo list")
	}
	task, err := s.loadTask(ctx, opAddAttachment, listID, taskID)
	if err != nil {
		return model.TaskAttachment{}, err
	}

	if strings.TrimSpace(in.FileName) == "" || strings.TrimSpace(in.URL) == "" {
		return model.TaskAttachment{}, domain.E(domain.KindInvalidRequest, opAddAttachment, "attachment file name and url are required")
	}

	now := s.clock().UTC()
	attachment := model.TaskAttachment{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		FileName:     in.FileName,
		OriginalName: in.OriginalName,
		MimeType:     in.MimeType,
		SizeBytes:    in.SizeBytes,
		URL:          in.URL,
		UploadedBy:   actorID,
		UploadedAt:   now,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&attachment).Error; err != nil {
			return err
		}
		activity := newActivity(task.ID, model.ActivityAttached, actorID, map[string]any{"file_name": in.FileName}, now)
		return tx.Create(&activity).Error
	})
	if txErr != nil {
		return model.TaskAttachment{}, domain.Wrap(domain.KindInternal, opAddAttachment, txErr)
	}

	return attachment, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
