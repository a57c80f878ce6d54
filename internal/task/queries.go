package task

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/access"
	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/model"
)

// Detail bundles a task with its subtasks, comments, activity log and
// attachment metadata.
type Detail struct {
	Task        model.Task
	Subtasks    []model.Task
	Comments    []model.TaskComment
	Activities  []model.TaskActivity
	Attachments []model.TaskAttachment
}

// Get loads one task and everything hanging off it. Requires list access.
func (s *Service) Get(ctx context.Context, actorID, listID, taskID string) (Detail, error) {
	_, acl, err := s.loadList(ctx, opGet, listID)
	if err != nil {
		return Detail{}, err
	}
	if !access.CanAccessList(actorID, acl) {
		return Detail{}, domain.E(domain.KindForbidden, opGet, "you don't have access to this todo list")
	}
	task, err := s.loadTask(ctx, opGet, listID, taskID)
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{Task: task}
	if err := s.db.WithContext(ctx).
		Where("parent_task_id = ? AND is_deleted = ?", task.ID, false).
		Order("created_at ASC").
		Find(&detail.Subtasks).Error; err != nil {
		return Detail{}, domain.Wrap(domain.KindInternal, opGet, err)
	}
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", task.ID).
		Order("created_at ASC").
		Find(&detail.Comments).Error; err != nil {
		return Detail{}, domain.Wrap(domain.KindInternal, opGet, err)
	}
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", task.ID).
		Order("created_at ASC").
		Find(&detail.Activities).Error; err != nil {
		return Detail{}, domain.Wrap(domain.KindInternal, opGet, err)
	}
	if err := s.db.WithContext(ctx).
		Where("task_id = ?", task.ID).
		Order("uploaded_at ASC").
		Find(&detail.Attachments).Error; err != nil {
		return Detail{}, domain.Wrap(domain.KindInternal, opGet, err)
	}
	return detail, nil
}

// ListOptions filters and pages a task listing.
type ListOptions struct {
	Page             int
	Limit            int
	IncludeCompleted bool
	Status           model.TaskStatus
	Priority         model.TaskPriority
	AssignedTo       string
	Search           string
	SortBy           string
	SortOrder        string
}

// Page is one page of tasks.
type Page struct {
	Tasks      []model.Task
	Pagination Pagination
}

// Pagination describes one page of a larger result set.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"due_date":   "due_date",
	"priority":   "priority",
	"title":      "title",
}

func orderClause(opts ListOptions) string {
	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		direction = "ASC"
	}
	return fmt.Sprintf("%s %s", column, direction)
}

func (s *Service) pageTasks(ctx context.Context, op string, query *gorm.DB, opts ListOptions) (Page, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 20
	}

	if opts.Status != "" {
		if !model.ValidTaskStatus(opts.Status) {
			return Page{}, domain.E(domain.KindInvalidRequest, op, "unknown task status")
		}
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Priority != "" {
		if !model.ValidTaskPriority(opts.Priority) {
			return Page{}, domain.E(domain.KindInvalidRequest, op, "unknown task priority")
		}
		query = query.Where("priority = ?", opts.Priority)
	}
	if opts.AssignedTo != "" {
		query = query.Where("assigned_to = ?", opts.AssignedTo)
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", pattern, pattern)
	}
	if !opts.IncludeCompleted {
		query = query.Where("completed = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return Page{}, domain.Wrap(domain.KindInternal, op, err)
	}

	var tasks []model.Task
	if err := query.
		Order(orderClause(opts)).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return Page{}, domain.Wrap(domain.KindInternal, op, err)
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return Page{
		Tasks:      tasks,
		Pagination: Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
	}, nil
}

// ListByList returns one page of a list's top-level tasks. Requires list
// access. Subtasks are reached through their parent, not listed here.
func (s *Service) ListByList(ctx context.Context, actorID, listID string, opts ListOptions) (Page, error) {
	_, acl, err := s.loadList(ctx, opListByList, listID)
	if err != nil {
		return Page{}, err
	}
	if !access.CanAccessList(actorID, acl) {
		return Page{}, domain.E(domain.KindForbidden, opListByList, "you don't have access to this todo list")
	}

	query := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("list_id = ? AND is_deleted = ? AND parent_task_id = ?", listID, false, "")
	return s.pageTasks(ctx, opListByList, query, opts)
}

// ListMine returns one page of tasks assigned to the caller across all lists.
func (s *Service) ListMine(ctx context.Context, actorID string, opts ListOptions) (Page, error) {
	query := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("assigned_to = ? AND is_deleted = ?", actorID, false)
	return s.pageTasks(ctx, opListMine, query, opts)
}

// Overdue returns the caller's live, uncompleted tasks whose due date has
// passed, soonest first. A task counts as the caller's when assigned to or
// created by them.
func (s *Service) Overdue(ctx context.Context, actorID string) ([]model.Task, error) {
	now := s.clock().UTC()
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Where("is_deleted = ? AND completed = ?", false, false).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("assigned_to = ? OR created_by = ?", actorID, actorID).
		Order("due_date ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, opOverdue, err)
	}
	return tasks, nil
}

// StatsResult aggregates task counts.
type StatsResult struct {
	Total      int64                        `json:"total"`
	Completed  int64                        `json:"completed"`
	Pending    int64                        `json:"pending"`
	Overdue    int64                        `json:"overdue"`
	ByStatus   map[model.TaskStatus]int64   `json:"by_status"`
	ByPriority map[model.TaskPriority]int64 `json:"by_priority"`
}

// Stats aggregates over one list (requires access) or, with an empty listID,
// over every list the caller owns or collaborates on.
func (s *Service) Stats(ctx context.Context, actorID, listID string) (StatsResult, error) {
	query := s.db.WithContext(ctx).Model(&model.Task{}).Where("is_deleted = ?", false)
	if listID != "" {
		_, acl, err := s.loadList(ctx, opStats, listID)
		if err != nil {
			return StatsResult{}, err
		}
		if !access.CanAccessList(actorID, acl) {
			return StatsResult{}, domain.E(domain.KindForbidden, opStats, "you don't have access to this todo list")
		}
		query = query.Where("list_id = ?", listID)
	} else {
		memberLists := s.db.Model(&model.ListMember{}).
			Select("list_id").
			Where("user_id = ? AND state = ?", actorID, model.MemberStateCollaborator)
		accessibleLists := s.db.Model(&model.TodoList{}).
			Select("id").
			Where("owner_id = ? OR id IN (?)", actorID, memberLists)
		query = query.Where("list_id IN (?)", accessibleLists)
	}

	var tasks []model.Task
	if err := query.Find(&tasks).Error; err != nil {
		return StatsResult{}, domain.Wrap(domain.KindInternal, opStats, err)
	}

	now := s.clock().UTC()
	result := StatsResult{
		ByStatus:   map[model.TaskStatus]int64{},
		ByPriority: map[model.TaskPriority]int64{},
	}
	for _, t := range tasks {
		result.Total++
		if t.Completed {
			result.Completed++
		} else {
			result.Pending++
		}
		if t.IsOverdue(now) {
			result.Overdue++
		}
		result.ByStatus[t.Status]++
		result.ByPriority[t.Priority]++
	}
	return result, nil
}
