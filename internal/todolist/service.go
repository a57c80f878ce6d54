package todolist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mprlab/colist/internal/access"
	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/model"
	"github.com/mprlab/colist/internal/notification"
)

const (
	opCreate            = "todolist.create"
	opGet               = "todolist.get"
	opList              = "todolist.list"
	opUpdate            = "todolist.update"
	opDelete            = "todolist.delete"
	opACL               = "todolist.acl"
	opAddCollaborator   = "todolist.add_collaborator"
	opKickCollaborator  = "todolist.kick_collaborator"
	opLeave             = "todolist.leave"
	opJoin              = "todolist.join"
	opApproveJoin       = "todolist.approve_join"
	opRejectJoin        = "todolist.reject_join"
	opListCollaborators = "todolist.list_collaborators"
)

var errMissingDatabase = errors.New("database handle is required")

// ServiceConfig describes the dependencies for the list service.
type ServiceConfig struct {
	Database *gorm.DB
	Notifier *notification.Engine
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service orchestrates list lifecycle and collaboration membership.
type Service struct {
	db       *gorm.DB
	notifier *notification.Engine
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the list service.
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

// notification dispatch is best effort: failures are logged, never propagated
// into a mutation that already succeeded.
func (s *Service) dispatch(op string, fn func() error) {
	if s.notifier == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.Error("notification dispatch failed", zap.String("operation", op), zap.Error(err))
	}
}

func (s *Service) loadList(ctx context.Context, op, listID string) (model.TodoList, error) {
	var list model.TodoList
	err := s.db.WithContext(ctx).Where("id = ?", listID).Take(&list).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TodoList{}, domain.E(domain.KindNotFound, op, "todo list not found")
	}
	if err != nil {
		return model.TodoList{}, domain.Wrap(domain.KindInternal, op, err)
	}
	return list, nil
}

func (s *Service) loadUser(ctx context.Context, op, userID string) (model.User, error) {
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

func (s *Service) memberIDs(ctx context.Context, op, listID string, state model.MemberState) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.ListMember{}).
		Where("list_id = ? AND state = ?", listID, state).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, op, err)
	}
	return ids, nil
}

// ACL loads the authorization slice for a list: its owner and accepted
// collaborators. Task mutations use it through the access predicates.
func (s *Service) ACL(ctx context.Context, listID string) (access.ListACL, error) {
	list, err := s.loadList(ctx, opACL, listID)
	if err != nil {
		return access.ListACL{}, err
	}
	collaborators, err := s.memberIDs(ctx, opACL, listID, model.MemberStateCollaborator)
	if err != nil {
		return access.ListACL{}, err
	}
	return access.ListACL{OwnerID: list.OwnerID, Collaborators: collaborators}, nil
}

// CanAccess reports whether the user may read a list. A missing list reads as
// no access rather than an error; other failures propagate.
func (s *Service) CanAccess(ctx context.Context, userID, listID string) (bool, error) {
	acl, err := s.ACL(ctx, listID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return access.CanAccessList(userID, acl), nil
}

// Create makes the actor owner of a new list.
func (s *Service) Create(ctx context.Context, actorID, name string) (model.TodoList, error) {
	if _, err := s.loadUser(ctx, opCreate, actorID); err != nil {
		return model.TodoList{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.TodoList{}, domain.E(domain.KindInvalidRequest, opCreate, "list name is required")
	}

	list := model.TodoList{
		ID:      uuid.NewString(),
		Name:    name,
		OwnerID: actorID,
	}
	if err := s.db.WithContext(ctx).Create(&list).Error; err != nil {
		return model.TodoList{}, domain.Wrap(domain.KindInternal, opCreate, err)
	}
	return list, nil
}

// View is a list together with its membership and the caller's role.
type View struct {
	List                 model.TodoList
	Collaborators        []string
	PendingCollaborators []string
	Role                 string
}

// Get returns the list with membership, gated by access.
func (s *Service) Get(ctx context.Context, actorID, listID string) (View, error) {
	list, err := s.loadList(ctx, opGet, listID)
	if err != nil {
		return View{}, err
	}
	collaborators, err := s.memberIDs(ctx, opGet, listID, model.MemberStateCollaborator)
	if err != nil {
		return View{}, err
	}

	acl := access.ListACL{OwnerID: list.OwnerID, Collaborators: collaborators}
	if !access.CanAccessList(actorID, acl) {
		return View{}, domain.E(domain.KindForbidden, opGet, "you don't have access to this todo list")
	}

	pending, err := s.memberIDs(ctx, opGet, listID, model.MemberStatePending)
	if err != nil {
		return View{}, err
	}

	role := "collaborator"
	if actorID == list.OwnerID {
		role = "owner"
	}
	return View{List: list, Collaborators: collaborators, PendingCollaborators: pending, Role: role}, nil
}

// Page is one page of the lists the actor owns or collaborates on.
type Page struct {
	Lists      []View
	Pagination notification.Pagination
}

// List returns the lists the actor owns or collaborates on, role-annotated.
func (s *Service) List(ctx context.Context, actorID string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	sub := s.db.Model(&model.ListMember{}).
		Select("list_id").
		Where("user_id = ? AND state = ?", actorID, model.MemberStateCollaborator)

	query := s.db.WithContext(ctx).Model(&model.TodoList{}).
		Where("owner_id = ? OR id IN (?)", actorID, sub)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return Page{}, domain.Wrap(domain.KindInternal, opList, err)
	}

	var lists []model.TodoList
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&lists).Error; err != nil {
		return Page{}, domain.Wrap(domain.KindInternal, opList, err)
	}

	views := make([]View, 0, len(lists))
	for _, list := range lists {
		collaborators, err := s.memberIDs(ctx, opList, list.ID, model.MemberStateCollaborator)
		if err != nil {
			return Page{}, err
		}
		role := "collaborator"
		if list.OwnerID == actorID {
			role = "owner"
		}
		views = append(views, View{List: list, Collaborators: collaborators, Role: role})
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return Page{
		Lists:      views,
		Pagination: notification.Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
	}, nil
}

// Update renames the list. Owner only.
func (s *Service) Update(ctx context.Context, actorID, listID, name string) (model.TodoList, error) {
	list, err := s.loadList(ctx, opUpdate, listID)
	if err != nil {
		return model.TodoList{}, err
	}
	if list.OwnerID != actorID {
		return model.TodoList{}, domain.E(domain.KindForbidden, opUpdate, "you are not authorized to update this todo list")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return model.TodoList{}, domain.E(domain.KindInvalidRequest, opUpdate, "list name is required")
	}

	if err := s.db.WithContext(ctx).Model(&model.TodoList{}).
		Where("id = ?", listID).
		Update("name", name).Error; err != nil {
		return model.TodoList{}, domain.Wrap(domain.KindInternal, opUpdate, err)
	}
	list.Name = name
	return list, nil
}

// Delete removes the list. Owner only. Collaborators are notified while their
// ids are still known, then tasks are tombstoned and membership cleared.
func (s *Service) Delete(ctx context.Context, actorID, listID string) error {
	list, err := s.loadList(ctx, opDelete, listID)
	if err != nil {
		return err
	}
	if list.OwnerID != actorID {
		return domain.E(domain.KindForbidden, opDelete, "you are not authorized to delete this todo list")
	}

	collaborators, err := s.memberIDs(ctx, opDelete, listID, model.MemberStateCollaborator)
	if err != nil {
		return err
	}

	owner, err := s.loadUser(ctx, opDelete, actorID)
	if err != nil {
		return err
	}

	if len(collaborators) > 0 {
		s.dispatch(opDelete, func() error {
			_, err := s.notifier.TodoListDeleted(ctx, collaborators, list.Name, owner.Username)
			return err
		})
	}

	now := s.clock().UTC()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).
			Where("list_id = ? AND is_deleted = ?", listID, false).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": now,
				"deleted_by": actorID,
			}).Error; err != nil {
			return err
		}
		if err := tx.Where("list_id = ?", listID).Delete(&model.ListMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", listID).Delete(&model.TodoList{}).Error
	})
	if txErr != nil {
		return domain.Wrap(domain.KindInternal, opDelete, txErr)
	}

	s.logger.Info("todo list deleted",
		zap.String("list_id", listID),
		zap.Int("collaborators_notified", len(collaborators)))
	return nil
}

// insertMember is the atomic membership insert: the composite primary key plus
// ON CONFLICT DO NOTHING make concurrent inserts safe without read-modify-write.
func (s *Service) insertMember(ctx context.Context, op, listID, userID string, state model.MemberState) (bool, error) {
	member := model.ListMember{ListID: listID, UserID: userID, State: state}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member)
	if result.Error != nil {
		return false, domain.Wrap(domain.KindInternal, op, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// AddCollaborator grants a user collaborator access. Owner only; self-add and
// already-present collaborators are rejected. A pending requester is promoted.
func (s *Service) AddCollaborator(ctx context.Context, actorID, listID, collaboratorID string) error {
	list, err := s.loadList(ctx, opAddCollaborator, listID)
	if err != nil {
		return err
	}
	if _, err := s.loadUser(ctx, opAddCollaborator, collaboratorID); err != nil {
		return err
	}
	actor, err := s.loadUser(ctx, opAddCollaborator, actorID)
	if err != nil {
		return err
	}

	if !access.CanManageCollaborators(actorID, access.ListACL{OwnerID: list.OwnerID}) {
		return domain.E(domain.KindForbidden, opAddCollaborator, "you are not authorized to add collaborators to this todo list")
	}
	if actorID == collaboratorID {
		return domain.E(domain.KindInvalidRequest, opAddCollaborator, "you cannot add yourself as a collaborator")
	}

	inserted, err := s.insertMember(ctx, opAddCollaborator, listID, collaboratorID, model.MemberStateCollaborator)
	if err != nil {
		return err
	}
	if !inserted {
		var member model.ListMember
		if err := s.db.WithContext(ctx).
			Where("list_id = ? AND user_id = ?", listID, collaboratorID).
			Take(&member).Error; err != nil {
			return domain.Wrap(domain.KindInternal, opAddCollaborator, err)
		}
		if member.State == model.MemberStateCollaborator {
			return domain.E(domain.KindConflict, opAddCollaborator, "collaborator already added")
		}
		if err := s.db.WithContext(ctx).Model(&model.ListMember{}).
			Where("list_id = ? AND user_id = ? AND state = ?", listID, collaboratorID, model.MemberStatePending).
			Update("state", model.MemberStateCollaborator).Error; err != nil {
			return domain.Wrap(domain.KindInternal, opAddCollaborator, err)
		}
	}

	s.dispatch(opAddCollaborator, func() error {
		_, err := s.notifier.CollaboratorAdded(ctx, collaboratorID, listID, list.Name, actorID, actor.Username)
		return err
	})
	return nil
}

// KickCollaborator removes a collaborator. Owner only.
func (s *Service) KickCollaborator(ctx context.Context, actorID, listID, collaboratorID string) error {
	list, err := s.loadList(ctx, opKickCollaborator, listID)
	if err != nil {
		return err
	}
	if _, err := s.loadUser(ctx, opKickCollaborator, collaboratorID); err != nil {
		return err
	}
	actor, err := s.loadUser(ctx, opKickCollaborator, actorID)
	if err != nil {
		return err
	}

	if !access.CanManageCollaborators(actorID, access.ListACL{OwnerID: list.OwnerID}) {
		return domain.E(domain.KindForbidden, opKickCollaborator, "you are not authorized to kick collaborators from this todo list")
	}

	result := s.db.WithContext(ctx).
		Where("list_id = ? AND user_id = ? AND state = ?", listID, collaboratorID, model.MemberStateCollaborator).
		Delete(&model.ListMember{})
	if result.Error != nil {
		return domain.Wrap(domain.KindInternal, opKickCollaborator, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.E(domain.KindNotFound, opKickCollaborator, "collaborator not found in todo list")
	}

	s.dispatch(opKickCollaborator, func() error {
		_, err := s.notifier.CollaboratorKicked(ctx, collaboratorID, list.Name, actorID, actor.Username)
		return err
	})
	return nil
}

// Leave removes the caller from the collaborators of a list and notifies the
// owner.
func (s *Service) Leave(ctx context.Context, actorID, listID string) error {
	list, err := s.loadList(ctx, opLeave, listID)
	if err != nil {
		return err
	}
	actor, err := s.loadUser(ctx, opLeave, actorID)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("list_id = ? AND user_id = ? AND state = ?", listID, actorID, model.MemberStateCollaborator).
		Delete(&model.ListMember{})
	if result.Error != nil {
		return domain.Wrap(domain.KindInternal, opLeave, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.E(domain.KindNotFound, opLeave, "collaborator not found in todo list")
	}

	s.dispatch(opLeave, func() error {
		_, err := s.notifier.CollaboratorLeft(ctx, list.OwnerID, actorID, actor.Username, list.Name)
		return err
	})
	return nil
}

// Join places the requester into the pending set and notifies the owner.
func (s *Service) Join(ctx context.Context, actorID, listID string) error {
	list, err := s.loadList(ctx, opJoin, listID)
	if err != nil {
		return err
	}
	actor, err := s.loadUser(ctx, opJoin, actorID)
	if err != nil {
		return err
	}

	if list.OwnerID == actorID {
		return domain.E(domain.KindConflict, opJoin, "you are the owner of this todo list")
	}

	inserted, err := s.insertMember(ctx, opJoin, listID, actorID, model.MemberStatePending)
	if err != nil {
		return err
	}
	if !inserted {
		return domain.E(domain.KindConflict, opJoin, "you are already a collaborator or have a pending request")
	}

	s.dispatch(opJoin, func() error {
		if _, err := s.notifier.RequestToJoin(ctx, list.OwnerID, actorID, actor.Username, listID, list.Name); err != nil {
			return err
		}
		_, err := s.notifier.JoinRequestSent(ctx, actorID, listID, list.Name)
		return err
	})
	return nil
}

// ApproveJoin promotes a pending requester to collaborator. Owner only.
func (s *Service) ApproveJoin(ctx context.Context, actorID, listID, requesterID string) error {
	list, err := s.loadList(ctx, opApproveJoin, listID)
	if err != nil {
		return err
	}
	if !access.CanManageCollaborators(actorID, access.ListACL{OwnerID: list.OwnerID}) {
		return domain.E(domain.KindForbidden, opApproveJoin, "you are not authorized to approve join requests")
	}

	result := s.db.WithContext(ctx).Model(&model.ListMember{}).
		Where("list_id = ? AND user_id = ? AND state = ?", listID, requesterID, model.MemberStatePending).
		Update("state", model.MemberStateCollaborator)
	if result.Error != nil {
		return domain.Wrap(domain.KindInternal, opApproveJoin, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.E(domain.KindNotFound, opApproveJoin, "join request not found")
	}

	s.dispatch(opApproveJoin, func() error {
		_, err := s.notifier.JoinRequestAccepted(ctx, requesterID, listID, list.Name, actorID)
		return err
	})
	return nil
}

// RejectJoin removes a pending requester. Owner only.
func (s *Service) RejectJoin(ctx context.Context, actorID, listID, requesterID string) error {
	list, err := s.loadList(ctx, opRejectJoin, listID)
	if err != nil {
		return err
	}
	if !access.CanManageCollaborators(actorID, access.ListACL{OwnerID: list.OwnerID}) {
		return domain.E(domain.KindForbidden, opRejectJoin, "you are not authorized to reject join requests")
	}

	result := s.db.WithContext(ctx).
		Where("list_id = ? AND user_id = ? AND state = ?", listID, requesterID, model.MemberStatePending).
		Delete(&model.ListMember{})
	if result.Error != nil {
		return domain.Wrap(domain.KindInternal, opRejectJoin, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.E(domain.KindNotFound, opRejectJoin, "join request not found")
	}

	s.dispatch(opRejectJoin, func() error {
		_, err := s.notifier.JoinRequestRejected(ctx, requesterID, list.Name, actorID)
		return err
	})
	return nil
}

// ListCollaborators returns the accepted collaborators of a list, excluding
// the caller. Gated by access.
func (s *Service) ListCollaborators(ctx context.Context, actorID, listID string) ([]model.User, error) {
	list, err := s.loadList(ctx, opListCollaborators, listID)
	if err != nil {
		return nil, err
	}
	collaborators, err := s.memberIDs(ctx, opListCollaborators, listID, model.MemberStateCollaborator)
	if err != nil {
		return nil, err
	}

	acl := access.ListACL{OwnerID: list.OwnerID, Collaborators: collaborators}
	if !access.CanAccessList(actorID, acl) {
		return nil, domain.E(domain.KindForbidden, opListCollaborators, "you are not authorized to access this todo list")
	}

	if len(collaborators) == 0 {
		return nil, nil
	}
	var members []model.User
	if err := s.db.WithContext(ctx).
		Where("id IN ? AND id <> ?", collaborators, actorID).
		Find(&members).Error; err != nil {
		return nil, domain.Wrap(domain.KindInternal, opListCollaborators, err)
	}
	return members, nil
}
