package todolist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/database"
	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/model"
	"github.com/mprlab/colist/internal/notification"
)

type fixture struct {
	db      *gorm.DB
	service *Service
	engine  *notification.Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "colist.db"), nil)
	if err != nil {
		t.Fatalf("unexpected database error: %v", err)
	}
	engine, err := notification.NewEngine(notification.EngineConfig{Database: db, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected engine error: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Notifier: engine, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return fixture{db: db, service: service, engine: engine}
}

func (f fixture) mustCreateUser(t *testing.T, username string) model.User {
	t.Helper()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("unexpected user create error: %v", err)
	}
	return user
}

func (f fixture) mustCreateList(t *testing.T, ownerID, name string) model.TodoList {
	t.Helper()
	list, err := f.service.Create(context.Background(), ownerID, name)
	if err != nil {
		t.Fatalf("unexpected list create error: %v", err)
	}
	return list
}

func (f fixture) notificationsFor(t *testing.T, userID string, kind model.NotificationType) []model.Notification {
	t.Helper()
	var records []model.Notification
	if err := f.db.Where("user_id = ? AND type = ?", userID, kind).Find(&records).Error; err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	return records
}

func TestCreateListMakesActorOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")

	list := f.mustCreateList(t, owner.ID, "Groceries")
	if list.OwnerID != owner.ID {
		t.Fatalf("expected actor to own the list")
	}

	view, err := f.service.Get(context.Background(), owner.ID, list.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if view.Role != "owner" {
		t.Fatalf("expected owner role, got %q", view.Role)
	}
	if len(view.Collaborators) != 0 {
		t.Fatalf("expected owner to not appear among collaborators")
	}
}

func TestGetDeniesStranger(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	stranger := f.mustCreateUser(t, "mallory")
	list := f.mustCreateList(t, owner.ID, "Groceries")

	_, err := f.service.Get(context.Background(), stranger.ID, list.ID)
	if !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAddKickCollaboratorRoundTrip(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	collaborator := f.mustCreateUser(t, "bob")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if err := f.service.AddCollaborator(ctx, owner.ID, list.ID, collaborator.ID); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	view, err := f.service.Get(ctx, collaborator.ID, list.ID)
	if err != nil {
		t.Fatalf("expected collaborator to gain access: %v", err)
	}
	if view.Role != "collaborator" {
		t.Fatalf("expected collaborator role, got %q", view.Role)
	}
	if len(f.notificationsFor(t, collaborator.ID, model.NotificationCollaboratorAdded)) != 1 {
		t.Fatalf("expected one added notification")
	}

	err = f.service.AddCollaborator(ctx, owner.ID, list.ID, collaborator.ID)
	if !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict on duplicate add, got %v", err)
	}

	if err := f.service.KickCollaborator(ctx, owner.ID, list.ID, collaborator.ID); err != nil {
		t.Fatalf("unexpected kick error: %v", err)
	}
	if _, err := f.service.Get(ctx, collaborator.ID, list.ID); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected access revoked after kick, got %v", err)
	}
	if len(f.notificationsFor(t, collaborator.ID, model.NotificationCollaboratorKicked)) != 1 {
		t.Fatalf("expected one kicked notification")
	}
}

func TestAddCollaboratorRules(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	collaborator := f.mustCreateUser(t, "bob")
	outsider := f.mustCreateUser(t, "carol")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if err := f.service.AddCollaborator(ctx, collaborator.ID, list.ID, outsider.ID); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	if err := f.service.AddCollaborator(ctx, owner.ID, list.ID, owner.ID); !domain.IsKind(err, domain.KindInvalidRequest) {
		t.Fatalf("expected invalid request on self-add, got %v", err)
	}
	if err := f.service.AddCollaborator(ctx, owner.ID, list.ID, uuid.NewString()); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestDeleteListNotifiesEveryCollaborator(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	collaborators := make([]model.User, 0, 3)
	for _, name := range []string{"bob", "carol", "dave"} {
		user := f.mustCreateUser(t, name)
		collaborators = append(collaborators, user)
		if err := f.service.AddCollaborator(ctx, owner.ID, list.ID, user.ID); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}

	task := model.Task{ID: uuid.NewString(), ListID: list.ID, Title: "Milk", CreatedBy: owner.ID}
	if err := f.db.Create(&task).Error; err != nil {
		t.Fatalf("unexpected task create error: %v", err)
	}

	if err := f.service.Delete(ctx, owner.ID, list.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	for _, collaborator := range collaborators {
		if len(f.notificationsFor(t, collaborator.ID, model.NotificationTodoListDeleted)) != 1 {
			t.Fatalf("expected exactly one deletion notification for %s", collaborator.Username)
		}
	}
	if len(f.notificationsFor(t, owner.ID, model.NotificationTodoListDeleted)) != 0 {
		t.Fatalf("expected no deletion notification for the owner")
	}

	var tombstoned model.Task
	if err := f.db.Where("id = ?", task.ID).Take(&tombstoned).Error; err != nil {
		t.Fatalf("unexpected task query error: %v", err)
	}
	if !tombstoned.IsDeleted {
		t.Fatalf("expected task to be tombstoned with the list")
	}

	var members int64
	if err := f.db.Model(&model.ListMember{}).Where("list_id = ?", list.ID).Count(&members).Error; err != nil {
		t.Fatalf("unexpected member query error: %v", err)
	}
	if members != 0 {
		t.Fatalf("expected membership cleared, got %d rows", members)
	}
}

func TestDeleteListOwnerOnly(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	collaborator := f.mustCreateUser(t, "bob")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if err := f.service.AddCollaborator(ctx, owner.ID, list.ID, collaborator.ID); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := f.service.Delete(ctx, collaborator.ID, list.ID); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestJoinApproveFlow(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	requester := f.mustCreateUser(t, "bob")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if err := f.service.Join(ctx, owner.ID, list.ID); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict for owner join, got %v", err)
	}

	if err := f.service.Join(ctx, requester.ID, list.ID); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	if err := f.service.Join(ctx, requester.ID, list.ID); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict on duplicate join, got %v", err)
	}
	if len(f.notificationsFor(t, owner.ID, model.NotificationRequestToJoin)) != 1 {
		t.Fatalf("expected owner to be notified of the request")
	}
	if len(f.notificationsFor(t, requester.ID, model.NotificationJoinRequestSent)) != 1 {
		t.Fatalf("expected requester confirmation")
	}

	if err := f.service.ApproveJoin(ctx, requester.ID, list.ID, requester.ID); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected forbidden self-approval, got %v", err)
	}
	if err := f.service.ApproveJoin(ctx, owner.ID, list.ID, requester.ID); err != nil {
		t.Fatalf("unexpected approve error: %v", err)
	}

	view, err := f.service.Get(ctx, requester.ID, list.ID)
	if err != nil {
		t.Fatalf("expected requester to gain access: %v", err)
	}
	if view.Role != "collaborator" {
		t.Fatalf("expected collaborator role, got %q", view.Role)
	}
	if len(f.notificationsFor(t, requester.ID, model.NotificationJoinRequestAccepted)) != 1 {
		t.Fatalf("expected acceptance notification")
	}
}

func TestJoinRejectFlow(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	requester := f.mustCreateUser(t, "bob")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if err := f.service.Join(ctx, requester.ID, list.ID); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	if err := f.service.RejectJoin(ctx, owner.ID, list.ID, requester.ID); err != nil {
		t.Fatalf("unexpected reject error: %v", err)
	}
	if _, err := f.service.Get(ctx, requester.ID, list.ID); !domain.IsKind(err, domain.KindForbidden) {
		t.Fatalf("expected no access after rejection, got %v", err)
	}
	if len(f.notificationsFor(t, requester.ID, model.NotificationJoinRequestRejected)) != 1 {
		t.Fatalf("expected rejection notification")
	}

	if err := f.service.RejectJoin(ctx, owner.ID, list.ID, requester.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found on second reject, got %v", err)
	}
}

func TestLeaveNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	collaborator := f.mustCreateUser(t, "bob")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if err := f.service.AddCollaborator(ctx, owner.ID, list.ID, collaborator.ID); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := f.service.Leave(ctx, collaborator.ID, list.ID); err != nil {
		t.Fatalf("unexpected leave error: %v", err)
	}
	if len(f.notificationsFor(t, owner.ID, model.NotificationCollaboratorLeft)) != 1 {
		t.Fatalf("expected owner to be notified")
	}
	if err := f.service.Leave(ctx, collaborator.ID, list.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found on second leave, got %v", err)
	}
}

func TestListReturnsOwnedAndCollaborating(t *testing.T) {
	f := newFixture(t)
	alice := f.mustCreateUser(t, "alice")
	bob := f.mustCreateUser(t, "bob")
	ctx := context.Background()

	owned := f.mustCreateList(t, alice.ID, "Mine")
	shared := f.mustCreateList(t, bob.ID, "Shared")
	f.mustCreateList(t, bob.ID, "Private")
	if err := f.service.AddCollaborator(ctx, bob.ID, shared.ID, alice.ID); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	page, err := f.service.List(ctx, alice.ID, 1, 10)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(page.Lists) != 2 {
		t.Fatalf("expected 2 visible lists, got %d", len(page.Lists))
	}
	roles := map[string]string{}
	for _, view := range page.Lists {
		roles[view.List.ID] = view.Role
	}
	if roles[owned.ID] != "owner" || roles[shared.ID] != "collaborator" {
		t.Fatalf("unexpected roles: %v", roles)
	}
}

func TestCanAccess(t *testing.T) {
	f := newFixture(t)
	owner := f.mustCreateUser(t, "alice")
	stranger := f.mustCreateUser(t, "mallory")
	list := f.mustCreateList(t, owner.ID, "Groceries")
	ctx := context.Background()

	if ok, err := f.service.CanAccess(ctx, owner.ID, list.ID); err != nil || !ok {
		t.Fatalf("expected owner access, got ok=%v err=%v", ok, err)
	}
	if ok, err := f.service.CanAccess(ctx, stranger.ID, list.ID); err != nil || ok {
		t.Fatalf("expected stranger denied, got ok=%v err=%v", ok, err)
	}
	if ok, err := f.service.CanAccess(ctx, owner.ID, uuid.NewString()); err != nil || ok {
		t.Fatalf("expected missing list to read as no access, got ok=%v err=%v", ok, err)
	}
}
