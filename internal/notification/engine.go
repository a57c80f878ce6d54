package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/domain"
	"github.com/mprlab/colist/internal/model"
)

// Live event names pushed to the owning user's room.
const (
	EventNotification         = "notification"
	EventNotificationRead     = "notification_read"
	EventAllNotificationsRead = "all_notifications_read"
	EventNotificationDeleted  = "notification_deleted"
)

const (
	opNotify      = "notification.notify"
	opNotifyBulk  = "notification.notify_bulk"
	opList        = "notification.list"
	opMarkRead    = "notification.mark_read"
	opMarkAllRead = "notification.mark_all_read"
	opDelete      = "notification.delete"
	opDeleteAll   = "notification.delete_all"
	opPurge       = "notification.purge_expired"
)

var errMissingDatabase = errors.New("database handle is required")

// Pusher delivers a live event to every open session of a user. Delivery is
// best effort; the durable notification record is the source of truth.
type Pusher interface {
	PushToUser(userID, event string, payload any)
}

// EngineConfig describes the dependencies for the notification engine.
type EngineConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Engine persists notification records and pushes them to live sessions.
// It is the only component that creates notifications.
type Engine struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
	pusher Pusher
}

// NewEngine constructs the notification engine. The pusher is attached later,
// once the realtime hub exists, via AttachPusher.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Database == nil {
		return nil, domain.Wrap(domain.KindInternal, opNotify, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: cfg.Database, clock: clock, logger: logger}, nil
}

// AttachPusher wires the live-push sink. Must be called before serving traffic;
// a nil pusher simply disables pushes.
func (e *Engine) AttachPusher(pusher Pusher) {
	e.pusher = pusher
}

// Input describes one notification to create.
type Input struct {
	UserID    string
	Type      model.NotificationType
	Title     string
	Message   string
	Data      model.NotificationData
	Priority  model.NotificationPriority
	ExpiresAt *time.Time
}

func (e *Engine) buildRecord(in Input) (model.Notification, error) {
	if !model.ValidNotificationType(in.Type) {
		return model.Notification{}, domain.E(domain.KindInvalidRequest, opNotify,
			fmt.Sprintf("unknown notification type %q", in.Type))
	}
	priority := in.Priority
	if priority == "" {
		priority = model.NotificationPriorityMedium
	}
	if !model.ValidNotificationPriority(priority) {
		return model.Notification{}, domain.E(domain.KindInvalidRequest, opNotify,
			fmt.Sprintf("unknown notification priority %q", priority))
	}

	record := model.Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		Priority:  priority,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: e.clock().UTC(),
	}
	record.SetData(in.Data)
	return record, nil
}

// Notify validates the target user, persists the record and attempts a live
// push. Push failure never fails the call.
func (e *Engine) Notify(ctx context.Context, in Input) (model.Notification, error) {
	record, err := e.buildRecord(in)
	if err != nil {
		return model.Notification{}, err
	}

	var count int64
	if err := e.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", in.UserID).Count(&count).Error; err != nil {
		return model.Notification{}, domain.Wrap(domain.KindInternal, opNotify, err)
	}
	if count == 0 {
		return model.Notification{}, domain.E(domain.KindNotFound, opNotify, "target user not found")
	}

	if err := e.db.WithContext(ctx).Create(&record).Error; err != nil {
		return model.Notification{}, domain.Wrap(domain.KindInternal, opNotify, err)
	}

	e.pushRecord(record)
	return record, nil
}

// NotifyBulk persists many records in one batch write. Pushes are attempted
// individually and independently.
func (e *Engine) NotifyBulk(ctx context.Context, inputs []Input) ([]model.Notification, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	records := make([]model.Notification, 0, len(inputs))
	targets := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		record, err := e.buildRecord(in)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
		targets[in.UserID] = struct{}{}
	}

	targetIDs := make([]string, 0, len(targets))
	for userID := range targets {
		targetIDs = append(targetIDs, userID)
	}
	var count int64
	if err := e.db.WithContext(ctx).Model(&model.User{}).Where("id IN ?", targetIDs).Count(&count).Error; err != nil {
		return nil, domain.Wrap(domain.KindInternal, opNotifyBulk, err)
	}
	if count != int64(len(targetIDs)) {
		return nil, domain.E(domain.KindNotFound, opNotifyBulk, "target user not found")
	}

	if err := e.db.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, domain.Wrap(domain.KindInternal, opNotifyBulk, err)
	}

	for _, record := range records {
		e.pushRecord(record)
	}
	return records, nil
}

func (e *Engine) pushRecord(record model.Notification) {
	if e.pusher == nil {
		return
	}
	e.pusher.PushToUser(record.UserID, EventNotification, map[string]any{
		"id":         record.ID,
		"type":       record.Type,
		"title":      record.Title,
		"message":    record.Message,
		"priority":   record.Priority,
		"data":       record.Data(),
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Pagination describes one page of a larger result set.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// ListResult is a newest-first page of notifications. UnreadCount always
// reflects the current total unread regardless of the unreadOnly filter.
type ListResult struct {
	Notifications []model.Notification
	Pagination    Pagination
	UnreadCount   int64
}

// List returns one page of the user's notifications, newest first.
func (e *Engine) List(ctx context.Context, userID string, page, limit int, unreadOnly bool) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	query := e.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return ListResult{}, domain.Wrap(domain.KindInternal, opList, err)
	}

	var records []model.Notification
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error; err != nil {
		return ListResult{}, domain.Wrap(domain.KindInternal, opList, err)
	}

	unread, err := e.unreadCount(ctx, userID)
	if err != nil {
		return ListResult{}, err
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return ListResult{
		Notifications: records,
		Pagination:    Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
		UnreadCount:   unread,
	}, nil
}

func (e *Engine) unreadCount(ctx context.Context, userID string) (int64, error) {
	var unread int64
	err := e.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, opList, err)
	}
	return unread, nil
}

// MarkRead flips one notification to read. Only the owner may.
func (e *Engine) MarkRead(ctx context.Context, userID, notificationID string) (model.Notification, error) {
	var record model.Notification
	err := e.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Notification{}, domain.E(domain.KindNotFound, opMarkRead, "notification not found")
	}
	if err != nil {
		return model.Notification{}, domain.Wrap(domain.KindInternal, opMarkRead, err)
	}

	if !record.IsRead {
		if err := e.db.WithContext(ctx).Model(&model.Notification{}).
			Where("id = ?", record.ID).
			Update("is_read", true).Error; err != nil {
			return model.Notification{}, domain.Wrap(domain.KindInternal, opMarkRead, err)
		}
		record.IsRead = true
	}

	if e.pusher != nil {
		unread, err := e.unreadCount(ctx, userID)
		if err == nil {
			e.pusher.PushToUser(userID, EventNotificationRead, map[string]any{
				"notification_id": notificationID,
				"unread_count":    unread,
			})
		}
	}
	return record, nil
}

// MarkAllRead flips every unread notification of the user to read.
func (e *Engine) MarkAllRead(ctx context.Context, userID string) error {
	err := e.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
	if err != nil {
		return domain.Wrap(domain.KindInternal, opMarkAllRead, err)
	}

	if e.pusher != nil {
		e.pusher.PushToUser(userID, EventAllNotificationsRead, map[string]any{
			"unread_count": 0,
		})
	}
	return nil
}

// Delete removes one notification. Only the owner may.
func (e *Engine) Delete(ctx context.Context, userID, notificationID string) error {
	result := e.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&model.Notification{})
	if result.Error != nil {
		return domain.Wrap(domain.KindInternal, opDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.E(domain.KindNotFound, opDelete, "notification not found or not yours")
	}

	if e.pusher != nil {
		unread, err := e.unreadCount(ctx, userID)
		if err == nil {
			e.pusher.PushToUser(userID, EventNotificationDeleted, map[string]any{
				"notification_id": notificationID,
				"unread_count":    unread,
			})
		}
	}
	return nil
}

// DeleteAll removes every non-archived notification of the user.
func (e *Engine) DeleteAll(ctx context.Context, userID string) (int64, error) {
	result := e.db.WithContext(ctx).
		Where("user_id = ? AND is_archived = ?", userID, false).
		Delete(&model.Notification{})
	if result.Error != nil {
		return 0, domain.Wrap(domain.KindInternal, opDeleteAll, result.Error)
	}

	if e.pusher != nil {
		unread, err := e.unreadCount(ctx, userID)
		if err == nil {
			e.pusher.PushToUser(userID, EventNotificationDeleted, map[string]any{
				"deleted_count": result.RowsAffected,
				"unread_count":  unread,
			})
		}
	}
	return result.RowsAffected, nil
}

// PurgeExpired deletes every record whose expiry has passed. The timer that
// drives it lives elsewhere; the engine only exposes the operation.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	now := e.clock().UTC()
	result := e.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&model.Notification{})
	if result.Error != nil {
		return 0, domain.Wrap(domain.KindInternal, opPurge, result.Error)
	}
	if result.RowsAffected > 0 {
		e.logger.Info("expired notifications purged", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
