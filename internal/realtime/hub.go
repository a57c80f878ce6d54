package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mprlab/colist/internal/model"
)

var errMissingLogger = errors.New("logger is required")

// AccessChecker gates room membership on list access.
type AccessChecker interface {
	CanAccess(ctx context.Context, userID, listID string) (bool, error)
}

// NotificationStore is the slice of the notification engine the hub drives:
// acking reads from the socket and purging expired records on a timer.
type NotificationStore interface {
	MarkRead(ctx context.Context, userID, notificationID string) (model.Notification, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// HubConfig describes the dependencies for the realtime hub.
type HubConfig struct {
	Logger        *zap.Logger
	Clock         func() time.Time
	Access        AccessChecker
	Notifications NotificationStore
	StatsInterval time.Duration
	PurgeInterval time.Duration
}

// Hub tracks every live session, grouped by user and by list room, and fans
// events out to them. All session and room state is guarded by one mutex;
// sends never block, a slow session just misses the frame.
type Hub struct {
	logger        *zap.Logger
	clock         func() time.Time
	access        AccessChecker
	notifications NotificationStore
	statsInterval time.Duration
	purgeInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]map[string]*Session // userID -> sessionID -> session
	rooms    map[string]map[string]*Session // listID -> sessionID -> session
}

// NewHub constructs the hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Logger == nil {
		return nil, errMissingLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	statsInterval := cfg.StatsInterval
	if statsInterval <= 0 {
		statsInterval = 5 * time.Minute
	}
	purgeInterval := cfg.PurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = time.Hour
	}
	return &Hub{
		logger:        cfg.Logger,
		clock:         clock,
		access:        cfg.Access,
		notifications: cfg.Notifications,
		statsInterval: statsInterval,
		purgeInterval: purgeInterval,
		sessions:      make(map[string]map[string]*Session),
		rooms:         make(map[string]map[string]*Session),
	}, nil
}

func (h *Hub) timestamp() string {
	return h.clock().UTC().Format(time.RFC3339)
}

func deliver(session *Session, envelope Envelope) bool {
	select {
	case session.send <- envelope:
		return true
	default:
		return false
	}
}

// Register adds a session and confirms the connection to it.
func (h *Hub) Register(session *Session) {
	h.mu.Lock()
	bySession, ok := h.sessions[session.UserID]
	if !ok {
		bySession = make(map[string]*Session)
		h.sessions[session.UserID] = bySession
	}
	bySession[session.ID] = session
	h.mu.Unlock()

	deliver(session, Envelope{Event: EventConnectionStatus, Data: map[string]any{
		"status":    "connected",
		"user_id":   session.UserID,
		"timestamp": h.timestamp(),
	}})
	h.logger.Info("session connected",
		zap.String("user_id", session.UserID), zap.String("session_id", session.ID))
}

// Unregister drops a session, removes it from every room it joined and tells
// those rooms the user disconnected.
func (h *Hub) Unregister(session *Session, reason string) {
	h.mu.Lock()
	if bySession, ok := h.sessions[session.UserID]; ok {
		delete(bySession, session.ID)
		if len(bySession) == 0 {
			delete(h.sessions, session.UserID)
		}
	}
	joined := make([]string, 0, len(session.rooms))
	for listID := range session.rooms {
		joined = append(joined, listID)
		h.removeFromRoomLocked(session, listID)
	}
	h.mu.Unlock()

	payload := map[string]any{
		"user_id":   session.UserID,
		"username":  session.Username,
		"reason":    reason,
		"timestamp": h.timestamp(),
	}
	for _, listID := range joined {
		h.broadcastToRoom(listID, Envelope{Event: EventUserDisconnected, Data: payload}, session.ID)
	}
	h.logger.Info("session disconnected",
		zap.String("user_id", session.UserID),
		zap.String("session_id", session.ID),
		zap.String("reason", reason))
}

func (h *Hub) removeFromRoomLocked(session *Session, listID string) {
	delete(session.rooms, listID)
	if room, ok := h.rooms[listID]; ok {
		delete(room, session.ID)
		if len(room) == 0 {
			delete(h.rooms, listID)
		}
	}
}

// JoinList subscribes a session to a list room after an access check, then
// tells the rest of the room who arrived.
func (h *Hub) JoinList(ctx context.Context, session *Session, listID string) error {
	if listID == "" {
		return errors.New("list id is required")
	}
	if h.access != nil {
		allowed, err := h.access.CanAccess(ctx, session.UserID, listID)
		if err != nil {
			return err
		}
		if !allowed {
			return errors.New("you don't have access to this todo list")
		}
	}

	h.mu.Lock()
	room, ok := h.rooms[listID]
	if !ok {
		room = make(map[string]*Session)
		h.rooms[listID] = room
	}
	room[session.ID] = session
	session.rooms[listID] = struct{}{}
	h.mu.Unlock()

	h.broadcastToRoom(listID, Envelope{Event: EventUserJoinedList, Data: map[string]any{
		"list_id":   listID,
		"user_id":   session.UserID,
		"username":  session.Username,
		"timestamp": h.timestamp(),
	}}, session.ID)
	return nil
}

// LeaveList unsubscribes a session from a list room and tells the room.
func (h *Hub) LeaveList(session *Session, listID string) {
	h.mu.Lock()
	_, joined := session.rooms[listID]
	if joined {
		h.removeFromRoomLocked(session, listID)
	}
	h.mu.Unlock()
	if !joined {
		return
	}

	h.broadcastToRoom(listID, Envelope{Event: EventUserLeftList, Data: map[string]any{
		"list_id":   listID,
		"user_id":   session.UserID,
		"username":  session.Username,
		"timestamp": h.timestamp(),
	}}, session.ID)
}

// broadcastToRoom fans an envelope out to every session in the room except
// the excluded one. Full queues drop the frame.
func (h *Hub) broadcastToRoom(listID string, envelope Envelope, excludeSessionID string) {
	h.mu.RLock()
	room := h.rooms[listID]
	targets := make([]*Session, 0, len(room))
	for _, session := range room {
		if session.ID != excludeSessionID {
			targets = append(targets, session)
		}
	}
	h.mu.RUnlock()

	for _, session := range targets {
		if !deliver(session, envelope) {
			h.logger.Warn("dropped room frame",
				zap.String("list_id", listID),
				zap.String("session_id", session.ID),
				zap.String("event", envelope.Event))
		}
	}
}

// PushToUser fans an envelope out to every open session of one user.
func (h *Hub) PushToUser(userID, event string, payload any) {
	h.mu.RLock()
	bySession := h.sessions[userID]
	targets := make([]*Session, 0, len(bySession))
	for _, session := range bySession {
		targets = append(targets, session)
	}
	h.mu.RUnlock()

	envelope := Envelope{Event: event, Data: payload}
	for _, session := range targets {
		if !deliver(session, envelope) {
			h.logger.Warn("dropped user frame",
				zap.String("user_id", userID),
				zap.String("session_id", session.ID),
				zap.String("event", event))
		}
	}
}

// OnlineUsers lists every session present in a room.
func (h *Hub) OnlineUsers(listID string) []OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]OnlineUser, 0, len(h.rooms[listID]))
	for _, session := range h.rooms[listID] {
		users = append(users, OnlineUser{
			UserID:    session.UserID,
			Username:  session.Username,
			SessionID: session.ID,
		})
	}
	return users
}

// StatsSnapshot is a point-in-time view of hub load.
type StatsSnapshot struct {
	ConnectedUsers int `json:"connected_users"`
	ActiveSessions int `json:"active_sessions"`
	ActiveRooms    int `json:"active_rooms"`
}

// Stats counts distinct users, open sessions and populated rooms.
func (h *Hub) Stats() StatsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := 0
	for _, bySession := range h.sessions {
		sessions += len(bySession)
	}
	return StatsSnapshot{
		ConnectedUsers: len(h.sessions),
		ActiveSessions: sessions,
		ActiveRooms:    len(h.rooms),
	}
}

func (h *Hub) broadcastStats() {
	snapshot := h.Stats()
	payload := map[string]any{
		"connected_users": snapshot.ConnectedUsers,
		"active_sessions": snapshot.ActiveSessions,
		"active_rooms":    snapshot.ActiveRooms,
		"timestamp":       h.timestamp(),
	}

	h.mu.RLock()
	targets := make([]*Session, 0)
	for _, bySession := range h.sessions {
		for _, session := range bySession {
			targets = append(targets, session)
		}
	}
	h.mu.RUnlock()

	envelope := Envelope{Event: EventServerStats, Data: payload}
	for _, session := range targets {
		deliver(session, envelope)
	}
}

// Run drives the periodic work: stats broadcasts and expired-notification
// purges. Blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	statsTicker := time.NewTicker(h.statsInterval)
	purgeTicker := time.NewTicker(h.purgeInterval)
	defer statsTicker.Stop()
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			h.broadcastStats()
		case <-purgeTicker.C:
			if h.notifications == nil {
				continue
			}
			if _, err := h.notifications.PurgeExpired(ctx); err != nil {
				h.logger.Error("notification purge failed", zap.Error(err))
			}
		}
	}
}

func (h *Hub) sendError(session *Session, message string) {
	deliver(session, Envelope{Event: EventError, Data: map[string]any{
		"message":   message,
		"timestamp": h.timestamp(),
	}})
}

// HandleMessage decodes one inbound frame and dispatches it.
func (h *Hub) HandleMessage(ctx context.Context, session *Session, raw []byte) {
	var inbound inboundEnvelope
	if err := json.Unmarshal(raw, &inbound); err != nil {
		h.sendError(session, "malformed message")
		return
	}

	switch inbound.Event {
	case EventJoinList:
		var payload roomPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.sendError(session, "malformed join_list payload")
			return
		}
		if err := h.JoinList(ctx, session, payload.ListID); err != nil {
			h.sendError(session, err.Error())
		}

	case EventLeaveList:
		var payload roomPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.sendError(session, "malformed leave_list payload")
			return
		}
		h.LeaveList(session, payload.ListID)

	case EventTaskUpdate:
		var payload taskUpdatePayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.sendError(session, "malformed task_update payload")
			return
		}
		h.relayTaskUpdate(session, payload)

	case EventTyping:
		var payload typingPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.sendError(session, "malformed typing payload")
			return
		}
		h.relayTyping(session, payload)

	case EventNotificationAck:
		var payload notificationAckPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.sendError(session, "malformed notification_ack payload")
			return
		}
		if h.notifications == nil {
			return
		}
		if _, err := h.notifications.MarkRead(ctx, session.UserID, payload.NotificationID); err != nil {
			h.sendError(session, "notification not found")
		}

	case EventGetOnlineUsers:
		var payload roomPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.sendError(session, "malformed get_online_users payload")
			return
		}
		deliver(session, Envelope{Event: EventOnlineUsers, Data: map[string]any{
			"list_id": payload.ListID,
			"users":   h.OnlineUsers(payload.ListID),
		}})

	default:
		h.sendError(session, "unknown event")
	}
}

// relayTaskUpdate forwards a task change to the rest of the room. The sender
// must have joined the room; the task body passes through untouched.
func (h *Hub) relayTaskUpdate(session *Session, payload taskUpdatePayload) {
	h.mu.RLock()
	_, joined := session.rooms[payload.ListID]
	h.mu.RUnlock()
	if !joined {
		h.sendError(session, "join the list before sending updates")
		return
	}

	h.broadcastToRoom(payload.ListID, Envelope{Event: EventTaskUpdated, Data: map[string]any{
		"list_id": payload.ListID,
		"task_id": payload.TaskID,
		"action":  payload.Action,
		"task":    payload.Task,
		"updated_by": map[string]any{
			"user_id":  session.UserID,
			"username": session.Username,
		},
		"timestamp": h.timestamp(),
	}}, session.ID)
}

func (h *Hub) relayTyping(session *Session, payload typingPayload) {
	h.mu.RLock()
	_, joined := session.rooms[payload.ListID]
	h.mu.RUnlock()
	if !joined {
		return
	}

	h.broadcastToRoom(payload.ListID, Envelope{Event: EventUserTyping, Data: map[string]any{
		"list_id":   payload.ListID,
		"task_id":   payload.TaskID,
		"user_id":   session.UserID,
		"username":  session.Username,
		"is_typing": payload.IsTyping,
		"timestamp": h.timestamp(),
	}}, session.ID)
}
