package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mprlab/colist/internal/model"
)

type stubAccess struct {
	allowed map[string]bool
}

func (s *stubAccess) CanAccess(_ context.Context, userID, listID string) (bool, error) {
	return s.allowed[userID+"/"+listID], nil
}

type stubStore struct {
	marked []string
	purged int
	err    error
}

func (s *stubStore) MarkRead(_ context.Context, userID, notificationID string) (model.Notification, error) {
	if s.err != nil {
		return model.Notification{}, s.err
	}
	s.marked = append(s.marked, userID+"/"+notificationID)
	return model.Notification{ID: notificationID, UserID: userID, IsRead: true}, nil
}

func (s *stubStore) PurgeExpired(context.Context) (int64, error) {
	s.purged++
	return 0, nil
}

func mustNewHub(t *testing.T, cfg HubConfig) *Hub {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	hub, err := NewHub(cfg)
	if err != nil {
		t.Fatalf("unexpected hub error: %v", err)
	}
	return hub
}

// drain collects everything queued on a session without blocking.
func drain(session *Session) []Envelope {
	var envelopes []Envelope
	for {
		select {
		case envelope := <-session.Outbound():
			envelopes = append(envelopes, envelope)
		default:
			return envelopes
		}
	}
}

func eventsOf(envelopes []Envelope) []string {
	events := make([]string, 0, len(envelopes))
	for _, envelope := range envelopes {
		events = append(events, envelope.Event)
	}
	return events
}

func hasEvent(envelopes []Envelope, event string) bool {
	for _, envelope := range envelopes {
		if envelope.Event == event {
			return true
		}
	}
	return false
}

func TestRegisterConfirmsConnection(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	session := NewSession("s1", "user-1", "alice", nil)

	hub.Register(session)

	envelopes := drain(session)
	if len(envelopes) != 1 || envelopes[0].Event != EventConnectionStatus {
		t.Fatalf("expected connection_status, got %v", eventsOf(envelopes))
	}

	stats := hub.Stats()
	if stats.ConnectedUsers != 1 || stats.ActiveSessions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPushToUserReachesEverySession(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	first := NewSession("s1", "user-1", "alice", nil)
	second := NewSession("s2", "user-1", "alice", nil)
	other := NewSession("s3", "user-2", "bob", nil)
	hub.Register(first)
	hub.Register(second)
	hub.Register(other)
	drain(first)
	drain(second)
	drain(other)

	hub.PushToUser("user-1", "notification", map[string]any{"id": "n1"})

	if len(drain(first)) != 1 || len(drain(second)) != 1 {
		t.Fatalf("expected both sessions of user-1 to receive the push")
	}
	if len(drain(other)) != 0 {
		t.Fatalf("expected user-2 to receive nothing")
	}
}

func TestJoinListChecksAccess(t *testing.T) {
	access := &stubAccess{allowed: map[string]bool{"user-1/list-1": true}}
	hub := mustNewHub(t, HubConfig{Access: access})
	allowed := NewSession("s1", "user-1", "alice", nil)
	denied := NewSession("s2", "user-2", "mallory", nil)
	hub.Register(allowed)
	hub.Register(denied)

	if err := hub.JoinList(context.Background(), allowed, "list-1"); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	if err := hub.JoinList(context.Background(), denied, "list-1"); err == nil {
		t.Fatalf("expected join to be denied")
	}

	if hub.Stats().ActiveRooms != 1 {
		t.Fatalf("expected one active room")
	}
	users := hub.OnlineUsers("list-1")
	if len(users) != 1 || users[0].UserID != "user-1" {
		t.Fatalf("unexpected online users: %v", users)
	}
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	sender := NewSession("s1", "user-1", "alice", nil)
	receiver := NewSession("s2", "user-2", "bob", nil)
	hub.Register(sender)
	hub.Register(receiver)
	if err := hub.JoinList(context.Background(), sender, "list-1"); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	if err := hub.JoinList(context.Background(), receiver, "list-1"); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	drain(sender)
	drain(receiver)

	hub.HandleMessage(context.Background(), sender,
		[]byte(`{"event":"task_update","data":{"list_id":"list-1","task_id":"t1","action":"completed","task":{"id":"t1"}}}`))

	if hasEvent(drain(sender), EventTaskUpdated) {
		t.Fatalf("expected sender to not receive its own update")
	}
	received := drain(receiver)
	if !hasEvent(received, EventTaskUpdated) {
		t.Fatalf("expected receiver to get task_updated, got %v", eventsOf(received))
	}
	for _, envelope := range received {
		if envelope.Event != EventTaskUpdated {
			continue
		}
		payload, ok := envelope.Data.(map[string]any)
		if !ok {
			t.Fatalf("unexpected payload type %T", envelope.Data)
		}
		if payload["task_id"] != "t1" || payload["action"] != "completed" {
			t.Fatalf("expected action tag relayed, got %v", payload)
		}
	}
}

func TestTaskUpdateRequiresMembership(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	session := NewSession("s1", "user-1", "alice", nil)
	hub.Register(session)
	drain(session)

	hub.HandleMessage(context.Background(), session,
		[]byte(`{"event":"task_update","data":{"list_id":"list-1","task":{"id":"t1"}}}`))

	envelopes := drain(session)
	if !hasEvent(envelopes, EventError) {
		t.Fatalf("expected error for update without join, got %v", eventsOf(envelopes))
	}
}

func TestTypingRelay(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	typist := NewSession("s1", "user-1", "alice", nil)
	watcher := NewSession("s2", "user-2", "bob", nil)
	hub.Register(typist)
	hub.Register(watcher)
	_ = hub.JoinList(context.Background(), typist, "list-1")
	_ = hub.JoinList(context.Background(), watcher, "list-1")
	drain(typist)
	drain(watcher)

	hub.HandleMessage(context.Background(), typist,
		[]byte(`{"event":"typing","data":{"list_id":"list-1","task_id":"t1","is_typing":true}}`))

	received := drain(watcher)
	if !hasEvent(received, EventUserTyping) {
		t.Fatalf("expected user_typing, got %v", eventsOf(received))
	}
}

func TestLeaveListNotifiesRoom(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	leaver := NewSession("s1", "user-1", "alice", nil)
	stayer := NewSession("s2", "user-2", "bob", nil)
	hub.Register(leaver)
	hub.Register(stayer)
	_ = hub.JoinList(context.Background(), leaver, "list-1")
	_ = hub.JoinList(context.Background(), stayer, "list-1")
	drain(leaver)
	drain(stayer)

	hub.LeaveList(leaver, "list-1")

	received := drain(stayer)
	if !hasEvent(received, EventUserLeftList) {
		t.Fatalf("expected user_left_list, got %v", eventsOf(received))
	}
	users := hub.OnlineUsers("list-1")
	if len(users) != 1 || users[0].UserID != "user-2" {
		t.Fatalf("unexpected online users after leave: %v", users)
	}
}

func TestUnregisterBroadcastsDisconnect(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	leaver := NewSession("s1", "user-1", "alice", nil)
	stayer := NewSession("s2", "user-2", "bob", nil)
	hub.Register(leaver)
	hub.Register(stayer)
	_ = hub.JoinList(context.Background(), leaver, "list-1")
	_ = hub.JoinList(context.Background(), stayer, "list-1")
	drain(stayer)

	hub.Unregister(leaver, "transport close")

	received := drain(stayer)
	if !hasEvent(received, EventUserDisconnected) {
		t.Fatalf("expected user_disconnected, got %v", eventsOf(received))
	}
	stats := hub.Stats()
	if stats.ConnectedUsers != 1 || stats.ActiveSessions != 1 {
		t.Fatalf("unexpected stats after unregister: %+v", stats)
	}
}

func TestOnlineUsersListsEverySession(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	first := NewSession("s1", "user-1", "alice", nil)
	second := NewSession("s2", "user-1", "alice", nil)
	hub.Register(first)
	hub.Register(second)
	_ = hub.JoinList(context.Background(), first, "list-1")
	_ = hub.JoinList(context.Background(), second, "list-1")

	users := hub.OnlineUsers("list-1")
	if len(users) != 2 {
		t.Fatalf("expected one entry per session, got %d", len(users))
	}
	sessions := make(map[string]struct{})
	for _, user := range users {
		if user.UserID != "user-1" || user.Username != "alice" {
			t.Fatalf("unexpected member: %+v", user)
		}
		sessions[user.SessionID] = struct{}{}
	}
	if _, ok := sessions["s1"]; !ok {
		t.Fatalf("expected session s1 in roster, got %v", users)
	}
	if _, ok := sessions["s2"]; !ok {
		t.Fatalf("expected session s2 in roster, got %v", users)
	}
}

func TestNotificationAckMarksRead(t *testing.T) {
	store := &stubStore{}
	hub := mustNewHub(t, HubConfig{Notifications: store})
	session := NewSession("s1", "user-1", "alice", nil)
	hub.Register(session)
	drain(session)

	hub.HandleMessage(context.Background(), session,
		[]byte(`{"event":"notification_ack","data":{"notification_id":"n1"}}`))

	if len(store.marked) != 1 || store.marked[0] != "user-1/n1" {
		t.Fatalf("unexpected marks: %v", store.marked)
	}
	if len(drain(session)) != 0 {
		t.Fatalf("expected no reply on successful ack")
	}

	store.err = errors.New("boom")
	hub.HandleMessage(context.Background(), session,
		[]byte(`{"event":"notification_ack","data":{"notification_id":"n2"}}`))
	if !hasEvent(drain(session), EventError) {
		t.Fatalf("expected error reply on failed ack")
	}
}

func TestGetOnlineUsersReply(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	session := NewSession("s1", "user-1", "alice", nil)
	hub.Register(session)
	_ = hub.JoinList(context.Background(), session, "list-1")
	drain(session)

	hub.HandleMessage(context.Background(), session,
		[]byte(`{"event":"get_online_users","data":{"list_id":"list-1"}}`))

	envelopes := drain(session)
	if len(envelopes) != 1 || envelopes[0].Event != EventOnlineUsers {
		t.Fatalf("expected online_users reply, got %v", eventsOf(envelopes))
	}
}

func TestUnknownEventYieldsError(t *testing.T) {
	hub := mustNewHub(t, HubConfig{})
	session := NewSession("s1", "user-1", "alice", nil)
	hub.Register(session)
	drain(session)

	hub.HandleMessage(context.Background(), session, []byte(`{"event":"mystery","data":{}}`))
	if !hasEvent(drain(session), EventError) {
		t.Fatalf("expected error reply for unknown event")
	}

	hub.HandleMessage(context.Background(), session, []byte(`not json`))
	if !hasEvent(drain(session), EventError) {
		t.Fatalf("expected error reply for malformed frame")
	}
}

func TestRunPurgesOnTimer(t *testing.T) {
	store := &stubStore{}
	hub := mustNewHub(t, HubConfig{
		Notifications: store,
		StatsInterval: time.Hour,
		PurgeInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	hub.Run(ctx)

	if store.purged == 0 {
		t.Fatalf("expected at least one purge tick")
	}
}
