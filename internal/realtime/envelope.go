package realtime

import "encoding/json"

// Client to server events.
const (
	EventJoinList        = "join_list"
	EventLeaveList       = "leave_list"
	EventTaskUpdate      = "task_update"
	EventTyping          = "typing"
	EventNotificationAck = "notification_ack"
	EventGetOnlineUsers  = "get_online_users"
)

// Server to client events.
const (
	EventConnectionStatus = "connection_status"
	EventUserJoinedList   = "user_joined_list"
	EventUserLeftList     = "user_left_list"
	EventTaskUpdated      = "task_updated"
	EventUserTyping       = "user_typing"
	EventOnlineUsers      = "online_users"
	EventUserDisconnected = "user_disconnected"
	EventServerStats      = "server_stats"
	EventError            = "error"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inboundEnvelope defers payload decoding until the event is known.
type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomPayload struct {
	ListID string `json:"list_id"`
}

type taskUpdatePayload struct {
	ListID string          `json:"list_id"`
	TaskID string          `json:"task_id"`
	Action string          `json:"action"`
	Task   json.RawMessage `json:"task"`
}

type typingPayload struct {
	ListID   string `json:"list_id"`
	TaskID   string `json:"task_id"`
	IsTyping bool   `json:"is_typing"`
}

type notificationAckPayload struct {
	NotificationID string `json:"notification_id"`
}

// OnlineUser identifies one connected session in a room. A user with two
// open connections appears twice, once per session.
type OnlineUser struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
}
