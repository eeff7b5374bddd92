package realtime

import "encoding/json"

// 客戶端發送的事件.
const (
	EventJoinChannels  = "join_channels"
	EventJoinChannel   = "join_channel"
	EventLeaveChannel  = "leave_channel"
	EventSendMessage   = "send_message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
	EventTyping        = "typing"
	EventMarkRead      = "mark_read"
)

// 伺服器推送的事件.
const (
	EventNewMessage      = "new_message"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventUserTyping      = "user_typing"
	EventPresenceChanged = "presence_changed"
	EventNotification    = "notification"
	EventJoined          = "joined"
	EventError           = "error"
)

// Frame WebSocket 消息框架
// 所有進出消息都是 {event, data} 形式的 JSON.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutFrame 伺服器推送框架
type OutFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// JoinChannelsPayload 訂閱多個頻道
type JoinChannelsPayload struct {
	ChannelIDs []string `json:"channel_ids"`
}

// ChannelPayload 單一頻道操作
type ChannelPayload struct {
	ChannelID string `json:"channel_id"`
}

// SendMessagePayload 發送消息
type SendMessagePayload struct {
	ChannelID       string `json:"channel_id"`
	Content         string `json:"content"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
}

// EditMessagePayload 編輯消息
type EditMessagePayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteMessagePayload 刪除消息
type DeleteMessagePayload struct {
	MessageID string `json:"message_id"`
}

// TypingPayload 輸入中指示
type TypingPayload struct {
	ChannelID string `json:"channel_id"`
	IsTyping  bool   `json:"is_typing"`
}

// MarkReadPayload 標記已讀
type MarkReadPayload struct {
	ChannelID string `json:"channel_id"`
}

// TypingEvent 輸入中廣播
type TypingEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

// PresenceEvent 在線狀態廣播
type PresenceEvent struct {
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	CustomMessage string `json:"custom_message,omitempty"`
	LastSeen      string `json:"last_seen,omitempty"`
}

// MessageDeletedEvent 消息刪除廣播
type MessageDeletedEvent struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// ErrorEvent 錯誤回報，僅發給出錯的連接
type ErrorEvent struct {
	Scope   string `json:"scope"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
