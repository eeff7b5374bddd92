package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chat-engine/internal/chat"
	"chat-engine/internal/constants"
	"chat-engine/internal/errs"
	"chat-engine/internal/platform/config"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/platform/middleware"
	"chat-engine/internal/presence"
	"chat-engine/internal/storage/database/channel"
	"chat-engine/internal/storage/database/notification"
	"chat-engine/internal/storage/database/status"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub WebSocket 中樞
// 管理連接生命週期、路由客戶端指令到聊天服務,
// 同時作為服務層的廣播出口.
type Hub struct {
	registry    *Registry
	chat        *chat.Service
	presence    *presence.Tracker
	memberships channel.MembershipRepository
	limiter     *middleware.WSConnectionLimiter
	upgrader    websocket.Upgrader

	sendBuffer   int
	maxFrameSize int64
	pongTimeout  time.Duration
}

// NewHub 創建 WebSocket 中樞
func NewHub(chatSvc *chat.Service, tracker *presence.Tracker, memberships channel.MembershipRepository, limiter *middleware.WSConnectionLimiter, cfg config.WebSocketLimitsConfig) *Hub {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = constants.DefaultWSSendBuffer
	}
	maxFrame := cfg.MaxFrameSize
	if maxFrame <= 0 {
		maxFrame = constants.DefaultWSMaxFrameSize
	}
	pongTimeout := cfg.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = constants.DefaultWSPongTimeout
	}
	return &Hub{
		registry:    NewRegistry(),
		chat:        chatSvc,
		presence:    tracker,
		memberships: memberships,
		limiter:     limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 跨域由 HTTP 層的 CORS 白名單把關
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBuffer:   sendBuffer,
		maxFrameSize: int64(maxFrame),
		pongTimeout:  time.Duration(pongTimeout) * time.Second,
	}
}

// Registry 取得連接註冊表
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Shutdown 關閉所有連接
func (h *Hub) Shutdown() {
	h.registry.Close()
}

// HandleWS WebSocket 入口
// 認證由前置中間件完成；升級後訂閱個人房間與所有已加入頻道,
// 讀循環結束前連接不會被業務錯誤中斷.
func (h *Hub) HandleWS(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	limiterIP := c.GetString("ws_limiter_ip")
	if userID == "" {
		h.releaseSlot(limiterIP)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未認證"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.releaseSlot(limiterIP)
		logger.Warningf(c.Request.Context(), "WebSocket 升級失敗: %v", err)
		return
	}

	// 請求 context 在連接劫持後不可靠，改用獨立 context
	ctx := context.Background()
	if traceID := logger.GetTraceID(c.Request.Context()); traceID != "" {
		ctx = logger.WithTraceID(ctx, traceID)
	}

	conn := NewConnection(userID, ws, h.sendBuffer)
	conn.Start()

	h.registry.Attach(conn)
	h.registry.Join(UserRoom(userID), conn)
	joined := h.joinMemberRooms(ctx, conn)
	h.presence.Connect(ctx, userID)

	logger.Infof(ctx, "用戶 %s 建立 WebSocket 連接 %s", userID, conn.ID)
	_ = conn.SendEvent(EventJoined, gin.H{"channel_ids": joined})

	h.readLoop(ctx, conn, ws)

	h.registry.Detach(conn)
	h.presence.Disconnect(ctx, userID)
	h.releaseSlot(limiterIP)
	conn.Close(websocket.CloseNormalClosure, "")
	logger.Infof(ctx, "用戶 %s 的連接 %s 已斷開", userID, conn.ID)
}

func (h *Hub) releaseSlot(ip string) {
	if h.limiter != nil && ip != "" {
		h.limiter.Release(ip)
	}
}

// joinMemberRooms 重建訂閱
// 以成員表為準，連接建立時訂閱用戶所有頻道的房間.
func (h *Hub) joinMemberRooms(ctx context.Context, conn *Connection) []string {
	mems, err := h.memberships.ListByUser(ctx, conn.UserID)
	if err != nil {
		logger.Warningf(ctx, "用戶 %s 頻道訂閱重建失敗: %v", conn.UserID, err)
		return nil
	}
	ids := make([]string, 0, len(mems))
	for _, m := range mems {
		h.registry.Join(ChannelRoom(m.ChannelID), conn)
		ids = append(ids, m.ChannelID)
	}
	return ids
}

func (h *Hub) readLoop(ctx context.Context, conn *Connection, ws *websocket.Conn) {
	ws.SetReadLimit(h.maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warningf(ctx, "連接 %s 異常關閉: %v", conn.ID, err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			h.sendError(conn, "frame", errs.InvalidArg("無法解析的消息格式"))
			continue
		}
		if err := h.dispatch(ctx, conn, &frame); err != nil {
			h.sendError(conn, frame.Event, err)
		}
	}
}

// dispatch 路由客戶端指令
// 任何業務錯誤只回報給出錯的連接，不影響其他訂閱.
func (h *Hub) dispatch(ctx context.Context, conn *Connection, frame *Frame) error {
	switch frame.Event {
	case EventJoinChannels:
		var p JoinChannelsPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的訂閱參數")
		}
		for _, id := range p.ChannelIDs {
			if err := h.joinChannel(ctx, conn, id); err != nil {
				h.sendError(conn, EventJoinChannel, err)
			}
		}
		return nil

	case EventJoinChannel:
		var p ChannelPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的訂閱參數")
		}
		return h.joinChannel(ctx, conn, p.ChannelID)

	case EventLeaveChannel:
		var p ChannelPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的退訂參數")
		}
		h.registry.Leave(ChannelRoom(p.ChannelID), conn)
		return nil

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的消息參數")
		}
		_, err := h.chat.SendMessage(ctx, p.ChannelID, conn.UserID, p.Content, p.ParentMessageID)
		return err

	case EventEditMessage:
		var p EditMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的編輯參數")
		}
		_, err := h.chat.EditMessage(ctx, p.MessageID, conn.UserID, p.Content)
		return err

	case EventDeleteMessage:
		var p DeleteMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的刪除參數")
		}
		_, err := h.chat.DeleteMessage(ctx, p.MessageID, conn.UserID)
		return err

	case EventTyping:
		var p TypingPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的輸入指示參數")
		}
		if _, err := h.chat.RequireMember(ctx, p.ChannelID, conn.UserID); err != nil {
			return err
		}
		// 輸入指示不落庫，直接廣播給頻道內其他人
		h.registry.BroadcastEvent(ChannelRoom(p.ChannelID), EventUserTyping, &TypingEvent{
			ChannelID: p.ChannelID,
			UserID:    conn.UserID,
			IsTyping:  p.IsTyping,
		}, conn.UserID)
		return nil

	case EventMarkRead:
		var p MarkReadPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errs.InvalidArg("無法解析的已讀參數")
		}
		return h.chat.MarkRead(ctx, p.ChannelID, conn.UserID)

	default:
		return errs.InvalidArg("未知的事件類型: " + frame.Event)
	}
}

func (h *Hub) joinChannel(ctx context.Context, conn *Connection, channelID string) error {
	if _, err := h.chat.RequireMember(ctx, channelID, conn.UserID); err != nil {
		return err
	}
	h.registry.Join(ChannelRoom(channelID), conn)
	return nil
}

func (h *Hub) sendError(conn *Connection, scope string, err error) {
	msg := "內部錯誤"
	var appErr *errs.AppError
	if errors.As(err, &appErr) && appErr.Code != errs.CodeInternal {
		msg = appErr.Message
	}
	_ = conn.SendEvent(EventError, &ErrorEvent{
		Scope:   scope,
		Code:    string(errs.CodeOf(err)),
		Message: msg,
	})
}

// MessageCreated 新消息進入頻道房間（含發送者自己的其他連接）
func (h *Hub) MessageCreated(view *chat.MessageView) {
	h.registry.BroadcastEvent(ChannelRoom(view.ChannelID), EventNewMessage, view, "")
}

// MessageEdited 編輯後的消息廣播
func (h *Hub) MessageEdited(view *chat.MessageView) {
	h.registry.BroadcastEvent(ChannelRoom(view.ChannelID), EventMessageEdited, view, "")
}

// MessageDeleted 刪除事件廣播
func (h *Hub) MessageDeleted(channelID, messageID string) {
	h.registry.BroadcastEvent(ChannelRoom(channelID), EventMessageDeleted, &MessageDeletedEvent{
		ChannelID: channelID,
		MessageID: messageID,
	}, "")
}

// MemberChanged 成員異動後校正房間訂閱
// 被移出的用戶立即停止接收該頻道的廣播.
func (h *Hub) MemberChanged(channelID string) {
	ctx := context.Background()
	roomID := ChannelRoom(channelID)
	for _, sess := range h.registry.RoomSessions(roomID) {
		ok, err := h.memberships.IsMember(ctx, channelID, sess.User())
		if err != nil {
			continue
		}
		if !ok {
			h.registry.Leave(roomID, sess)
		}
	}
}

// BroadcastPresence 在線狀態變更全域廣播
func (h *Hub) BroadcastPresence(us *status.UserStatus) {
	h.registry.BroadcastEventAll(EventPresenceChanged, &PresenceEvent{
		UserID:        us.UserID,
		Status:        us.Status,
		CustomMessage: us.CustomMessage,
		LastSeen:      us.LastSeen.UTC().Format(time.RFC3339),
	})
}

// PushNotification 即時推送通知到用戶的所有連接
func (h *Hub) PushNotification(userID string, n *notification.Notification) {
	h.registry.SendEventToUser(userID, EventNotification, n)
}
