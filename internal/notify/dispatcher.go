package notify

import (
	"context"

	"chat-engine/internal/constants"
	"chat-engine/internal/errs"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/storage/database/notification"
)

// Pusher 即時推送出口，推送失敗不影響持久化.
type Pusher interface {
	PushNotification(userID string, n *notification.Notification)
}

// Dispatcher 通知分發器
// 先持久化再嘗試即時推送，離線用戶之後可由 REST 拉取.
type Dispatcher struct {
	store  notification.NotificationRepository
	pusher Pusher
}

// NewDispatcher 創建通知分發器
func NewDispatcher(store notification.NotificationRepository, pusher Pusher) *Dispatcher {
	return &Dispatcher{
		store:  store,
		pusher: pusher,
	}
}

// SetPusher 綁定即時推送出口
func (d *Dispatcher) SetPusher(p Pusher) {
	d.pusher = p
}

// Dispatch 創建並分發通知
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	if err := validate(n); err != nil {
		return err
	}

	if err := d.store.Create(ctx, n); err != nil {
		return errs.Internal("創建通知失敗", err)
	}

	if d.pusher != nil {
		d.pusher.PushNotification(n.UserID, n)
	}

	return nil
}

// DispatchMany 向多個用戶分發同一通知
// 單一用戶失敗不中斷其他用戶，失敗記入日誌.
func (d *Dispatcher) DispatchMany(ctx context.Context, userIDs []string, build func(userID string) *notification.Notification) {
	for _, userID := range userIDs {
		n := build(userID)
		if n == nil {
			continue
		}
		if err := d.Dispatch(ctx, n); err != nil {
			logger.Errorf(ctx, "分發通知失敗 user=%s: %v", userID, err)
		}
	}
}

// List 列出用戶通知
func (d *Dispatcher) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.DefaultMaxPageSize {
		limit = constants.DefaultMaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	items, err := d.store.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, errs.Internal("查詢通知失敗", err)
	}
	return items, nil
}

// CountUnread 用戶未讀通知數量
func (d *Dispatcher) CountUnread(ctx context.Context, userID string) (int64, error) {
	count, err := d.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, errs.Internal("查詢通知失敗", err)
	}
	return count, nil
}

// MarkRead 標記通知已讀
func (d *Dispatcher) MarkRead(ctx context.Context, id, userID string) error {
	return d.store.MarkRead(ctx, id, userID)
}

// MarkAllRead 標記所有通知已讀
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := d.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errs.Internal("更新通知失敗", err)
	}
	return count, nil
}

// Delete 刪除通知
func (d *Dispatcher) Delete(ctx context.Context, id, userID string) error {
	return d.store.Delete(ctx, id, userID)
}

// DeleteRead 刪除所有已讀通知
func (d *Dispatcher) DeleteRead(ctx context.Context, userID string) (int64, error) {
	count, err := d.store.DeleteRead(ctx, userID)
	if err != nil {
		return 0, errs.Internal("刪除通知失敗", err)
	}
	return count, nil
}

// DeleteAll 刪除所有通知
func (d *Dispatcher) DeleteAll(ctx context.Context, userID string) (int64, error) {
	count, err := d.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, errs.Internal("刪除通知失敗", err)
	}
	return count, nil
}

// validate 按通知類型檢查必要欄位
func validate(n *notification.Notification) error {
	if n.UserID == "" {
		return errs.InvalidArg("通知必須指定用戶")
	}
	if n.Title == "" {
		return errs.InvalidArg("通知標題不能為空")
	}

	switch n.Type {
	case notification.TypeNewMessage, notification.TypeMention:
		if payloadString(n, "channel_id") == "" || payloadString(n, "message_id") == "" {
			return errs.InvalidArg("消息通知必須帶 channel_id 與 message_id")
		}
	case notification.TypeChannelInvite, notification.TypeMemberJoined,
		notification.TypeMemberLeft, notification.TypeChannelDeleted:
		if payloadString(n, "channel_id") == "" {
			return errs.InvalidArg("頻道通知必須帶 channel_id")
		}
	default:
		return errs.InvalidArg("無效的通知類型")
	}

	return nil
}

func payloadString(n *notification.Notification, key string) string {
	if n.Payload == nil {
		return ""
	}
	if v, ok := n.Payload[key].(string); ok {
		return v
	}
	return ""
}
