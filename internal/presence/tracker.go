package presence

import (
	"context"
	"sync"

	"chat-engine/internal/errs"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/storage/database/status"
)

// Broadcaster 在線狀態變更的廣播出口.
type Broadcaster interface {
	BroadcastPresence(us *status.UserStatus)
}

// Tracker 在線狀態追蹤器
// 以連接計數管理上下線：同一用戶多條連接並存時，
// 只有第一條連接觸發上線、最後一條斷開觸發下線.
type Tracker struct {
	store       status.StatusRepository
	broadcaster Broadcaster

	mu    sync.Mutex
	conns map[string]int // userID -> 活躍連接數
}

// NewTracker 創建在線狀態追蹤器
func NewTracker(store status.StatusRepository, broadcaster Broadcaster) *Tracker {
	return &Tracker{
		store:       store,
		broadcaster: broadcaster,
		conns:       make(map[string]int),
	}
}

// SetBroadcaster 綁定廣播出口
// hub 依賴 Tracker，Tracker 又要透過 hub 廣播，建立後回頭注入.
func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.broadcaster = b
}

// Connect 記錄一條新連接
// 0 -> 1 時標記上線並廣播.
func (t *Tracker) Connect(ctx context.Context, userID string) {
	t.mu.Lock()
	t.conns[userID]++
	first := t.conns[userID] == 1
	t.mu.Unlock()

	if !first {
		return
	}

	t.setStatus(ctx, userID, status.StatusOnline)
}

// Disconnect 記錄一條連接斷開
// 1 -> 0 時標記離線並廣播；重複斷開是冪等的.
func (t *Tracker) Disconnect(ctx context.Context, userID string) {
	t.mu.Lock()
	count, ok := t.conns[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	count--
	if count <= 0 {
		delete(t.conns, userID)
	} else {
		t.conns[userID] = count
	}
	last := count <= 0
	t.mu.Unlock()

	if !last {
		return
	}

	t.setStatus(ctx, userID, status.StatusOffline)
}

// SetStatus 用戶主動設置狀態（away、busy、in_meeting 等）
func (t *Tracker) SetStatus(ctx context.Context, userID, stat, customMessage string) (*status.UserStatus, error) {
	switch stat {
	case status.StatusOnline, status.StatusOffline, status.StatusAway,
		status.StatusBusy, status.StatusInMeeting:
	default:
		return nil, errs.InvalidArg("無效的狀態值")
	}

	us, err := t.store.Upsert(ctx, userID, stat, customMessage)
	if err != nil {
		return nil, errs.Internal("更新用戶狀態失敗", err)
	}

	if t.broadcaster != nil {
		t.broadcaster.BroadcastPresence(us)
	}

	return us, nil
}

// GetStatus 查詢用戶狀態
func (t *Tracker) GetStatus(ctx context.Context, userID string) (*status.UserStatus, error) {
	us, err := t.store.Get(ctx, userID)
	if err != nil {
		return nil, errs.Internal("查詢用戶狀態失敗", err)
	}
	return us, nil
}

// GetStatuses 批量查詢用戶狀態
func (t *Tracker) GetStatuses(ctx context.Context, userIDs []string) ([]*status.UserStatus, error) {
	statuses, err := t.store.GetMany(ctx, userIDs)
	if err != nil {
		return nil, errs.Internal("查詢用戶狀態失敗", err)
	}
	return statuses, nil
}

// ConnectionCount 用戶當前活躍連接數
func (t *Tracker) ConnectionCount(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[userID]
}

// setStatus 連接生命週期驅動的自動轉換，保留用戶自訂訊息
func (t *Tracker) setStatus(ctx context.Context, userID, stat string) {
	customMessage := ""
	if current, err := t.store.Get(ctx, userID); err == nil {
		customMessage = current.CustomMessage
	}

	us, err := t.store.Upsert(ctx, userID, stat, customMessage)
	if err != nil {
		logger.Errorf(ctx, "更新用戶狀態失敗: %v", err)
		return
	}

	if t.broadcaster != nil {
		t.broadcaster.BroadcastPresence(us)
	}
}
