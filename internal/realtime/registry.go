package realtime

import (
	"encoding/json"
	"sync"
)

// 房間命名.
func ChannelRoom(channelID string) string { return "channel:" + channelID }
func UserRoom(userID string) string       { return "user:" + userID }

// Session 註冊表管理的最小連接面.
type Session interface {
	SessionID() string
	User() string
	Send(payload []byte) error
	Close(code int, reason string)
}

// SessionID 實現 Session 接口
func (c *Connection) SessionID() string { return c.ID }

// User 實現 Session 接口
func (c *Connection) User() string { return c.UserID }

// Registry 管理 WebSocket 會話與邏輯房間
// 同一用戶允許多條並存連接（多分頁、多裝置），
// 廣播以房間為單位扇出.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]Session            // sessionID -> session
	userSessions map[string]map[string]Session // userID -> sessionID -> session
	rooms        map[string]map[string]Session // roomID -> sessionID -> session
	sessionRooms map[string]map[string]struct{} // sessionID -> set of roomIDs
}

// NewRegistry 創建初始化的註冊表
func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]Session),
		userSessions: make(map[string]map[string]Session),
		rooms:        make(map[string]map[string]Session),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

// Attach 註冊連接
func (r *Registry) Attach(s Session) {
	r.mu.Lock()
	r.sessions[s.SessionID()] = s

	userConns := r.userSessions[s.User()]
	if userConns == nil {
		userConns = make(map[string]Session)
		r.userSessions[s.User()] = userConns
	}
	userConns[s.SessionID()] = s

	r.sessionRooms[s.SessionID()] = make(map[string]struct{})
	r.mu.Unlock()
}

// Detach 移除連接及其所有房間訂閱
func (r *Registry) Detach(s Session) {
	r.mu.Lock()
	r.detachLocked(s.SessionID())
	r.mu.Unlock()
}

// Join 將連接加入房間
func (r *Registry) Join(roomID string, s Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s.SessionID()]; !ok {
		r.mu.Unlock()
		return
	}

	room := r.rooms[roomID]
	if room == nil {
		room = make(map[string]Session)
		r.rooms[roomID] = room
	}
	room[s.SessionID()] = s

	memberships := r.sessionRooms[s.SessionID()]
	if memberships == nil {
		memberships = make(map[string]struct{})
		r.sessionRooms[s.SessionID()] = memberships
	}
	memberships[roomID] = struct{}{}
	r.mu.Unlock()
}

// Leave 將連接移出房間
func (r *Registry) Leave(roomID string, s Session) {
	r.mu.Lock()
	r.leaveLocked(roomID, s.SessionID())
	r.mu.Unlock()
}

// InRoom 檢查連接是否已訂閱房間
func (r *Registry) InRoom(roomID string, s Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[roomID]
	if room == nil {
		return false
	}
	_, ok := room[s.SessionID()]
	return ok
}

// RoomSessions 取得房間目前的所有連接快照
func (r *Registry) RoomSessions(roomID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[roomID]
	sessions := make([]Session, 0, len(room))
	for _, s := range room {
		sessions = append(sessions, s)
	}
	return sessions
}

// Broadcast 向房間所有成員發送數據
// excludeUserID 非空時，該用戶的所有連接都不收.
func (r *Registry) Broadcast(roomID string, payload []byte, excludeUserID string) int {
	r.mu.RLock()
	room := r.rooms[roomID]
	if len(room) == 0 {
		r.mu.RUnlock()
		return 0
	}

	targets := make([]Session, 0, len(room))
	for _, s := range room {
		if excludeUserID != "" && s.User() == excludeUserID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// BroadcastEvent 序列化事件框架後向房間廣播
func (r *Registry) BroadcastEvent(roomID, event string, data interface{}, excludeUserID string) int {
	payload, err := json.Marshal(OutFrame{Event: event, Data: data})
	if err != nil {
		return 0
	}
	return r.Broadcast(roomID, payload, excludeUserID)
}

// SendToUser 向用戶的所有連接發送數據
func (r *Registry) SendToUser(userID string, payload []byte) bool {
	r.mu.RLock()
	userConns := r.userSessions[userID]
	targets := make([]Session, 0, len(userConns))
	for _, s := range userConns {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := false
	for _, s := range targets {
		if err := s.Send(payload); err == nil {
			delivered = true
		}
	}
	return delivered
}

// SendEventToUser 序列化事件框架後發送給用戶
func (r *Registry) SendEventToUser(userID, event string, data interface{}) bool {
	payload, err := json.Marshal(OutFrame{Event: event, Data: data})
	if err != nil {
		return false
	}
	return r.SendToUser(userID, payload)
}

// BroadcastAll 向所有連接發送數據
func (r *Registry) BroadcastAll(payload []byte) int {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// BroadcastEventAll 序列化事件框架後向所有連接廣播
func (r *Registry) BroadcastEventAll(event string, data interface{}) int {
	payload, err := json.Marshal(OutFrame{Event: event, Data: data})
	if err != nil {
		return 0
	}
	return r.BroadcastAll(payload)
}

// ConnectionCount 當前連接總數
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close 終止所有連接並清空狀態
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]Session)
	r.userSessions = make(map[string]map[string]Session)
	r.rooms = make(map[string]map[string]Session)
	r.sessionRooms = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close(1001, "registry shutdown")
	}
}

func (r *Registry) detachLocked(sessionID string) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)

	if userConns, ok := r.userSessions[s.User()]; ok {
		delete(userConns, sessionID)
		if len(userConns) == 0 {
			delete(r.userSessions, s.User())
		}
	}

	for roomID := range r.sessionRooms[sessionID] {
		room := r.rooms[roomID]
		if room != nil {
			delete(room, sessionID)
			if len(room) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	delete(r.sessionRooms, sessionID)
}

func (r *Registry) leaveLocked(roomID, sessionID string) {
	if sessionID == "" {
		return
	}
	room := r.rooms[roomID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
	if memberships, ok := r.sessionRooms[sessionID]; ok {
		delete(memberships, roomID)
	}
}
