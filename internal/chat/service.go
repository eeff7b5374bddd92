package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-engine/internal/errs"
	"chat-engine/internal/notify"
	"chat-engine/internal/platform/logger"
	"chat-engine/internal/platform/middleware"
	"chat-engine/internal/security/audit"
	"chat-engine/internal/security/encryption"
	"chat-engine/internal/storage/blob"
	"chat-engine/internal/storage/database/channel"
	"chat-engine/internal/storage/database/message"
	"chat-engine/internal/storage/database/notification"
	"chat-engine/internal/storage/database/status"
)

// Events 即時事件出口
// 由 realtime hub 實作；Service 不直接依賴 WebSocket 層,
// nil 時所有廣播靜默略過.
type Events interface {
	MessageCreated(view *MessageView)
	MessageEdited(view *MessageView)
	MessageDeleted(channelID, messageID string)
	MemberChanged(channelID string)
}

// Service 聊天核心服務
// 頻道、成員、消息的業務規則集中於此，
// HTTP handler 與 WebSocket handler 共用同一份邏輯.
type Service struct {
	channels    channel.ChannelRepository
	memberships channel.MembershipRepository
	messages    message.MessageRepository
	attachments message.AttachmentRepository
	statuses    status.StatusRepository
	blobs       blob.BlobStore
	crypto      *encryption.MessageEncryption
	audit       *audit.AuditService
	notifier    *notify.Dispatcher
	events      Events

	maxMembers     int
	maxUploadFiles int
	maxUploadSize  int64
	allowedMIMEs   map[string]bool
}

// Options Service 建構參數
type Options struct {
	Channels    channel.ChannelRepository
	Memberships channel.MembershipRepository
	Messages    message.MessageRepository
	Attachments message.AttachmentRepository
	Statuses    status.StatusRepository
	Blobs       blob.BlobStore
	Crypto      *encryption.MessageEncryption
	Audit       *audit.AuditService
	Notifier    *notify.Dispatcher
	Events      Events

	MaxMembers       int
	MaxUploadFiles   int
	MaxUploadSize    int64
	AllowedMIMETypes []string
}

// NewService 創建聊天服務
func NewService(opts Options) *Service {
	allowed := make(map[string]bool, len(opts.AllowedMIMETypes))
	for _, m := range opts.AllowedMIMETypes {
		allowed[strings.ToLower(m)] = true
	}
	s := &Service{
		channels:       opts.Channels,
		memberships:    opts.Memberships,
		messages:       opts.Messages,
		attachments:    opts.Attachments,
		statuses:       opts.Statuses,
		blobs:          opts.Blobs,
		crypto:         opts.Crypto,
		audit:          opts.Audit,
		notifier:       opts.Notifier,
		events:         opts.Events,
		maxMembers:     opts.MaxMembers,
		maxUploadFiles: opts.MaxUploadFiles,
		maxUploadSize:  opts.MaxUploadSize,
		allowedMIMEs:   allowed,
	}
	if s.crypto == nil {
		s.crypto = encryption.NewMessageEncryption(false, nil)
	}
	if s.audit == nil {
		s.audit = audit.NewAuditService(false)
	}
	return s
}

// SetEvents 綁定即時事件出口
// realtime hub 依賴 Service 處理指令，Service 又要透過 hub 廣播,
// 因此 hub 建立後回頭注入.
func (s *Service) SetEvents(ev Events) {
	s.events = ev
}

// MemberView 成員視圖（含在線狀態）
type MemberView struct {
	ChannelID     string    `json:"channel_id"`
	UserID        string    `json:"user_id"`
	Role          string    `json:"role"`
	JoinedAt      time.Time `json:"joined_at"`
	LastReadAt    time.Time `json:"last_read_at"`
	Status        string    `json:"status"`
	CustomMessage string    `json:"custom_message,omitempty"`
}

// ChannelView 頻道視圖
type ChannelView struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	Description   string        `json:"description,omitempty"`
	CreatedBy     string        `json:"created_by"`
	LastMessage   string        `json:"last_message,omitempty"`
	LastMessageAt time.Time     `json:"last_message_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Role          string        `json:"role,omitempty"`
	UnreadCount   int64         `json:"unread_count"`
	Members       []*MemberView `json:"members,omitempty"`
}

func channelView(ch *channel.Channel) *ChannelView {
	return &ChannelView{
		ID:            ch.ID,
		Name:          ch.Name,
		Type:          ch.Type,
		Description:   ch.Description,
		CreatedBy:     ch.CreatedBy,
		LastMessage:   ch.LastMessage,
		LastMessageAt: ch.LastMessageAt,
		CreatedAt:     ch.CreatedAt,
		UpdatedAt:     ch.UpdatedAt,
	}
}

// CreateChannel 創建頻道
// 創建者自動成為 admin，其餘成員以 member 身份加入並收到邀請通知.
// direct 類型必須走 GetOrCreateDirect，避免繞過唯一鍵.
func (s *Service) CreateChannel(ctx context.Context, creatorID, name, chType, description string, memberIDs []string) (*ChannelView, error) {
	if chType == channel.TypeDirect {
		return nil, errs.InvalidArg("私聊頻道請使用 direct 接口創建")
	}
	switch chType {
	case channel.TypeGroup, channel.TypePublic, channel.TypePrivate:
	default:
		return nil, errs.InvalidArg("不支持的頻道類型: " + chType)
	}
	if err := middleware.ValidateChannelName(name); err != nil {
		return nil, errs.InvalidArg(err.Error())
	}
	if err := middleware.ValidateUserID(creatorID); err != nil {
		return nil, errs.InvalidArg(err.Error())
	}

	// 去重並剔除創建者，創建者固定以 admin 加入
	members := dedupMembers(memberIDs, creatorID)
	if s.maxMembers > 0 && len(members)+1 > s.maxMembers {
		return nil, errs.InvalidArg(fmt.Sprintf("頻道成員數超過上限 %d", s.maxMembers))
	}

	ch := channel.NewChannel()
	ch.Name = strings.TrimSpace(name)
	ch.Type = chType
	ch.Description = description
	ch.CreatedBy = creatorID

	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.memberships.Add(ctx, &channel.Membership{
		ChannelID: ch.ID,
		UserID:    creatorID,
		Role:      channel.RoleAdmin,
		JoinedAt:  now,
	}); err != nil {
		return nil, errs.Internal("創建者成員寫入失敗", err)
	}

	for _, uid := range members {
		if err := s.memberships.Add(ctx, &channel.Membership{
			ChannelID: ch.ID,
			UserID:    uid,
			Role:      channel.RoleMember,
			JoinedAt:  now,
		}); err != nil && !errs.Is(err, errs.CodeAlreadyExists) {
			logger.Warningf(ctx, "頻道 %s 成員 %s 寫入失敗: %v", ch.ID, uid, err)
		}
	}

	s.audit.LogChannelCreation(ctx, creatorID, ch.ID, chType)
	s.notifyMembers(ctx, members, func(uid string) *notification.Notification {
		return &notification.Notification{
			UserID:        uid,
			Type:          notification.TypeChannelInvite,
			Title:         "頻道邀請",
			Message:       fmt.Sprintf("%s 邀請你加入頻道 %s", creatorID, ch.Name),
			Payload:       map[string]interface{}{"channel_id": ch.ID},
			RelatedUserID: creatorID,
		}
	})

	view := channelView(ch)
	view.Role = channel.RoleAdmin
	view.Members = s.memberViews(ctx, ch.ID)
	return view, nil
}

// GetOrCreateDirect 獲取或創建私聊頻道
// 同一對用戶永遠對應同一個頻道；並發創建靠唯一索引兜底,
// 撞鍵後重查一次返回既有頻道.
func (s *Service) GetOrCreateDirect(ctx context.Context, requesterID, otherID string) (*ChannelView, error) {
	if err := middleware.ValidateUserID(requesterID); err != nil {
		return nil, errs.InvalidArg(err.Error())
	}
	if err := middleware.ValidateUserID(otherID); err != nil {
		return nil, errs.InvalidArg(err.Error())
	}
	if requesterID == otherID {
		return nil, errs.InvalidArg("不能與自己創建私聊頻道")
	}

	key := channel.DirectKey(requesterID, otherID)
	if ch, err := s.channels.FindDirectByKey(ctx, key); err == nil {
		view := channelView(ch)
		if m, merr := s.memberships.Get(ctx, ch.ID, requesterID); merr == nil {
			view.Role = m.Role
		}
		return view, nil
	} else if !errs.Is(err, errs.CodeNotFound) {
		return nil, err
	}

	ch := channel.NewChannel()
	ch.Type = channel.TypeDirect
	ch.Name = directName(requesterID, otherID)
	ch.CreatedBy = requesterID
	ch.DirectKey = key

	if err := s.channels.Create(ctx, ch); err != nil {
		if errs.Is(err, errs.CodeAlreadyExists) {
			existing, ferr := s.channels.FindDirectByKey(ctx, key)
			if ferr != nil {
				return nil, errs.Internal("私聊頻道查詢失敗", ferr)
			}
			return channelView(existing), nil
		}
		return nil, err
	}

	now := time.Now()
	for _, m := range []*channel.Membership{
		{ChannelID: ch.ID, UserID: requesterID, Role: channel.RoleAdmin, JoinedAt: now},
		{ChannelID: ch.ID, UserID: otherID, Role: channel.RoleMember, JoinedAt: now},
	} {
		if err := s.memberships.Add(ctx, m); err != nil && !errs.Is(err, errs.CodeAlreadyExists) {
			return nil, errs.Internal("私聊成員寫入失敗", err)
		}
	}

	s.audit.LogChannelCreation(ctx, requesterID, ch.ID, channel.TypeDirect)

	view := channelView(ch)
	view.Role = channel.RoleAdmin
	return view, nil
}

// GetChannel 獲取單個頻道（僅限成員）
func (s *Service) GetChannel(ctx context.Context, channelID, requesterID string) (*ChannelView, error) {
	m, err := s.RequireMember(ctx, channelID, requesterID)
	if err != nil {
		return nil, err
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	view := channelView(ch)
	view.Role = m.Role
	view.UnreadCount = s.unreadCount(ctx, channelID, requesterID, m.LastReadAt)
	view.Members = s.memberViews(ctx, channelID)
	return view, nil
}

// ListChannels 列出用戶所有頻道
// 按最後消息時間倒序，附帶未讀數與最後一條消息預覽.
func (s *Service) ListChannels(ctx context.Context, userID string) ([]*ChannelView, error) {
	mems, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(mems) == 0 {
		return []*ChannelView{}, nil
	}

	ids := make([]string, 0, len(mems))
	byChannel := make(map[string]*channel.Membership, len(mems))
	for _, m := range mems {
		ids = append(ids, m.ChannelID)
		byChannel[m.ChannelID] = m
	}

	chans, err := s.channels.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*ChannelView, 0, len(chans))
	for _, ch := range chans {
		view := channelView(ch)
		if m := byChannel[ch.ID]; m != nil {
			view.Role = m.Role
			view.UnreadCount = s.unreadCount(ctx, ch.ID, userID, m.LastReadAt)
		}
		views = append(views, view)
	}
	return views, nil
}

// DeleteChannel 刪除頻道（軟刪除）
// 僅 admin 可執行；私聊頻道不可刪除，只能退出.
func (s *Service) DeleteChannel(ctx context.Context, channelID, requesterID string) error {
	if _, err := s.RequireAdmin(ctx, channelID, requesterID); err != nil {
		return err
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Type == channel.TypeDirect {
		return errs.FailedPrecondition("私聊頻道不能刪除")
	}

	mems, _ := s.memberships.ListByChannel(ctx, channelID)

	if err := s.channels.SoftDelete(ctx, channelID); err != nil {
		return err
	}

	s.audit.LogChannelDeleted(ctx, requesterID, channelID)

	others := make([]string, 0, len(mems))
	for _, m := range mems {
		if m.UserID != requesterID {
			others = append(others, m.UserID)
		}
	}
	s.notifyMembers(ctx, others, func(uid string) *notification.Notification {
		return &notification.Notification{
			UserID:        uid,
			Type:          notification.TypeChannelDeleted,
			Title:         "頻道已刪除",
			Message:       fmt.Sprintf("頻道 %s 已被刪除", ch.Name),
			Payload:       map[string]interface{}{"channel_id": channelID},
			RelatedUserID: requesterID,
		}
	})
	return nil
}

// AddMember 添加成員（僅 admin）
// 寫入成員後發送系統消息與邀請通知.
func (s *Service) AddMember(ctx context.Context, channelID, requesterID, userID string) error {
	if _, err := s.RequireAdmin(ctx, channelID, requesterID); err != nil {
		return err
	}
	if err := middleware.ValidateUserID(userID); err != nil {
		return errs.InvalidArg(err.Error())
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Type == channel.TypeDirect {
		return errs.FailedPrecondition("私聊頻道不能添加成員")
	}
	if s.maxMembers > 0 {
		count, cerr := s.memberships.CountByChannel(ctx, channelID)
		if cerr == nil && count >= int64(s.maxMembers) {
			return errs.FailedPrecondition(fmt.Sprintf("頻道成員數已達上限 %d", s.maxMembers))
		}
	}

	if err := s.memberships.Add(ctx, &channel.Membership{
		ChannelID: channelID,
		UserID:    userID,
		Role:      channel.RoleMember,
		JoinedAt:  time.Now(),
	}); err != nil {
		return err
	}

	s.audit.LogMemberAdded(ctx, requesterID, channelID, userID)
	s.systemMessage(ctx, channelID, fmt.Sprintf("%s 加入了頻道", userID))

	if s.notifier != nil {
		if derr := s.notifier.Dispatch(ctx, &notification.Notification{
			UserID:        userID,
			Type:          notification.TypeChannelInvite,
			Title:         "頻道邀請",
			Message:       fmt.Sprintf("%s 邀請你加入頻道 %s", requesterID, ch.Name),
			Payload:       map[string]interface{}{"channel_id": channelID},
			RelatedUserID: requesterID,
		}); derr != nil {
			logger.Warningf(ctx, "入頻通知發送失敗: %v", derr)
		}
	}
	if s.events != nil {
		s.events.MemberChanged(channelID)
	}
	return nil
}

// RemoveMember 移除成員
// 自己退出永遠允許（含私聊）；移除他人需要 admin.
func (s *Service) RemoveMember(ctx context.Context, channelID, requesterID, userID string) error {
	if requesterID == userID {
		if _, err := s.RequireMember(ctx, channelID, requesterID); err != nil {
			return err
		}
	} else {
		if _, err := s.RequireAdmin(ctx, channelID, requesterID); err != nil {
			return err
		}
	}

	if err := s.memberships.Remove(ctx, channelID, userID); err != nil {
		return err
	}

	s.audit.LogMemberRemoved(ctx, requesterID, channelID, userID)
	s.systemMessage(ctx, channelID, fmt.Sprintf("%s 離開了頻道", userID))

	if s.events != nil {
		s.events.MemberChanged(channelID)
	}
	return nil
}

// SetMemberRole 變更成員角色
// 僅 admin 可操作；私聊頻道角色固定不可變更.
func (s *Service) SetMemberRole(ctx context.Context, channelID, requesterID, userID, role string) error {
	if _, err := s.RequireAdmin(ctx, channelID, requesterID); err != nil {
		return err
	}
	if role != channel.RoleAdmin && role != channel.RoleMember {
		return errs.InvalidArg("無效的角色")
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Type == channel.TypeDirect {
		return errs.FailedPrecondition("私聊頻道不能變更角色")
	}

	return s.memberships.UpdateRole(ctx, channelID, userID, role)
}

// ListMembers 列出頻道成員（僅限成員），附帶在線狀態
func (s *Service) ListMembers(ctx context.Context, channelID, requesterID string) ([]*MemberView, error) {
	if _, err := s.RequireMember(ctx, channelID, requesterID); err != nil {
		return nil, err
	}
	return s.memberViews(ctx, channelID), nil
}

// MarkRead 更新已讀水位
// 只向前推進，晚到的舊請求不會回退水位.
func (s *Service) MarkRead(ctx context.Context, channelID, userID string) error {
	if _, err := s.RequireMember(ctx, channelID, userID); err != nil {
		return err
	}
	return s.memberships.UpdateLastRead(ctx, channelID, userID, time.Now())
}

func (s *Service) unreadCount(ctx context.Context, channelID, userID string, since time.Time) int64 {
	n, err := s.messages.CountUnread(ctx, channelID, userID, since)
	if err != nil {
		logger.Warningf(ctx, "頻道 %s 未讀數統計失敗: %v", channelID, err)
		return 0
	}
	return n
}

func (s *Service) memberViews(ctx context.Context, channelID string) []*MemberView {
	mems, err := s.memberships.ListByChannel(ctx, channelID)
	if err != nil {
		logger.Warningf(ctx, "頻道 %s 成員列表查詢失敗: %v", channelID, err)
		return nil
	}
	ids := make([]string, 0, len(mems))
	for _, m := range mems {
		ids = append(ids, m.UserID)
	}
	statuses := make(map[string]*status.UserStatus, len(ids))
	if s.statuses != nil {
		if list, serr := s.statuses.GetMany(ctx, ids); serr == nil {
			for _, st := range list {
				statuses[st.UserID] = st
			}
		}
	}
	views := make([]*MemberView, 0, len(mems))
	for _, m := range mems {
		v := &MemberView{
			ChannelID:  m.ChannelID,
			UserID:     m.UserID,
			Role:       m.Role,
			JoinedAt:   m.JoinedAt,
			LastReadAt: m.LastReadAt,
			Status:     status.StatusOffline,
		}
		if st := statuses[m.UserID]; st != nil {
			v.Status = st.Status
			v.CustomMessage = st.CustomMessage
		}
		views = append(views, v)
	}
	return views
}

func (s *Service) notifyMembers(ctx context.Context, userIDs []string, build func(userID string) *notification.Notification) {
	if s.notifier == nil || len(userIDs) == 0 {
		return
	}
	s.notifier.DispatchMany(ctx, userIDs, build)
}

func dedupMembers(memberIDs []string, creatorID string) []string {
	seen := map[string]bool{creatorID: true}
	out := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func directName(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ", ")
}
