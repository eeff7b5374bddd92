package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-engine/internal/errs"
	"chat-engine/internal/notify"
	"chat-engine/internal/storage/database/channel"
	"chat-engine/internal/storage/database/message"
	"chat-engine/internal/storage/database/notification"
	"chat-engine/internal/storage/database/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- 記憶體版倉儲，供服務層測試使用 ----

type memChannels struct {
	mu sync.Mutex
	m  map[string]*channel.Channel
}

func newMemChannels() *memChannels {
	return &memChannels{m: make(map[string]*channel.Channel)}
}

func (s *memChannels) Create(ctx context.Context, ch *channel.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.DirectKey != "" {
		for _, existing := range s.m {
			if existing.IsActive && existing.Type == channel.TypeDirect && existing.DirectKey == ch.DirectKey {
				return errs.AlreadyExists("私聊頻道已存在")
			}
		}
	}
	cp := *ch
	s.m[ch.ID] = &cp
	return nil
}

func (s *memChannels) GetByID(ctx context.Context, id string) (*channel.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.m[id]
	if !ok || !ch.IsActive {
		return nil, errs.NotFound("頻道不存在")
	}
	cp := *ch
	return &cp, nil
}

func (s *memChannels) Update(ctx context.Context, id string, update map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return errs.NotFound("頻道不存在")
	}
	return nil
}

func (s *memChannels) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.m[id]
	if !ok || !ch.IsActive {
		return errs.NotFound("頻道不存在")
	}
	ch.IsActive = false
	return nil
}

func (s *memChannels) FindDirectByKey(ctx context.Context, directKey string) (*channel.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.m {
		if ch.IsActive && ch.Type == channel.TypeDirect && ch.DirectKey == directKey {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, errs.NotFound("頻道不存在")
}

func (s *memChannels) ListByIDs(ctx context.Context, ids []string) ([]*channel.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*channel.Channel{}
	for _, id := range ids {
		if ch, ok := s.m[id]; ok && ch.IsActive {
			cp := *ch
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (s *memChannels) SetLastMessage(ctx context.Context, id, preview string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.m[id]
	if !ok {
		return errs.NotFound("頻道不存在")
	}
	ch.LastMessage = preview
	ch.LastMessageAt = at
	return nil
}

type memMemberships struct {
	mu sync.Mutex
	m  map[string]*channel.Membership // channelID+"/"+userID
}

func newMemMemberships() *memMemberships {
	return &memMemberships{m: make(map[string]*channel.Membership)}
}

func memKey(channelID, userID string) string { return channelID + "/" + userID }

func (s *memMemberships) Add(ctx context.Context, m *channel.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(m.ChannelID, m.UserID)
	if _, ok := s.m[k]; ok {
		return errs.AlreadyExists("用戶已是頻道成員")
	}
	if m.Role == "" {
		m.Role = channel.RoleMember
	}
	cp := *m
	s.m[k] = &cp
	return nil
}

func (s *memMemberships) Remove(ctx context.Context, channelID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(channelID, userID)
	if _, ok := s.m[k]; !ok {
		return errs.NotFound("成員不存在")
	}
	delete(s.m, k)
	return nil
}

func (s *memMemberships) Get(ctx context.Context, channelID, userID string) (*channel.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[memKey(channelID, userID)]
	if !ok {
		return nil, errs.NotFound("成員不存在")
	}
	cp := *m
	return &cp, nil
}

func (s *memMemberships) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[memKey(channelID, userID)]
	return ok, nil
}

func (s *memMemberships) ListByChannel(ctx context.Context, channelID string) ([]*channel.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*channel.Membership{}
	for _, m := range s.m {
		if m.ChannelID == channelID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memMemberships) ListByUser(ctx context.Context, userID string) ([]*channel.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*channel.Membership{}
	for _, m := range s.m {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memMemberships) UpdateLastRead(ctx context.Context, channelID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[memKey(channelID, userID)]
	if !ok {
		return errs.NotFound("成員不存在")
	}
	if at.After(m.LastReadAt) {
		m.LastReadAt = at
	}
	return nil
}

func (s *memMemberships) UpdateRole(ctx context.Context, channelID, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[memKey(channelID, userID)]
	if !ok {
		return errs.NotFound("成員不存在")
	}
	m.Role = role
	return nil
}

func (s *memMemberships) CountByChannel(ctx context.Context, channelID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.m {
		if m.ChannelID == channelID {
			n++
		}
	}
	return n, nil
}

type memMessages struct {
	mu   sync.Mutex
	list []*message.Message
	seq  int
}

func newMemMessages() *memMessages { return &memMessages{} }

func (s *memMessages) Create(ctx context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	// 用遞增時間戳保證排序穩定
	msg.CreatedAt = time.Unix(int64(s.seq), 0)
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	s.list = append(s.list, &cp)
	return nil
}

func (s *memMessages) GetByID(ctx context.Context, id string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.list {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errs.NotFound("消息不存在")
}

func (s *memMessages) ListByChannel(ctx context.Context, channelID string, limit, offset int) ([]*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inChannel := []*message.Message{}
	for i := len(s.list) - 1; i >= 0; i-- {
		if s.list[i].ChannelID == channelID {
			cp := *s.list[i]
			inChannel = append(inChannel, &cp)
		}
	}
	if offset >= len(inChannel) {
		return []*message.Message{}, nil
	}
	inChannel = inChannel[offset:]
	if limit < len(inChannel) {
		inChannel = inChannel[:limit]
	}
	return inChannel, nil
}

func (s *memMessages) Update(ctx context.Context, id string, update map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.list {
		if m.ID == id {
			if v, ok := update["content"].(string); ok {
				m.Content = v
			}
			if v, ok := update["is_edited"].(bool); ok {
				m.IsEdited = v
			}
			if v, ok := update["is_deleted"].(bool); ok {
				m.IsDeleted = v
			}
			m.UpdatedAt = time.Now()
			return nil
		}
	}
	return errs.NotFound("消息不存在")
}

func (s *memMessages) CountUnread(ctx context.Context, channelID, userID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.list {
		if m.ChannelID == channelID && m.SenderID != userID && m.Type != message.TypeSystem &&
			m.CreatedAt.After(since) && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

type memAttachments struct {
	mu sync.Mutex
	m  map[string]*message.Attachment
}

func newMemAttachments() *memAttachments {
	return &memAttachments{m: make(map[string]*message.Attachment)}
}

func (s *memAttachments) Create(ctx context.Context, att *message.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *att
	s.m[att.ID] = &cp
	return nil
}

func (s *memAttachments) GetByID(ctx context.Context, id string) (*message.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.m[id]
	if !ok {
		return nil, errs.NotFound("附件不存在")
	}
	cp := *att
	return &cp, nil
}

func (s *memAttachments) ListByMessage(ctx context.Context, messageID string) ([]*message.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*message.Attachment{}
	for _, att := range s.m {
		if att.MessageID == messageID {
			cp := *att
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memAttachments) DeleteByMessage(ctx context.Context, messageID string) ([]*message.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := []*message.Attachment{}
	for id, att := range s.m {
		if att.MessageID == messageID {
			cp := *att
			deleted = append(deleted, &cp)
			delete(s.m, id)
		}
	}
	return deleted, nil
}

type memStatuses struct {
	mu sync.Mutex
	m  map[string]*status.UserStatus
}

func newMemStatuses() *memStatuses {
	return &memStatuses{m: make(map[string]*status.UserStatus)}
}

func (s *memStatuses) Upsert(ctx context.Context, userID, stat, customMessage string) (*status.UserStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us := &status.UserStatus{
		UserID:        userID,
		Status:        stat,
		CustomMessage: customMessage,
		LastSeen:      time.Now(),
		UpdatedAt:     time.Now(),
	}
	s.m[userID] = us
	cp := *us
	return &cp, nil
}

func (s *memStatuses) Get(ctx context.Context, userID string) (*status.UserStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.m[userID]; ok {
		cp := *us
		return &cp, nil
	}
	return &status.UserStatus{UserID: userID, Status: status.StatusOffline}, nil
}

func (s *memStatuses) GetMany(ctx context.Context, userIDs []string) ([]*status.UserStatus, error) {
	out := make([]*status.UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		us, _ := s.Get(context.Background(), id)
		out = append(out, us)
	}
	return out, nil
}

type memNotifications struct {
	mu   sync.Mutex
	list []*notification.Notification
}

func newMemNotifications() *memNotifications { return &memNotifications{} }

func (s *memNotifications) Create(ctx context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = fmt.Sprintf("n-%d", len(s.list)+1)
	}
	cp := *n
	s.list = append(s.list, &cp)
	return nil
}

func (s *memNotifications) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*notification.Notification{}
	for _, n := range s.list {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memNotifications) CountUnread(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, x := range s.list {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memNotifications) MarkRead(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.list {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			now := time.Now()
			n.ReadAt = &now
			return nil
		}
	}
	return errs.NotFound("通知不存在")
}

func (s *memNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	now := time.Now()
	for _, n := range s.list {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (s *memNotifications) Delete(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.list {
		if n.ID == id && n.UserID == userID {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return nil
		}
	}
	return errs.NotFound("通知不存在")
}

func (s *memNotifications) DeleteRead(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	kept := s.list[:0]
	for _, n := range s.list {
		if n.UserID == userID && n.IsRead {
			count++
			continue
		}
		kept = append(kept, n)
	}
	s.list = kept
	return count, nil
}

func (s *memNotifications) DeleteAll(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	kept := s.list[:0]
	for _, n := range s.list {
		if n.UserID == userID {
			count++
			continue
		}
		kept = append(kept, n)
	}
	s.list = kept
	return count, nil
}

type memBlobs struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	seq     int
}

func newMemBlobs() *memBlobs { return &memBlobs{files: make(map[string][]byte)} }

func (s *memBlobs) Put(ctx context.Context, fileName string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := fmt.Sprintf("blob-%d", s.seq)
	s.files[key] = data
	return key, nil
}

func (s *memBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[key]
	if !ok {
		return nil, errs.NotFound("檔案不存在")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobs) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[key]; !ok {
		return errs.NotFound("檔案不存在")
	}
	delete(s.files, key)
	s.deleted = append(s.deleted, key)
	return nil
}

// recordingEvents 記錄廣播事件供斷言
type recordingEvents struct {
	mu      sync.Mutex
	created []*MessageView
	edited  []*MessageView
	deleted []string
}

func (e *recordingEvents) MessageCreated(view *MessageView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, view)
}

func (e *recordingEvents) MessageEdited(view *MessageView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edited = append(e.edited, view)
}

func (e *recordingEvents) MessageDeleted(channelID, messageID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, messageID)
}

func (e *recordingEvents) MemberChanged(channelID string) {}

type testEnv struct {
	svc           *Service
	channels      *memChannels
	memberships   *memMemberships
	messages      *memMessages
	attachments   *memAttachments
	notifications *memNotifications
	blobs         *memBlobs
	events        *recordingEvents
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		channels:      newMemChannels(),
		memberships:   newMemMemberships(),
		messages:      newMemMessages(),
		attachments:   newMemAttachments(),
		notifications: newMemNotifications(),
		blobs:         newMemBlobs(),
		events:        &recordingEvents{},
	}
	env.svc = NewService(Options{
		Channels:       env.channels,
		Memberships:    env.memberships,
		Messages:       env.messages,
		Attachments:    env.attachments,
		Statuses:       newMemStatuses(),
		Blobs:          env.blobs,
		Notifier:       notify.NewDispatcher(env.notifications, nil),
		Events:         env.events,
		MaxMembers:     10,
		MaxUploadFiles: 3,
		MaxUploadSize:  1 << 20,
	})
	return env
}

// ---- 頻道操作 ----

func TestCreateChannelAssignsRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "專案討論", channel.TypeGroup, "", []string{"bob", "carol", "bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, channel.RoleAdmin, view.Role)
	require.Len(t, view.Members, 3)

	creator, err := env.memberships.Get(ctx, view.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, channel.RoleAdmin, creator.Role)

	bob, err := env.memberships.Get(ctx, view.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, channel.RoleMember, bob.Role)

	// 受邀成員收到頻道邀請通知
	invites, err := env.notifications.ListByUser(ctx, "bob", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, notification.TypeChannelInvite, invites[0].Type)
}

func TestCreateChannelRejectsDirectType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateChannel(context.Background(), "alice", "私聊", channel.TypeDirect, "", []string{"bob"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestCreateChannelRejectsEmptyName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateChannel(context.Background(), "alice", "   ", channel.TypeGroup, "", nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestDirectChannelDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	// 參數順序對調仍然命中同一個頻道
	second, err := env.svc.GetOrCreateDirect(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestDirectChannelWithSelfRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetOrCreateDirect(context.Background(), "alice", "alice")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestGetChannelHidesExistenceFromNonMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "內部頻道", channel.TypePrivate, "", nil)
	require.NoError(t, err)

	// 非成員拿到的是 NOT_FOUND，而不是 PERMISSION_DENIED
	_, err = env.svc.GetChannel(ctx, view.ID, "mallory")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestDeleteChannelRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob"})
	require.NoError(t, err)

	err = env.svc.DeleteChannel(ctx, view.ID, "bob")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodePermissionDenied))

	require.NoError(t, env.svc.DeleteChannel(ctx, view.ID, "alice"))

	_, err = env.svc.GetChannel(ctx, view.ID, "alice")
	require.Error(t, err)
}

func TestDirectChannelCannotBeDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	err = env.svc.DeleteChannel(ctx, view.ID, "alice")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeFailedPrecondition))
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob"})
	require.NoError(t, err)

	err = env.svc.AddMember(ctx, view.ID, "bob", "carol")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodePermissionDenied))

	require.NoError(t, env.svc.AddMember(ctx, view.ID, "alice", "carol"))

	ok, err := env.memberships.IsMember(ctx, view.ID, "carol")
	require.NoError(t, err)
	assert.True(t, ok)

	// 入頻後頻道裡出現系統消息
	msgs, err := env.svc.ListMessages(ctx, view.ID, "alice", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, message.TypeSystem, last.Type)
	assert.True(t, strings.Contains(last.Content, "carol"))
}

func TestAddDuplicateMemberFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob"})
	require.NoError(t, err)

	err = env.svc.AddMember(ctx, view.ID, "alice", "bob")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAlreadyExists))
}

func TestRemoveMemberSelfAlwaysAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob", "carol"})
	require.NoError(t, err)

	// 普通成員移除他人被拒
	err = env.svc.RemoveMember(ctx, view.ID, "bob", "carol")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodePermissionDenied))

	// 自己退出永遠允許
	require.NoError(t, env.svc.RemoveMember(ctx, view.ID, "bob", "bob"))

	ok, err := env.memberships.IsMember(ctx, view.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListChannelsReportsUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob"})
	require.NoError(t, err)

	_, err = env.svc.SendMessage(ctx, view.ID, "alice", "早安", "")
	require.NoError(t, err)
	_, err = env.svc.SendMessage(ctx, view.ID, "alice", "午安", "")
	require.NoError(t, err)

	list, err := env.svc.ListChannels(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].UnreadCount)

	// 標記已讀後未讀歸零
	require.NoError(t, env.svc.MarkRead(ctx, view.ID, "bob"))
	list, err = env.svc.ListChannels(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), list[0].UnreadCount)
}

func TestSetMemberRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob"})
	require.NoError(t, err)

	// 非管理員不可變更角色
	err = env.svc.SetMemberRole(ctx, view.ID, "bob", "bob", channel.RoleAdmin)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodePermissionDenied))

	// 角色值必須是已知角色
	err = env.svc.SetMemberRole(ctx, view.ID, "alice", "bob", "owner")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidArgument))

	require.NoError(t, env.svc.SetMemberRole(ctx, view.ID, "alice", "bob", channel.RoleAdmin))

	// 升級後可以執行管理操作
	require.NoError(t, env.svc.AddMember(ctx, view.ID, "bob", "carol"))

	// 非成員回報不存在
	err = env.svc.SetMemberRole(ctx, view.ID, "alice", "dave", channel.RoleAdmin)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestSetMemberRoleDirectChannelForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.GetOrCreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	err = env.svc.SetMemberRole(ctx, view.ID, "alice", "bob", channel.RoleAdmin)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeFailedPrecondition))
}

func TestSystemMessagesDoNotCountAsUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateChannel(ctx, "alice", "群組", channel.TypeGroup, "", []string{"bob"})
	require.NoError(t, err)

	// 進出頻道產生的系統消息不算未讀
	require.NoError(t, env.svc.AddMember(ctx, view.ID, "alice", "carol"))
	require.NoError(t, env.svc.RemoveMember(ctx, view.ID, "carol", "carol"))

	list, err := env.svc.ListChannels(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(0), list[0].UnreadCount)

	// 一般消息照常計入
	_, err = env.svc.SendMessage(ctx, view.ID, "alice", "早安", "")
	require.NoError(t, err)
	list, err = env.svc.ListChannels(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), list[0].UnreadCount)
}
