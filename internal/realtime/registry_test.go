package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession 測試用連接，記錄收到的所有幀
type fakeSession struct {
	id   string
	user string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeSession(id, user string) *fakeSession {
	return &fakeSession{id: id, user: user}
}

func (s *fakeSession) SessionID() string { return s.id }
func (s *fakeSession) User() string      { return s.user }

func (s *fakeSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("connection closed")
	}
	s.frames = append(s.frames, payload)
	return nil
}

func (s *fakeSession) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSession) lastEvent(t *testing.T) *OutFrame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames)
	var frame OutFrame
	require.NoError(t, json.Unmarshal(s.frames[len(s.frames)-1], &frame))
	return &frame
}

func TestRegistryRoomBroadcast(t *testing.T) {
	r := NewRegistry()

	alice := newFakeSession("s1", "alice")
	bob := newFakeSession("s2", "bob")
	carol := newFakeSession("s3", "carol")

	for _, s := range []*fakeSession{alice, bob, carol} {
		r.Attach(s)
	}
	room := ChannelRoom("ch-1")
	r.Join(room, alice)
	r.Join(room, bob)
	// carol 不在房間

	delivered := r.BroadcastEvent(room, EventNewMessage, map[string]string{"id": "m1"}, "")
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, alice.received())
	assert.Equal(t, 1, bob.received())
	assert.Equal(t, 0, carol.received())

	frame := alice.lastEvent(t)
	assert.Equal(t, EventNewMessage, frame.Event)
}

func TestRegistryBroadcastExcludesUser(t *testing.T) {
	r := NewRegistry()

	// 同一用戶兩條連接，排除時兩條都不收
	alice1 := newFakeSession("s1", "alice")
	alice2 := newFakeSession("s2", "alice")
	bob := newFakeSession("s3", "bob")

	room := ChannelRoom("ch-1")
	for _, s := range []*fakeSession{alice1, alice2, bob} {
		r.Attach(s)
		r.Join(room, s)
	}

	delivered := r.BroadcastEvent(room, EventUserTyping, &TypingEvent{ChannelID: "ch-1", UserID: "alice", IsTyping: true}, "alice")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, alice1.received())
	assert.Equal(t, 0, alice2.received())
	assert.Equal(t, 1, bob.received())
}

func TestRegistrySendToUserHitsAllConnections(t *testing.T) {
	r := NewRegistry()

	alice1 := newFakeSession("s1", "alice")
	alice2 := newFakeSession("s2", "alice")
	bob := newFakeSession("s3", "bob")

	for _, s := range []*fakeSession{alice1, alice2, bob} {
		r.Attach(s)
	}

	ok := r.SendEventToUser("alice", EventNotification, map[string]string{"title": "hi"})
	assert.True(t, ok)
	assert.Equal(t, 1, alice1.received())
	assert.Equal(t, 1, alice2.received())
	assert.Equal(t, 0, bob.received())

	// 不在線的用戶
	assert.False(t, r.SendEventToUser("nobody", EventNotification, nil))
}

func TestRegistryDetachCleansRooms(t *testing.T) {
	r := NewRegistry()

	alice := newFakeSession("s1", "alice")
	bob := newFakeSession("s2", "bob")
	room := ChannelRoom("ch-1")

	r.Attach(alice)
	r.Attach(bob)
	r.Join(room, alice)
	r.Join(room, bob)

	r.Detach(alice)

	assert.False(t, r.InRoom(room, alice))
	assert.Equal(t, 1, r.ConnectionCount())

	delivered := r.BroadcastEvent(room, EventNewMessage, nil, "")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, alice.received())
}

func TestRegistryLeaveRoom(t *testing.T) {
	r := NewRegistry()

	alice := newFakeSession("s1", "alice")
	room := ChannelRoom("ch-1")

	r.Attach(alice)
	r.Join(room, alice)
	require.True(t, r.InRoom(room, alice))

	r.Leave(room, alice)
	assert.False(t, r.InRoom(room, alice))
	// 離開房間不影響連接本身
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRegistryRoomSessionsSnapshot(t *testing.T) {
	r := NewRegistry()

	room := ChannelRoom("ch-1")
	for i, uid := range []string{"alice", "bob"} {
		s := newFakeSession(fmt.Sprintf("s%d", i), uid)
		r.Attach(s)
		r.Join(room, s)
	}

	sessions := r.RoomSessions(room)
	assert.Len(t, sessions, 2)
	assert.Empty(t, r.RoomSessions(ChannelRoom("empty")))
}

func TestRegistryBroadcastAll(t *testing.T) {
	r := NewRegistry()

	alice := newFakeSession("s1", "alice")
	bob := newFakeSession("s2", "bob")
	r.Attach(alice)
	r.Attach(bob)

	delivered := r.BroadcastEventAll(EventPresenceChanged, &PresenceEvent{UserID: "carol", Status: "online"})
	assert.Equal(t, 2, delivered)

	frame := bob.lastEvent(t)
	assert.Equal(t, EventPresenceChanged, frame.Event)
}

func TestRegistryCloseDisconnectsEverything(t *testing.T) {
	r := NewRegistry()

	alice := newFakeSession("s1", "alice")
	r.Attach(alice)
	r.Join(ChannelRoom("ch-1"), alice)

	r.Close()

	assert.Equal(t, 0, r.ConnectionCount())
	alice.mu.Lock()
	defer alice.mu.Unlock()
	assert.True(t, alice.closed)
}
