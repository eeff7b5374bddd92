package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"chat-engine/internal/errs"
	"chat-engine/internal/storage/database/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusStore struct {
	mu sync.Mutex
	m  map[string]*status.UserStatus
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{m: make(map[string]*status.UserStatus)}
}

func (s *fakeStatusStore) Upsert(ctx context.Context, userID, stat, customMessage string) (*status.UserStatus, error) {
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

func (s *fakeStatusStore) Get(ctx context.Context, userID string) (*status.UserStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.m[userID]; ok {
		cp := *us
		return &cp, nil
	}
	return &status.UserStatus{UserID: userID, Status: status.StatusOffline}, nil
}

func (s *fakeStatusStore) GetMany(ctx context.Context, userIDs []string) ([]*status.UserStatus, error) {
	out := make([]*status.UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		us, _ := s.Get(context.Background(), id)
		out = append(out, us)
	}
	return out, nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*status.UserStatus
}

func (b *fakeBroadcaster) BroadcastPresence(us *status.UserStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, us)
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *fakeBroadcaster) last() *status.UserStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}

func TestTrackerFirstConnectionMarksOnline(t *testing.T) {
	store := newFakeStatusStore()
	bc := &fakeBroadcaster{}
	tr := NewTracker(store, bc)
	ctx := context.Background()

	tr.Connect(ctx, "alice")

	us, err := tr.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, status.StatusOnline, us.Status)
	assert.Equal(t, 1, bc.count())

	// 第二條連接不再觸發廣播
	tr.Connect(ctx, "alice")
	assert.Equal(t, 2, tr.ConnectionCount("alice"))
	assert.Equal(t, 1, bc.count())
}

func TestTrackerLastDisconnectMarksOffline(t *testing.T) {
	store := newFakeStatusStore()
	bc := &fakeBroadcaster{}
	tr := NewTracker(store, bc)
	ctx := context.Background()

	tr.Connect(ctx, "alice")
	tr.Connect(ctx, "alice")

	// 還剩一條連接，維持在線
	tr.Disconnect(ctx, "alice")
	us, err := tr.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, status.StatusOnline, us.Status)

	// 最後一條斷開才轉離線
	tr.Disconnect(ctx, "alice")
	us, err = tr.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, status.StatusOffline, us.Status)
	assert.Equal(t, status.StatusOffline, bc.last().Status)
}

func TestTrackerDisconnectIdempotent(t *testing.T) {
	store := newFakeStatusStore()
	bc := &fakeBroadcaster{}
	tr := NewTracker(store, bc)
	ctx := context.Background()

	tr.Connect(ctx, "alice")
	tr.Disconnect(ctx, "alice")
	before := bc.count()

	// 沒有對應連接的斷開是冪等的，不重覆廣播離線
	tr.Disconnect(ctx, "alice")
	tr.Disconnect(ctx, "alice")
	assert.Equal(t, before, bc.count())
	assert.Equal(t, 0, tr.ConnectionCount("alice"))
}

func TestTrackerSetStatusValidation(t *testing.T) {
	tr := NewTracker(newFakeStatusStore(), nil)
	ctx := context.Background()

	for _, valid := range []string{
		status.StatusOnline, status.StatusOffline, status.StatusAway,
		status.StatusBusy, status.StatusInMeeting,
	} {
		_, err := tr.SetStatus(ctx, "alice", valid, "")
		assert.NoError(t, err, valid)
	}

	_, err := tr.SetStatus(ctx, "alice", "sleeping", "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidArgument))
}

func TestTrackerAutoTransitionKeepsCustomMessage(t *testing.T) {
	store := newFakeStatusStore()
	bc := &fakeBroadcaster{}
	tr := NewTracker(store, bc)
	ctx := context.Background()

	_, err := tr.SetStatus(ctx, "alice", status.StatusBusy, "開會中勿擾")
	require.NoError(t, err)

	// 上線與離線的自動轉換保留自訂簽名
	tr.Connect(ctx, "alice")
	us, err := tr.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "開會中勿擾", us.CustomMessage)

	tr.Disconnect(ctx, "alice")
	us, err = tr.GetStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, status.StatusOffline, us.Status)
	assert.Equal(t, "開會中勿擾", us.CustomMessage)
}

func TestTrackerGetStatusesDefaultsOffline(t *testing.T) {
	tr := NewTracker(newFakeStatusStore(), nil)
	ctx := context.Background()

	tr.Connect(ctx, "alice")

	statuses, err := tr.GetStatuses(ctx, []string{"alice", "stranger"})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, status.StatusOnline, statuses[0].Status)
	assert.Equal(t, status.StatusOffline, statuses[1].Status)
}
