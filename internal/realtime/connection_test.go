package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestConn 建立一條真實 WebSocket 連接供測試使用
func dialTestConn(t *testing.T, sendBuffer int) (*Connection, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-done
		_ = ws.Close()
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}

	conn := NewConnection("alice", ws, sendBuffer)
	cleanup := func() {
		close(done)
		srv.Close()
	}
	return conn, cleanup
}

func TestConnectionSendAfterClose(t *testing.T) {
	conn, cleanup := dialTestConn(t, 4)
	defer cleanup()
	conn.Start()

	conn.Close(websocket.CloseNormalClosure, "bye")

	// 關閉後的 Send 返回錯誤，永不 panic
	for i := 0; i < 10; i++ {
		err := conn.Send([]byte("payload"))
		assert.Error(t, err)
	}
}

func TestConnectionConcurrentSendAndClose(t *testing.T) {
	conn, cleanup := dialTestConn(t, 4)
	defer cleanup()
	conn.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = conn.Send([]byte("broadcast"))
			}
		}()
	}

	conn.Close(websocket.CloseGoingAway, "shutdown")
	wg.Wait()
}

func TestConnectionCloseIdempotent(t *testing.T) {
	conn, cleanup := dialTestConn(t, 4)
	defer cleanup()
	conn.Start()

	conn.Close(websocket.CloseNormalClosure, "bye")
	conn.Close(websocket.CloseNormalClosure, "bye again")
}

func TestConnectionBufferOverflowDisconnects(t *testing.T) {
	// 不啟動寫循環，讓緩衝填滿
	conn, cleanup := dialTestConn(t, 4)
	defer cleanup()

	for i := 0; i < 4; i++ {
		require.NoError(t, conn.Send([]byte("x")))
	}

	err := conn.Send([]byte("overflow"))
	require.Error(t, err)

	// 斷線後持續拒收
	assert.Error(t, conn.Send([]byte("after")))
}
