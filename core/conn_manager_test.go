package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTimeout = time.Second

type connFixture struct {
	t        *testing.T
	manager  *ConnManager
	server   *httptest.Server
	wg       sync.WaitGroup
	tearDown func()
}

func setUpConnFixture(t *testing.T) *connFixture {
	ctx, cancel := context.WithCancel(context.Background())

	f := &connFixture{t: t}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	f.manager = NewConnManager(ctx, &f.wg, logger)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.manager.Connect(w, r)
	}))
	f.tearDown = func() {
		f.manager.Close()
		f.server.Close()
		cancel()
		f.wg.Wait()
	}
	return f
}

func (f *connFixture) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(f.t, err)
	return client
}

// connID waits until exactly one connection is registered and returns its id.
func (f *connFixture) connID() string {
	require.Eventually(f.t, func() bool {
		f.manager.mu.RLock()
		defer f.manager.mu.RUnlock()
		return len(f.manager.conns) == 1
	}, baseTimeout, baseTimeout/20, "timeout waiting for the connection to register")

	f.manager.mu.RLock()
	defer f.manager.mu.RUnlock()
	for id := range f.manager.conns {
		return id
	}
	return ""
}

func TestConnectDispatchesInboundEvents(t *testing.T) {
	f := setUpConnFixture(t)
	defer f.tearDown()

	received := make(chan *Event, 1)
	f.manager.OnEvent(func(e *Event) {
		received <- e
	})

	client := f.dial()
	defer client.Close()
	id := f.connID()

	err := client.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"join","payload":{"username":"alice","room":"lobby"}}`))
	require.Nil(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "join", e.Type)
		assert.Equal(t, id, e.Dispatcher)
		assert.JSONEq(t, `{"username":"alice","room":"lobby"}`, string(e.Payload))
	case <-time.After(baseTimeout):
		t.Fatal("timeout waiting for the event to be dispatched")
	}
}

func TestSendToConns(t *testing.T) {
	f := setUpConnFixture(t)
	defer f.tearDown()

	client := f.dial()
	defer client.Close()
	id := f.connID()

	event, err := NewEvent("system", map[string]string{"msg": "hello"})
	require.Nil(t, err)
	f.manager.SendToConns(event, id)

	client.SetReadDeadline(time.Now().Add(baseTimeout))
	_, raw, err := client.ReadMessage()
	require.Nil(t, err)

	var got Event
	require.Nil(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "system", got.Type)
	assert.JSONEq(t, `{"msg":"hello"}`, string(got.Payload))
}

func TestSendToUnknownConn(t *testing.T) {
	f := setUpConnFixture(t)
	defer f.tearDown()

	event, err := NewEvent("system", nil)
	require.Nil(t, err)

	// unknown ids are skipped
	f.manager.SendToConns(event, "no-such-conn")
}

func TestClientDisconnect(t *testing.T) {
	f := setUpConnFixture(t)
	defer f.tearDown()

	disconnected := make(chan string, 1)
	f.manager.OnDisconnect(func(ctx context.Context, connID string) {
		disconnected <- connID
	})

	client := f.dial()
	id := f.connID()

	client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.Close()

	select {
	case gotID := <-disconnected:
		assert.Equal(t, id, gotID)
	case <-time.After(baseTimeout):
		t.Fatal("timeout waiting for the disconnect callback")
	}
	assert.False(t, f.manager.IsConnected(id))
}
