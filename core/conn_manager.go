package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/net/context"
)

// ConnManager owns the live websocket connections. Each connection is keyed
// by an opaque uuid assigned at upgrade time; the rest of the system only
// ever sees that id.
type ConnManager struct {
	conns   map[string]*Conn
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	// dispatch handles inbound events. It is called on the connection's
	// read loop goroutine.
	dispatch func(*Event)

	// onDisconnect runs after a connection is removed. It is invoked from
	// the connection's read loop goroutine, after the last inbound event for
	// that connection has been dispatched.
	onDisconnect func(context.Context, string)

	upgrader        websocket.Upgrader
	WriteStreamSize int
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func NewConnManager(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		conns:           make(map[string]*Conn),
		connWg:          wg,
		context:         ctx,
		logger:          logger,
		upgrader:        defaultUpgrader,
		WriteStreamSize: 100,
		dispatch:        func(*Event) {},
		onDisconnect:    func(context.Context, string) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *ConnManager) OnEvent(f func(*Event)) {
	m.dispatch = f
}

func (m *ConnManager) OnDisconnect(f func(context.Context, string)) {
	m.onDisconnect = f
}

func (m *ConnManager) IsConnected(connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[connID]
	return ok
}

// Connect upgrades the request to a websocket connection, registers it under
// a fresh id and starts its read and write loops.
func (m *ConnManager) Connect(w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id := uuid.New().String()
	wsConn := &Conn{
		id:          id,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		dispatch:    func(e *Event) { m.dispatch(e) },
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.String("connection", id)),
		notifyDisconnect: func() {
			m.disconnect(id)
		},
	}

	m.mu.Lock()
	m.conns[id] = wsConn
	m.mu.Unlock()

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	m.logger.Info("connection opened", slog.String("connection", id))
	return nil
}

func (m *ConnManager) disconnect(connID string) {
	m.mu.Lock()
	conn, ok := m.conns[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, connID)
	conn.close()
	m.mu.Unlock()

	m.logger.Info("connection closed", slog.String("connection", connID))
	m.onDisconnect(m.context, connID)
}

// SendToConns delivers an event to the given connections. Ids that are no
// longer connected are skipped, and a connection whose write buffer is full
// misses the event; delivery is best effort.
func (m *ConnManager) SendToConns(e *Event, connIDs ...string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range connIDs {
		conn, ok := m.conns[id]
		if !ok {
			continue
		}
		select {
		case conn.writeStream <- e:
		default:
			m.logger.Debug(fmt.Sprintf("write buffer full: dropping %s for %s", e.Type, id))
		}
	}
}

// Close disconnects all live connections.
func (m *ConnManager) Close() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for id, conn := range m.conns {
		conns = append(conns, conn)
		delete(m.conns, id)
	}
	for _, conn := range conns {
		conn.close()
	}
	m.mu.Unlock()
}
