package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/rider-client/internal/models"
)

const (
	peerSendBuffer = 64
	pingInterval   = 25 * time.Second
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
)

var ErrNoSession = errors.New("no ws session")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Peer is one connected websocket. A peer joins at most one user room.
type Peer struct {
	SocketID string
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	userID string
	closed bool
}

func (p *Peer) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

func (p *Peer) enqueue(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

type FrameHandler func(p *Peer, data json.RawMessage)

// Rooms holds websocket peers grouped by user id.
type Rooms struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Peer]struct{}
	handlers map[string]FrameHandler
	logger   *slog.Logger
}

func NewRooms(logger *slog.Logger) *Rooms {
	return &Rooms{
		rooms:    make(map[string]map[*Peer]struct{}),
		handlers: make(map[string]FrameHandler),
		logger:   logger.With("component", "rooms"),
	}
}

// Handle registers the handler for client frames of type event. It must
// be called before serving.
func (r *Rooms) Handle(event string, h FrameHandler) { r.handlers[event] = h }

// Send delivers an event to every peer in userID's room.
func (r *Rooms) Send(userID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(models.Envelope{Type: event, Data: data})
	if err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[userID]
	if len(room) == 0 {
		return ErrNoSession
	}
	for p := range room {
		if !p.enqueue(frame) {
			r.logger.Warn("peer send buffer full", "user_id", userID, "socket_id", p.SocketID)
		}
	}
	return nil
}

// Members is the number of live peers in userID's room.
func (r *Rooms) Members(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID])
}

func (r *Rooms) join(p *Peer, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.mu.Lock()
	prev := p.userID
	p.userID = userID
	p.mu.Unlock()
	if prev != "" {
		delete(r.rooms[prev], p)
	}
	if r.rooms[userID] == nil {
		r.rooms[userID] = make(map[*Peer]struct{})
	}
	r.rooms[userID][p] = struct{}{}
}

func (r *Rooms) leave(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.mu.Lock()
	p.closed = true
	close(p.send)
	user := p.userID
	p.mu.Unlock()
	if room := r.rooms[user]; room != nil {
		delete(room, p)
		if len(room) == 0 {
			delete(r.rooms, user)
		}
	}
}

// ServeHTTP upgrades the request and pumps frames until the peer leaves.
func (r *Rooms) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	p := &Peer{SocketID: uuid.NewString(), conn: conn, send: make(chan []byte, peerSendBuffer)}
	r.logger.Info("peer connected", "socket_id", p.SocketID)

	go r.writePump(p)
	r.readPump(p)
	r.leave(p)
	r.logger.Info("peer disconnected", "socket_id", p.SocketID, "user_id", p.UserID())
}

func (r *Rooms) readPump(p *Peer) {
	defer p.conn.Close()
	p.conn.SetReadLimit(1 << 20)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env models.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Type == models.EventJoin {
			var j models.JoinRoom
			if err := json.Unmarshal(env.Data, &j); err != nil || j.UserID == "" {
				r.logger.Warn("bad join frame", "socket_id", p.SocketID)
				continue
			}
			r.join(p, j.UserID)
			r.logger.Info("peer joined room", "socket_id", p.SocketID, "user_id", j.UserID, "user_type", j.UserType)
			continue
		}
		h, ok := r.handlers[env.Type]
		if !ok {
			r.logger.Debug("unhandled frame", "event", env.Type)
			continue
		}
		h(p, env.Data)
	}
}

func (r *Rooms) writePump(p *Peer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
