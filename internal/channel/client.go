// Package channel maintains the rider's single long-lived event channel
// to the server.
//
// A Client owns at most one websocket connection at a time. Run dials,
// joins the rider's room, pumps frames and redials with exponential
// backoff until its context ends; it may only be running once per
// Client. Events that arrive while disconnected are lost, so consumers
// must not treat a missing event as an error.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/observability"
)

var (
	ErrAlreadyRunning = errors.New("channel: client already running")
	ErrSendBufferFull = errors.New("channel: send buffer full")
)

type Config struct {
	URL    string
	Header http.Header

	// UserID returns the rider to join on every connect. An empty id
	// skips the join.
	UserID   func() string
	UserType string

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int

	Dialer *websocket.Dialer
	Clock  clock.Clock
}

func (c *Config) defaults() {
	if c.UserType == "" {
		c.UserType = "user"
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.UserID == nil {
		c.UserID = func() string { return "" }
	}
}

type Client struct {
	cfg    Config
	logger *slog.Logger
	bus    *Bus
	out    chan []byte

	running   atomic.Bool
	connected atomic.Bool
	joins     atomic.Int64
}

func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "channel"),
		bus:    NewBus(),
		out:    make(chan []byte, cfg.SendBuffer),
	}
}

// On registers a handler for a server event or for the local
// "connect"/"disconnect" lifecycle events.
func (c *Client) On(event string, h Handler) func() { return c.bus.On(event, h) }

// Emit queues an event for delivery without waiting for an
// acknowledgement. Frames queued while disconnected go out after the
// next successful join.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(models.Envelope{Type: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) Connected() bool { return c.connected.Load() }

// Joins counts room joins sent over the client's lifetime.
func (c *Client) Joins() int64 { return c.joins.Load() }

// Run keeps the channel connected until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	backoff := c.cfg.ReconnectMin
	for attempt := 1; ; attempt++ {
		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err == nil {
			backoff = c.cfg.ReconnectMin
			attempt = 0
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		observability.ChannelReconnects.Inc()
		c.logger.Warn("channel down; backing off", "error", err, "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-c.cfg.Clock.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// serve owns one connection: join, then pump until either side fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	if err := c.join(conn); err != nil {
		return err
	}

	c.connected.Store(true)
	observability.ChannelConnected.Set(1)
	c.logger.Info("channel connected", "url", c.cfg.URL)
	c.bus.Dispatch(models.EventConnect, nil)
	defer func() {
		c.connected.Store(false)
		observability.ChannelConnected.Set(0)
		c.logger.Info("channel disconnected")
		c.bus.Dispatch(models.EventDisconnect, nil)
	}()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(conn, stop)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		case <-stop:
		}
	}()

	err := c.readPump(conn)
	close(stop)
	_ = conn.Close()
	wg.Wait()
	return err
}

func (c *Client) join(conn *websocket.Conn) error {
	userID := c.cfg.UserID()
	if userID == "" {
		c.logger.Warn("user id unknown; room join skipped")
		return nil
	}
	data, err := json.Marshal(models.JoinRoom{UserID: userID, UserType: c.cfg.UserType})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(models.Envelope{Type: models.EventJoin, Data: data})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	c.joins.Add(1)
	c.logger.Info("joined room", "user_id", userID)
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("channel read error", "error", err)
			}
			return err
		}
		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		observability.ChannelEvents.WithLabelValues(env.Type).Inc()
		if n := c.bus.Dispatch(env.Type, env.Data); n == 0 {
			c.logger.Debug("no handler for event", "event", env.Type)
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ping := c.cfg.Clock.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-stop:
			return
		case frame := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("channel write failed; frame dropped", "error", err)
				_ = conn.Close()
				return
			}
		case <-ping.C():
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
