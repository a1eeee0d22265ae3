package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients (the views)
//   - Per-client write pumps so one slow client doesn't block others
//   - Per-client read pumps that turn inbound gesture envelopes into Events
//   - A broadcaster loop that reads session broadcasts and fans out
//
// Design constraints:
//   - The Session remains daemon-owned; never expose it to other goroutines.
//   - Initial state snapshot on connect must go through the daemon loop.
//   - Slow clients must be disconnected if they can't keep up.
//
// Notes:
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The initial message on connect is "state_init" with the snapshot in data.
//   - Inbound frames use the IPC event envelope: {type, data}.
//
// ============================================================================

// wsSettingsData is the JSON form of MixerSettings.
type wsSettingsData struct {
	IsMixer      bool                `json:"is_mixer"`
	MixerName    string              `json:"mixer_name"`
	Logo         string              `json:"logo,omitempty"`
	LiquidNames  [liquidCount]string `json:"liquid_names"`
	LiquidColors [liquidCount]string `json:"liquid_colors"`
}

func newWSSettingsData(s MixerSettings) *wsSettingsData {
	return &wsSettingsData{
		IsMixer:      s.IsMixer,
		MixerName:    s.MixerName,
		Logo:         s.LogoAsset(),
		LiquidNames:  s.LiquidNames,
		LiquidColors: s.LiquidColors,
	}
}

// wsMessageSnapshot is the JSON `data` payload for "state_init" and GET /api/state.
type wsMessageSnapshot struct {
	Settings *wsSettingsData `json:"settings"` // null until the first settings read
	IsMixer  bool            `json:"is_mixer"`

	Control ControlView `json:"control"`

	TimespanMS    int  `json:"timespan_ms"`
	TimespanKnown bool `json:"timespan_known"`
	SliderHeld    bool `json:"slider_held"`

	Online        bool       `json:"online"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	UpdateVersion int `json:"update_version"`
}

func newWSMessageSnapshot(snap StateSnapshot) wsMessageSnapshot {
	msg := wsMessageSnapshot{
		IsMixer:       snap.IsMixer(),
		Control:       snap.Control,
		TimespanMS:    snap.TimespanMS,
		TimespanKnown: snap.TimespanKnown,
		SliderHeld:    snap.SliderHeld,
		Online:        snap.Online,
		UpdateVersion: snap.UpdateVersion,
	}
	if snap.SettingsKnown {
		msg.Settings = newWSSettingsData(snap.Settings)
	}
	if !snap.LastSuccessAt.IsZero() {
		t := snap.LastSuccessAt.UTC()
		msg.LastSuccessAt = &t
	}
	return msg
}

// wsSlicesChangedData is the JSON `data` payload for "slices_changed".
type wsSlicesChangedData struct {
	ControlView
	FromUser bool `json:"from_user"`
}

// wsTimespanChangedData is the JSON `data` payload for "timespan_changed".
type wsTimespanChangedData struct {
	TimespanMS int  `json:"timespan_ms"`
	FromUser   bool `json:"from_user"`
}

// wsOnlineChangedData is the JSON `data` payload for "online_changed".
type wsOnlineChangedData struct {
	Online        bool       `json:"online"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// wsWriteFailedData is the JSON `data` payload for "write_failed".
type wsWriteFailedData struct {
	Field           Field  `json:"field"`
	Value           int    `json:"value"`
	Origin          string `json:"origin,omitempty"`
	Kind            string `json:"kind"`
	Error           string `json:"error"`
	ReloadSuggested bool   `json:"reload_suggested"`
}

// wsNoticeData is the JSON `data` payload for "notice" and "error".
type wsNoticeData struct {
	Message string `json:"message"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // optional timestamp; zero means "omit" or use now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	// Configuration
	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	// If zero, a conservative default is used.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	// If zero, a conservative default is used.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				if !c.trySend(msg) {
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		c.closeSend()

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn

	// send is written by the hub, the handler and the read pump. sendMu
	// guards it against the hub closing it mid-send.
	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// events receives gestures parsed from inbound frames. Nil for read-only clients.
	events chan<- Event
	// gestures is touched only by readPump.
	gestures gestureTracker

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, events chan<- Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// trySend queues msg without blocking. It returns false if the queue is full
// or the hub has already closed it.
func (c *Client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

const (
	writeWait = 5 * time.Second

	// gestureReleaseTimeout bounds the wait to release a disconnected
	// view's hold.
	gestureReleaseTimeout = 2 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// maxInboundFrame bounds gesture frames from views.
	maxInboundFrame = 4 << 10
)

// wsSlicesCoalesceWindow is the maximum time window during which bursty
// slices updates (a drag in progress) are coalesced (latest-wins) before
// broadcasting to clients.
const wsSlicesCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping error", err)
				return
			}
		}
	}
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+")", "remote_addr", c.remoteAddr, "error", err)
}

// readPump reads gesture frames from the view and forwards them to the
// daemon loop. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxInboundFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", "read error", err)
			c.releaseGestures()
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleInbound(data)
	}
}

// handleInbound parses one frame and queues it for the daemon loop. Errors
// are reported back to this client only.
func (c *Client) handleInbound(data []byte) {
	if c.events == nil {
		return
	}

	ev, err := UnmarshalEvent(data)
	if err != nil {
		c.logger.Debug("ws inbound frame rejected", "remote_addr", c.remoteAddr, "error", err)
		c.reply("error", wsNoticeData{Message: err.Error()})
		return
	}

	select {
	case c.events <- ev:
		c.gestures.observe(ev)
	default:
		c.logger.Warn("ws inbound gesture dropped, event queue full", "remote_addr", c.remoteAddr)
		c.reply("error", wsNoticeData{Message: "event queue full"})
	}
}

// releaseGestures ends a slider hold or drag this view left open. Unlike
// inbound frames it waits for room in the event queue.
func (c *Client) releaseGestures() {
	if c.events == nil || !c.gestures.open() {
		return
	}
	if err := enqueueEvent(context.Background(), c.events, PointerRelease{}, gestureReleaseTimeout); err != nil {
		c.logger.Error("ws gesture release lost", "remote_addr", c.remoteAddr, "error", err)
		return
	}
	c.gestures = gestureTracker{}
	c.logger.Info("ws client left a gesture open, released", "remote_addr", c.remoteAddr)
}

func (c *Client) reply(typ string, data any) {
	now := time.Now().UTC()
	msg, err := json.Marshal(envelope{Type: typ, Ts: &now, Data: data})
	if err != nil {
		return
	}
	_ = c.trySend(msg)
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot and for inbound gestures.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a mux,
// start hub.Run(ctx), and start the broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	hub := NewHub(logger, cfg.Hub)
	return &Server{
		logger: logger,
		hub:    hub,
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// NOTE: Add origin checks here if views are ever served cross-site.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.events, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// The pumps must not use r.Context(): net/http cancels it when the
	// handler returns.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	now := time.Now().UTC()
	initMsg, mErr := json.Marshal(envelope{
		Type: "state_init",
		Ts:   &now,
		Data: newWSMessageSnapshot(snap),
	})
	if mErr != nil {
		s.logger.Warn("ws state_init marshal failed", "error", mErr)
		return
	}

	// Enqueue init message; if client is already slow, disconnect.
	if !client.trySend(initMsg) {
		s.hub.unregister <- client
	}
}

// requestSnapshot asks the daemon loop for a snapshot and waits for the reply.
// Without a deadline on ctx it waits at most one second.
func requestSnapshot(ctx context.Context, events chan<- Event) (StateSnapshot, error) {
	if events == nil {
		return StateSnapshot{}, errors.New("no event queue")
	}
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case events <- RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads session broadcasts, marshals them, and broadcasts
// them to all hub clients. Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// Rate-limit bursty slices updates: flush the latest pending one at most
	// once every wsSlicesCoalesceWindow, even if updates keep arriving.
	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now()
		}
		ts = ts.UTC()

		msg, err := json.Marshal(envelope{
			Type: ev.Type,
			Ts:   &ts,
			Data: ev.Data,
		})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		send(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer == nil {
			timerCh = nil
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerCh = nil
		timer = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			// Latest-wins for slices; the window is not extended by new updates.
			if ev.Type == "slices_changed" {
				copyEv := ev
				pending = &copyEv
				if timer == nil {
					timer = time.NewTimer(wsSlicesCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			// Anything else: flush pending slices first to keep ordering.
			flushPending()
			stopTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastSettingsChanged:
		return wsOutboundEvent{
			Type: "settings_changed",
			Data: newWSSettingsData(ev.Settings),
			At:   ev.At,
		}, true

	case BroadcastSlicesChanged:
		return wsOutboundEvent{
			Type: "slices_changed",
			Data: wsSlicesChangedData{ControlView: ev.View, FromUser: ev.FromUser},
			At:   ev.At,
		}, true

	case BroadcastTimespanChanged:
		return wsOutboundEvent{
			Type: "timespan_changed",
			Data: wsTimespanChangedData{TimespanMS: ev.TimespanMS, FromUser: ev.FromUser},
			At:   ev.At,
		}, true

	case BroadcastOnlineChanged:
		data := wsOnlineChangedData{Online: ev.Online}
		if !ev.LastSuccessAt.IsZero() {
			t := ev.LastSuccessAt.UTC()
			data.LastSuccessAt = &t
		}
		return wsOutboundEvent{Type: "online_changed", Data: data, At: ev.At}, true

	case BroadcastWriteFailed:
		return wsOutboundEvent{
			Type: "write_failed",
			Data: wsWriteFailedData{
				Field:           ev.Command.Field,
				Value:           ev.Command.Value,
				Origin:          ev.Command.Origin,
				Kind:            ev.Kind.String(),
				Error:           ev.Err,
				ReloadSuggested: true,
			},
			At: ev.At,
		}, true

	case BroadcastNotice:
		return wsOutboundEvent{
			Type: "notice",
			Data: wsNoticeData{Message: ev.Message},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
