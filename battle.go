// Bidbox Battle of Bids rooms
//
// Each room at /battle/:room carries one game. The first connection to a
// room becomes the host; everyone else is a viewer. The host drives the
// engine with typed JSON commands over the room websocket, and the hub
// broadcasts state snapshots, timer updates, and feedback events to the
// whole room.
//
// Features:
// - WebSockets per room: /battle/:room and /battle/:room/ws
// - First connection to a room becomes the host (cookie-identified, so the
//   host can reconnect and keep the role)
// - Host commands are rejected for every other client
// - Room "simulation" runs the warmup board; every other room runs the
//   full competition board
// - HEARTBEAT and VIEWER_CONNECTED messages are relayed verbatim to the
//   rest of the room; SYNC_REQUEST triggers a full-state broadcast
// - Clients on the bare /ws endpoint relay among themselves (legacy
//   display rigs that predate rooms)
// - Countdowns tick server-side, one second at a time, driven by a
//   clockwork ticker so tests can use a fake clock
// - Rooms auto-reaped after configurable idle timeout
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/bidbox/game"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string   `json:"type"`               // command or passthrough event name
	Teams    []string `json:"teams,omitempty"`    // start_game
	Team     *int     `json:"team,omitempty"`     // place_bid / claim_rebid
	Amount   int      `json:"amount,omitempty"`   // place_bid
	Question int      `json:"question,omitempty"` // select_question
	Slide    int      `json:"slide,omitempty"`    // goto_slide
	Correct  *bool    `json:"correct,omitempty"`  // judge_answer / judge_reanswer
}

// EventMessage wraps everything broadcast to the room.
type EventMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TimerPayload is the TIMER_UPDATE body.
type TimerPayload struct {
	ElementID string `json:"elementId"`
	TimeLeft  int    `json:"timeLeft"`
}

// SimpleMessage is for generic notifications ("error", "ack", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionInfoMessage is sent immediately on connect so the client knows
// what role this cookie has.
type SessionInfoMessage struct {
	Type   string `json:"type"` // "session_info"
	Room   string `json:"room"`
	IsHost bool   `json:"is_host"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type inboundMessage struct {
	client *Client
	msg    ClientMessage
	raw    json.RawMessage
}

// Hub owns one room: its clients, its engine session, and the ticker that
// drives the session's countdown. The run loop is the single goroutine
// that touches the session.
type Hub struct {
	room    string
	clients map[*Client]bool
	session *game.Session // nil for the legacy relay-only hub

	register chan *Client
	unreg    chan *Client
	inbound  chan inboundMessage
	ticks    chan uint64

	clock    clockwork.Clock
	stopTick chan struct{}
	tickGen  uint64

	mu sync.RWMutex

	createdAt    time.Time
	lastActive   time.Time
	hostPlayerID string // cookie/playerID of the host
}

func newHub(room string, clock clockwork.Clock) *Hub {
	now := time.Now()
	return &Hub{
		room:       room,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		inbound:    make(chan inboundMessage),
		ticks:      make(chan uint64),
		clock:      clock,
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			// First connection to a room becomes the host
			if h.session != nil && h.hostPlayerID == "" {
				h.hostPlayerID = c.playerID
				logf(cfg, "ROOMS: Host joined %q", h.room)
			}
			isHost := h.session != nil && c.playerID == h.hostPlayerID

			h.clients[c] = true
			h.mu.Unlock()

			c.send <- SessionInfoMessage{
				Type:   "session_info",
				Room:   h.room,
				IsHost: isHost,
			}

			// Late joiners need the current state without waiting for
			// the next change.
			if h.session != nil {
				c.send <- EventMessage{
					Type: game.EventSyncState,
					Data: h.session.Snapshot(),
				}
			}

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case im := <-h.inbound:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.mu.Unlock()

			h.handleMessage(cfg, im)
			h.reconcileTicker()

		case gen := <-h.ticks:
			if h.session != nil {
				h.session.Tick(gen)
			}
			h.reconcileTicker()
		}
	}
}

// handleMessage dispatches one client message. Passthrough events are
// relayed; everything else is a host command handed to the engine, with
// rejections sent back to the host only.
func (h *Hub) handleMessage(cfg *Config, im inboundMessage) {
	c := im.client
	msg := im.msg

	// The legacy hub has no engine; its clients relay among themselves.
	if h.session == nil {
		h.relay(c, im.raw)
		return
	}

	switch msg.Type {
	case "HEARTBEAT", "VIEWER_CONNECTED":
		h.relay(c, im.raw)
		return
	case "SYNC_REQUEST":
		h.broadcast(EventMessage{
			Type: game.EventSyncState,
			Data: h.session.Snapshot(),
		})
		return
	}

	if c.playerID != h.hostPlayerID {
		h.sendTo(c, SimpleMessage{
			Type:    "error",
			Message: "only the host may issue commands",
		})
		return
	}

	var err error

	switch msg.Type {
	case "start_game":
		err = h.session.StartGame(msg.Teams)
	case "next_slide":
		err = h.session.NextSlide()
	case "prev_slide":
		err = h.session.PrevSlide()
	case "goto_slide":
		err = h.session.GoToSlide(msg.Slide)
	case "finish_briefing":
		err = h.session.FinishBriefing()
	case "select_question":
		err = h.session.SelectQuestion(msg.Question)
	case "start_bidding":
		err = h.session.StartBidding()
	case "place_bid":
		if msg.Team == nil {
			err = game.ErrNoSuchTeam
			break
		}
		var late bool
		late, err = h.session.PlaceBid(*msg.Team, msg.Amount)
		if late {
			logf(cfg, "ROOMS: Late bid of %d by team %d accepted in %q", msg.Amount, *msg.Team, h.room)
		}
	case "no_winner":
		err = h.session.NoWinner()
	case "proceed_answering":
		err = h.session.ProceedToAnswering()
	case "judge_answer":
		if msg.Correct == nil {
			break
		}
		err = h.session.JudgeAnswer(*msg.Correct)
	case "start_rebidding":
		err = h.session.StartRebidding()
	case "claim_rebid":
		if msg.Team == nil {
			err = game.ErrNoSuchTeam
			break
		}
		err = h.session.ClaimRebid(*msg.Team)
	case "cancel_rebid":
		err = h.session.CancelRebid()
	case "judge_reanswer":
		if msg.Correct == nil {
			break
		}
		err = h.session.JudgeReAnswer(*msg.Correct)
	case "pause_timer":
		err = h.session.PauseCountdown()
	case "resume_timer":
		err = h.session.ResumeCountdown()
	case "finish_game":
		err = h.session.FinishGame()
		if err == nil {
			logf(cfg, "ROOMS: Game finished in %q", h.room)
		}
	case "reset":
		h.session.Reset()
		logf(cfg, "ROOMS: Game reset in %q", h.room)
	default:
		// ignore unknown types
	}

	if err != nil {
		logf(cfg, "ROOMS: Rejected %q in %q: %v", msg.Type, h.room, err)
		h.sendTo(c, SimpleMessage{
			Type:    "error",
			Message: err.Error(),
		})
	}
}

// PublishState, PublishTimer, and PublishEvent make the hub the engine's
// sync publisher. They only enqueue; a slow viewer is dropped, never
// waited on.
func (h *Hub) PublishState(snapshot game.Snapshot) {
	h.broadcast(EventMessage{
		Type: game.EventSyncState,
		Data: snapshot,
	})
}

func (h *Hub) PublishTimer(elementID string, timeLeft int) {
	h.broadcast(EventMessage{
		Type: game.EventTimerUpdate,
		Data: TimerPayload{
			ElementID: elementID,
			TimeLeft:  timeLeft,
		},
	})
}

func (h *Hub) PublishEvent(event string, payload any) {
	h.broadcast(EventMessage{
		Type: event,
		Data: payload,
	})
}

func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// relay forwards a raw message verbatim to every other client in the room.
func (h *Hub) relay(sender *Client, raw json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client == sender {
			continue
		}
		select {
		case client.send <- raw:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// reconcileTicker aligns the ticker goroutine with the session's countdown
// after every command and tick. The engine bumps its generation token on
// every countdown change, so a mismatch means the running ticker belongs
// to a superseded countdown.
func (h *Hub) reconcileTicker() {
	if h.session == nil {
		return
	}

	_, _, running, gen := h.session.TimerState()

	switch {
	case running && gen != h.tickGen:
		h.stopTicker()
		h.tickGen = gen
		h.stopTick = make(chan struct{})
		go h.runTicker(gen, h.stopTick)
	case !running && h.tickGen != 0:
		h.stopTicker()
	}
}

func (h *Hub) stopTicker() {
	if h.stopTick != nil {
		close(h.stopTick)
		h.stopTick = nil
	}
	h.tickGen = 0
}

func (h *Hub) runTicker(gen uint64, stop chan struct{}) {
	ticker := h.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			select {
			case h.ticks <- gen:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "bidbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// RoomManager holds a set of hubs keyed by room name, so each
// /battle/:room is its own isolated game.
type RoomManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	clock       clockwork.Clock
	idleTimeout time.Duration
}

func newRoomManager(clock clockwork.Clock, idleTimeout time.Duration) *RoomManager {
	rm := &RoomManager{
		hubs:        make(map[string]*Hub),
		clock:       clock,
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

// roomConfig picks the board for a room: "simulation" runs the warmup
// variant, everything else the full competition. Countdown durations come
// from the server flags.
func roomConfig(cfg *Config, room string) game.Config {
	gc := game.MainConfig()
	if room == "simulation" {
		gc = game.SimulationConfig()
	}

	gc.BidSeconds = cfg.bidSeconds
	gc.AnswerSeconds = cfg.answerSeconds
	gc.RebidSeconds = cfg.rebidSeconds

	return gc
}

func (rm *RoomManager) getHub(cfg *Config, room string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if hub, ok := rm.hubs[room]; ok {
		return hub
	}

	hub := newHub(room, rm.clock)
	if room != "" {
		hub.session = game.NewSession(roomConfig(cfg, room), hub)
		logf(cfg, "ROOMS: Created room %q", room)
	}
	rm.hubs[room] = hub
	go hub.run(cfg)
	return hub
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rm.idleTimeout)

		rm.mu.Lock()
		for room, hub := range rm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(rm.hubs, room)
				go hub.closeAll()
			}
		}
		rm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :room
func serveWSForManager(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		serveWS(cfg, rm, ps.ByName("room"), w, r)
	}
}

// serveLegacyWS serves the roomless /ws endpoint as a pure relay.
func serveLegacyWS(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		serveWS(cfg, rm, "", w, r)
	}
}

func serveWS(cfg *Config, rm *RoomManager, room string, w http.ResponseWriter, r *http.Request) {
	playerID := getOrSetPlayerID(w, r)
	if playerID == "" {
		http.Error(w, "unable to assign player id", http.StatusInternalServerError)
		return
	}

	hub := rm.getHub(cfg, room)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade error:", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan any, 8),
		playerID: playerID,
	}

	hub.register <- client

	go client.writePump()
	client.readPump(hub)
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var raw json.RawMessage
		if err := c.conn.ReadJSON(&raw); err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		h.inbound <- inboundMessage{
			client: c,
			msg:    msg,
			raw:    raw,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room := ps.ByName("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /battle/:room/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write([]byte(newPage("Battle of Bids", "Room: "+ps.ByName("room"))))
	}
}

// redirectDefaultRoom handles GET /battle by redirecting to the main
// competition room.
func redirectDefaultRoom(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		http.Redirect(w, r, path+"/host", http.StatusTemporaryRedirect)
	}
}

// registerBattleRooms sets up routes so that:
//   - $path                → redirects to the default room
//   - $path/:room          → HTML client
//   - $path/:room/ws       → WebSocket for that room
//   - $path/:room/qr       → PNG QR code for that room URL
//   - /ws                  → legacy roomless relay
func registerBattleRooms(cfg *Config, path string, mux *httprouter.Router) {
	rm := newRoomManager(clockwork.NewRealClock(), cfg.sessionTimeout)

	// Root path → redirect to the default room
	mux.GET(cfg.prefix+path, redirectDefaultRoom(cfg, cfg.prefix+path))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:room", serveRoomPage(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:room/ws", serveWSForManager(cfg, rm))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:room/qr", qrHandler)

	// Legacy roomless relay
	mux.GET(cfg.prefix+"/ws", serveLegacyWS(cfg, rm))
}
