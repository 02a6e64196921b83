package presentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/geoarkit/placer/internal/geolocation"
	"github.com/geoarkit/placer/internal/places"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrNoClients is returned by SaveFile when no page is connected to receive it.
var ErrNoClients = errors.New("no connected clients")

// Handlers receive inbound page events. They are called from a client's read
// goroutine and must not block for long.
type Handlers struct {
	OnAction   func(ActionPayload)
	OnPosition func(PositionPayload)
	OnDenied   func()
}

type hubEntity struct {
	payload   EntityPayload
	loaded    bool
	callbacks []func()
}

type client struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub is the Adapter for browser pages connected over a websocket. It keeps the
// current presentation state so a page that (re)connects is brought up to date.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	pickList []string
	entities map[EntityID]*hubEntity
	order    []EntityID
	statuses map[Channel]string
	geoOpts  *GeolocationOptionsPayload
	handlers Handlers
	attrs    EntityAttributes

	upgrader ws.Upgrader
	logger   *slog.Logger
}

// NewHub creates a Hub with no connected pages.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		entities: make(map[EntityID]*hubEntity),
		statuses: make(map[Channel]string),
		attrs:    DefaultEntityAttributes(),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// SetHandlers replaces the inbound event handlers.
func (h *Hub) SetHandlers(handlers Handlers) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = handlers
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
	}

	// replay is queued before registering so later broadcasts follow it
	h.mu.Lock()
	for _, msg := range h.replayLocked() {
		c.sendCh <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Page connected", "remote", r.RemoteAddr)
	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	h.logger.Info("Page disconnected", "remote", r.RemoteAddr)
}

// Close disconnects every page.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// replayLocked builds the messages that describe the current state, capped at
// the size of a client's send buffer.
func (h *Hub) replayLocked() [][]byte {
	var out [][]byte
	add := func(msgType string, payload any) {
		if len(out) >= sendChSize {
			return
		}
		data, err := marshalEnvelope(msgType, payload)
		if err != nil {
			h.logger.Error("Failed to encode replay message", "type", msgType, "error", err)
			return
		}
		out = append(out, data)
	}

	if h.pickList != nil {
		add(TypePickList, PickListPayload{Names: h.pickList})
	}
	if h.geoOpts != nil {
		add(TypeGeolocationOptions, *h.geoOpts)
	}
	for _, ch := range []Channel{ChannelPosition, ChannelDistance} {
		if text, ok := h.statuses[ch]; ok {
			add(TypeStatus, StatusPayload{Channel: ch, Text: text})
		}
	}
	for _, id := range h.order {
		add(TypeCreateEntity, h.entities[id].payload)
	}
	return out
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				h.logger.Warn("WebSocket write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.logger.Debug("WebSocket ping failed", "error", err)
				c.close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}
		h.handle(env)
	}
}

func (h *Hub) handle(env Envelope) {
	h.mu.Lock()
	handlers := h.handlers
	h.mu.Unlock()

	switch env.Type {
	case TypeAction:
		var p ActionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Debug("Malformed action", "error", err)
			return
		}
		if handlers.OnAction != nil {
			handlers.OnAction(p)
		}
	case TypePosition:
		var p PositionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Debug("Malformed position", "error", err)
			return
		}
		if handlers.OnPosition != nil {
			handlers.OnPosition(p)
		}
	case TypePositionDenied:
		if handlers.OnDenied != nil {
			handlers.OnDenied()
		}
	case TypeModelLoaded:
		var ref EntityRef
		if err := json.Unmarshal(env.Payload, &ref); err != nil {
			h.logger.Debug("Malformed model_loaded", "error", err)
			return
		}
		h.markLoaded(ref.ID)
	default:
		h.logger.Debug("Unknown message type", "type", env.Type)
	}
}

func (h *Hub) markLoaded(id EntityID) {
	h.mu.Lock()
	e, ok := h.entities[id]
	if !ok || e.loaded {
		h.mu.Unlock()
		return
	}
	e.loaded = true
	fns := e.callbacks
	e.callbacks = nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// broadcastLocked queues a message for every connected page. A page whose
// queue is full is disconnected; it resynchronizes on reconnect.
func (h *Hub) broadcastLocked(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	for c := range h.clients {
		select {
		case c.sendCh <- data:
		default:
			h.logger.Warn("Send buffer full, dropping page", "type", msgType)
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// SetGeolocationOptions publishes the position request policy. Pages receive
// it now and on every reconnect, and pass it to their device locator.
func (h *Hub) SetGeolocationOptions(o geolocation.Options) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := NewGeolocationOptionsPayload(o)
	h.geoOpts = &p
	if err := h.broadcastLocked(TypeGeolocationOptions, p); err != nil {
		h.logger.Error("Failed to send geolocation options", "error", err)
	}
}

// RenderPickList implements Adapter.
func (h *Hub) RenderPickList(names []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pickList = append([]string{}, names...)
	if err := h.broadcastLocked(TypePickList, PickListPayload{Names: h.pickList}); err != nil {
		h.logger.Error("Failed to send pick list", "error", err)
	}
}

// CreateEntity implements Adapter.
func (h *Hub) CreateEntity(p places.Place) (EntityID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := EntityID(uuid.NewString())
	payload := EntityPayload{
		ID:               id,
		Name:             p.Name,
		FilePath:         p.FilePath,
		Latitude:         p.Location.Latitude,
		Longitude:        p.Location.Longitude,
		EntityAttributes: h.attrs,
	}
	if err := h.broadcastLocked(TypeCreateEntity, payload); err != nil {
		return "", fmt.Errorf("create entity for %q: %w", p.Name, err)
	}
	h.entities[id] = &hubEntity{payload: payload}
	h.order = append(h.order, id)
	return id, nil
}

// SetVisible implements Adapter.
func (h *Hub) SetVisible(id EntityID, visible bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entities[id]
	if !ok {
		return fmt.Errorf("set visible %s: %w", id, ErrUnknownEntity)
	}
	e.payload.Visible = visible
	return h.broadcastLocked(TypeSetVisible, VisibilityPayload{ID: id, Visible: visible})
}

// DestroyEntity implements Adapter.
func (h *Hub) DestroyEntity(id EntityID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entities[id]; !ok {
		return fmt.Errorf("destroy %s: %w", id, ErrUnknownEntity)
	}
	delete(h.entities, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return h.broadcastLocked(TypeDestroyEntity, EntityRef{ID: id})
}

// OnLoaded implements Adapter.
func (h *Hub) OnLoaded(id EntityID, fn func()) {
	h.mu.Lock()
	e, ok := h.entities[id]
	if ok && e.loaded {
		h.mu.Unlock()
		fn()
		return
	}
	if ok {
		e.callbacks = append(e.callbacks, fn)
	}
	h.mu.Unlock()
}

// ShowStatus implements Adapter.
func (h *Hub) ShowStatus(ch Channel, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[ch] = msg
	if err := h.broadcastLocked(TypeStatus, StatusPayload{Channel: ch, Text: msg}); err != nil {
		h.logger.Error("Failed to send status", "channel", ch, "error", err)
	}
}

// SaveFile implements Adapter.
func (h *Hub) SaveFile(name string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return fmt.Errorf("save %s: %w", name, ErrNoClients)
	}
	return h.broadcastLocked(TypeSaveFile, SaveFilePayload{Name: name, Content: string(data)})
}
