package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"tikit/realtime"
	"tikit/utils"
)

type RealtimeHandler struct {
	app        core.App
	registry   *realtime.Registry
	dispatcher *realtime.Dispatcher
	notifier   *realtime.Notifier

	writeTimeout   time.Duration
	maxMessageSize int64
}

func NewRealtimeHandler(app core.App, registry *realtime.Registry, dispatcher *realtime.Dispatcher, notifier *realtime.Notifier, writeTimeout time.Duration, maxMessageSize int64) *RealtimeHandler {
	return &RealtimeHandler{
		app:            app,
		registry:       registry,
		dispatcher:     dispatcher,
		notifier:       notifier,
		writeTimeout:   writeTimeout,
		maxMessageSize: maxMessageSize,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Scanner devices and the web client connect from their own
	// origins; auth happens via token, not origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the request and pumps inbound messages
// through the dispatcher until the peer goes away.
func (h *RealtimeHandler) HandleWebSocket(e *core.RequestEvent) error {
	userID := h.authenticate(e.Request)

	ws, err := upgrader.Upgrade(e.Response, e.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return nil
	}

	connID, err := utils.GenerateCode(16)
	if err != nil {
		log.Printf("failed to assign connection id: %v", err)
		ws.Close()
		return nil
	}
	conn := realtime.NewConn(ws, h.writeTimeout)
	h.registry.Register(connID, userID, conn)

	conn.WriteJSON(map[string]any{
		"type":          "connection_established",
		"connection_id": connID,
		"authenticated": userID != "",
	})

	go h.readLoop(connID, userID, ws, conn)
	return nil
}

func (h *RealtimeHandler) readLoop(connID, userID string, ws *websocket.Conn, conn realtime.Conn) {
	defer h.registry.Unregister(connID)

	ws.SetReadLimit(h.maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(90 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error conn=%s: %v", connID, err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(90 * time.Second))

		msg, err := realtime.ParseInbound(data)
		if err != nil {
			conn.WriteJSON(map[string]any{
				"type":  "error",
				"error": err.Error(),
			})
			continue
		}

		if reply := h.dispatcher.Handle(connID, userID, msg); reply != nil {
			conn.WriteJSON(reply)
		}
	}
}

// authenticate resolves an optional auth token from the query string.
// Anonymous connections are allowed; they just cannot send messages.
func (h *RealtimeHandler) authenticate(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token == "" {
		return ""
	}
	record, err := h.app.FindAuthRecordByToken(token, core.TokenTypeAuth)
	if err != nil {
		log.Printf("websocket token rejected: %v", err)
		return ""
	}
	return record.Id
}

// GetConnectionStats - Live registry counters (admin only)
func (h *RealtimeHandler) GetConnectionStats(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.Collection().Name != core.CollectionNameSuperusers {
		return apis.NewForbiddenError("Admin access required", nil)
	}
	return e.JSON(http.StatusOK, h.registry.Stats())
}

// BroadcastMessage - Push an announcement to every connection (admin only)
func (h *RealtimeHandler) BroadcastMessage(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.Collection().Name != core.CollectionNameSuperusers {
		return apis.NewForbiddenError("Admin access required", nil)
	}

	var body struct {
		Message map[string]any `json:"message"`
	}
	if err := e.BindBody(&body); err != nil || len(body.Message) == 0 {
		return apis.NewBadRequestError("message is required", err)
	}

	delivered := h.registry.Broadcast(body.Message)
	return e.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
	})
}

// NotifyEventUpdate - Fan an event update out to its room and to peer
// instances (organizer or admin)
func (h *RealtimeHandler) NotifyEventUpdate(e *core.RequestEvent) error {
	if !canScan(e) {
		return apis.NewForbiddenError("Organizer access required", nil)
	}

	var body struct {
		EventID    string         `json:"event_id"`
		UpdateType string         `json:"update_type"`
		Data       map[string]any `json:"data"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if body.EventID == "" || body.UpdateType == "" {
		return apis.NewBadRequestError("event_id and update_type are required", nil)
	}

	h.notifier.NotifyEventUpdate(body.EventID, body.UpdateType, body.Data)
	return e.JSON(http.StatusOK, map[string]any{"success": true})
}
