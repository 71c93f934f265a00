package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/velleman/k8090/relay"
)

// wsMessage is the minimal event envelope sent over WebSocket: the
// frontend switches on Type and treats Data as an arbitrary JSON object.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// wsClient wraps a websocket connection with a per-connection write mutex;
// gorilla/websocket requires writes not be concurrent on the same Conn.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// EventHub is the engine's event sink (it implements engine.Events) and,
// simultaneously, the broadcast fan-out to every subscribed WebSocket
// client.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewEventHub constructs an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*wsClient]struct{})}
}

// Add registers a connection with the hub.
func (h *EventHub) Add(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Remove unregisters and closes a client connection.
func (h *EventHub) Remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// broadcast marshals msg once and fans it out to every connected client.
// Failures are ignored; the read-loop in handleWS notices disconnects and
// removes the client, keeping the broadcast path itself fast.
func (h *EventHub) broadcast(msg wsMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.send(b)
	}
}

// The methods below implement engine.Events, translating each typed event
// into a wsMessage broadcast to every subscriber.

func (h *EventHub) Connected()        { h.broadcast(wsMessage{Type: "connected"}) }
func (h *EventHub) ConnectionFailed() { h.broadcast(wsMessage{Type: "connection_failed"}) }
func (h *EventHub) NotConnected()     { h.broadcast(wsMessage{Type: "not_connected"}) }
func (h *EventHub) Disconnected()     { h.broadcast(wsMessage{Type: "disconnected"}) }

func (h *EventHub) RelayStatus(previous, current, timed relay.Set) {
	h.broadcast(wsMessage{Type: "relay_status", Data: relayStatusDTO{
		Previous: previous.Positions(),
		Current:  current.Positions(),
		Timed:    timed.Positions(),
	}})
}

func (h *EventHub) ButtonStatus(state, pressed, released relay.Set) {
	h.broadcast(wsMessage{Type: "button_status", Data: buttonStatusDTO{
		State:    state.Positions(),
		Pressed:  pressed.Positions(),
		Released: released.Positions(),
	}})
}

func (h *EventHub) TotalTimerDelay(r relay.Set, seconds uint16) {
	h.broadcast(wsMessage{Type: "total_timer_delay", Data: timerDelayDTO{Relays: r.Positions(), Seconds: seconds}})
}

func (h *EventHub) RemainingTimerDelay(r relay.Set, seconds uint16) {
	h.broadcast(wsMessage{Type: "remaining_timer_delay", Data: timerDelayDTO{Relays: r.Positions(), Seconds: seconds}})
}

func (h *EventHub) ButtonModes(momentary, toggle, timed relay.Set) {
	h.broadcast(wsMessage{Type: "button_modes", Data: buttonModesDTO{
		Momentary: momentary.Positions(),
		Toggle:    toggle.Positions(),
		Timed:     timed.Positions(),
	}})
}

func (h *EventHub) JumperStatus(on bool) {
	h.broadcast(wsMessage{Type: "jumper_status", Data: map[string]bool{"on": on}})
}

func (h *EventHub) FirmwareVersion(year, week int) {
	h.broadcast(wsMessage{Type: "firmware_version", Data: map[string]int{"year": year, "week": week}})
}
