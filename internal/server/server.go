// Package server exposes the K8090 driver-level API over HTTP, with driver
// events fanned out to WebSocket subscribers.
package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/velleman/k8090/command"
	"github.com/velleman/k8090/relay"
)

// Server is the HTTP + WebSocket control layer in front of one Session.
type Server struct {
	mux  *http.ServeMux
	sess *Session
	hub  *EventHub
}

// New constructs a Server with its own Session and EventHub.
func New() *Server {
	hub := NewEventHub()
	s := &Server{
		mux:  http.NewServeMux(),
		sess: NewSession(hub),
		hub:  hub,
	}
	s.routes()
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)

	s.mux.HandleFunc("/api/relay/on", s.handleRelaySet(s.sess.Engine().SwitchOn))
	s.mux.HandleFunc("/api/relay/off", s.handleRelaySet(s.sess.Engine().SwitchOff))
	s.mux.HandleFunc("/api/relay/toggle", s.handleRelaySet(s.sess.Engine().Toggle))

	s.mux.HandleFunc("/api/button-mode", s.handleButtonMode)

	s.mux.HandleFunc("/api/timer/start", s.handleTimer(s.sess.Engine().StartTimer))
	s.mux.HandleFunc("/api/timer/set", s.handleTimer(s.sess.Engine().SetTimerDelay))
	s.mux.HandleFunc("/api/timer/query", s.handleTimerQuery)

	s.mux.HandleFunc("/api/query/relay", s.handleNoArgQuery(s.sess.Engine().QueryRelayStatus))
	s.mux.HandleFunc("/api/query/button-mode", s.handleNoArgQuery(s.sess.Engine().QueryButtonModes))
	s.mux.HandleFunc("/api/query/jumper", s.handleNoArgQuery(s.sess.Engine().QueryJumperStatus))
	s.mux.HandleFunc("/api/query/firmware", s.handleNoArgQuery(s.sess.Engine().QueryFirmwareVersion))
	s.mux.HandleFunc("/api/reset-factory-defaults", s.handleNoArgQuery(s.sess.Engine().ResetFactoryDefaults))
	s.mux.HandleFunc("/api/refresh-all", s.handleNoArgQuery(s.sess.Engine().RefreshAllInfo))

	s.mux.HandleFunc("/api/pending", s.handlePending)

	s.mux.HandleFunc("/ws/events", s.handleWS)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ConnectRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := s.sess.Connect(req.Port, req.Mock); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, ConnectResponse{Connected: true, Port: s.sess.PortName()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.sess.Disconnect()
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleRelaySet(apply func(relay.Set)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req RelaySetRequest
		if err := s.readJSON(r, &req); err != nil {
			s.writeJSON(w, 400, APIError{Error: err.Error()})
			return
		}
		apply(relay.FromPositions(req.Relays))
		s.writeJSON(w, 200, map[string]bool{"ok": true})
	}
}

func (s *Server) handleButtonMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ButtonModeRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	s.sess.Engine().SetButtonMode(
		relay.FromPositions(req.Momentary),
		relay.FromPositions(req.Toggle),
		relay.FromPositions(req.Timed),
	)
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleTimer(apply func(relay.Set, uint16)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req TimerRequest
		if err := s.readJSON(r, &req); err != nil {
			s.writeJSON(w, 400, APIError{Error: err.Error()})
			return
		}
		apply(relay.FromPositions(req.Relays), uint16(req.DelaySeconds))
		s.writeJSON(w, 200, map[string]bool{"ok": true})
	}
}

func (s *Server) handleTimerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	relays := parseIntList(q.Get("relays"))
	set := relay.FromPositions(relays)
	if q.Get("remaining") == "true" {
		s.sess.Engine().QueryRemainingTimerDelay(set)
	} else {
		s.sess.Engine().QueryTotalTimerDelay(set)
	}
	s.writeJSON(w, 200, map[string]bool{"ok": true})
}

func (s *Server) handleNoArgQuery(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn()
		s.writeJSON(w, 200, map[string]bool{"ok": true})
	}
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("id")
	id, ok := parseCommandID(name)
	if !ok {
		s.writeJSON(w, 400, APIError{Error: "unknown command id " + name})
		return
	}
	s.writeJSON(w, 200, PendingResponse{Count: s.sess.Engine().PendingCommandCount(id)})
}

func parseIntList(csv string) []int {
	if csv == "" {
		return nil
	}
	var out []int
	n, neg, have := 0, false, false
	flush := func() {
		if have {
			if neg {
				n = -n
			}
			out = append(out, n)
		}
		n, neg, have = 0, false, false
	}
	for _, r := range csv {
		switch {
		case r == ',':
			flush()
		case r == '-':
			neg = true
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
			have = true
		}
	}
	flush()
	return out
}

func parseCommandID(name string) (command.ID, bool) {
	for _, id := range []command.ID{
		command.RelayOn, command.RelayOff, command.ToggleRelay, command.QueryRelay,
		command.SetButtonMode, command.QueryButtonMode, command.StartTimer, command.SetTimer,
		command.QueryTimer, command.ResetFactoryDefaults, command.QueryJumperStatus,
		command.QueryFirmwareVersion,
	} {
		if id.String() == name {
			return id, true
		}
	}
	return command.None, false
}

// upgrader upgrades HTTP requests to WebSockets. CheckOrigin returns true
// to keep local development frictionless; this is a local, single-user
// service.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := s.hub.Add(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Remove(client)
			return
		}
	}
}
