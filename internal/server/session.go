package server

import (
	"fmt"
	"sync"

	"github.com/velleman/k8090/engine"
	"github.com/velleman/k8090/transport"
)

// Session is the mutex-guarded façade-plus-engine handle the HTTP layer
// drives: one device, one owner, guarded by a mutex.
type Session struct {
	mu      sync.Mutex
	facade  *transport.Facade
	engine  *engine.Engine
	hub     *EventHub
	portReq string
}

// NewSession constructs a Session with its engine wired to hub as its
// event sink.
func NewSession(hub *EventHub) *Session {
	return &Session{
		facade: transport.NewFacade(),
		engine: engine.New(hub, engine.DefaultConfig()),
		hub:    hub,
	}
}

// Engine exposes the underlying engine for the relay/mode/timer/query
// handlers, which are thin pass-throughs.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Connect opens portName (or the mock, if mock is true) and starts the
// engine's connect sequence. An empty portName falls back to the first
// enumerated port whose VID/PID matches the K8090.
func (s *Session) Connect(portName string, mock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mock {
		portName = transport.MockPortName
	}
	if portName == "" {
		portName = transport.PreferredPort(transport.ListPorts())
	}
	if portName == "" {
		return fmt.Errorf("server: no port given and no K8090 detected")
	}
	s.facade.SetPortName(portName)
	s.portReq = portName
	if err := s.engine.Connect(s.facade); err != nil {
		return err
	}
	return nil
}

// Disconnect hard-stops the engine.
func (s *Session) Disconnect() {
	s.engine.Disconnect()
}

// IsConnected reports the engine's connection state.
func (s *Session) IsConnected() bool { return s.engine.IsConnected() }

// PortName returns the last-requested port name.
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portReq
}
