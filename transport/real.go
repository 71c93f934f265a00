package transport

import (
	"fmt"
	"time"

	goserial "github.com/tarm/serial"
)

// Real wraps github.com/tarm/serial, configured for the K8090's mandatory
// 19200-8-N-1.
type Real struct {
	cfg  Config
	port *goserial.Port
}

// NewReal constructs a Real port for cfg. The underlying serial port is not
// opened until Open is called.
func NewReal(cfg Config) *Real {
	return &Real{cfg: cfg}
}

// Open opens the underlying serial device.
func (r *Real) Open() error {
	r.cfg.applyDefaults()
	if r.cfg.PortName == "" {
		return fmt.Errorf("transport: missing port name")
	}
	parity := goserial.ParityNone
	switch r.cfg.Parity {
	case "E":
		parity = goserial.ParityEven
	case "O":
		parity = goserial.ParityOdd
	}
	stopBits := goserial.Stop1
	if r.cfg.StopBits == 2 {
		stopBits = goserial.Stop2
	}
	sc := &goserial.Config{
		Name:        r.cfg.PortName,
		Baud:        r.cfg.Baud,
		Parity:      parity,
		Size:        byte(r.cfg.DataBits),
		StopBits:    stopBits,
		ReadTimeout: 300 * time.Millisecond,
	}
	port, err := goserial.OpenPort(sc)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", r.cfg.PortName, err)
	}
	r.port = port
	return nil
}

// Close closes the underlying serial device.
func (r *Real) Close() error {
	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	return err
}

// Read implements Port.
func (r *Real) Read(p []byte) (int, error) {
	if r.port == nil {
		return 0, fmt.Errorf("transport: read on closed port")
	}
	return r.port.Read(p)
}

// Write implements Port.
func (r *Real) Write(p []byte) (int, error) {
	if r.port == nil {
		return 0, fmt.Errorf("transport: write on closed port")
	}
	return r.port.Write(p)
}
