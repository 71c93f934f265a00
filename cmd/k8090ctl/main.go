// Command k8090ctl is an interactive terminal client for the K8090 relay
// driver core: connect by port name or -mock, then toggle relays live with
// single-key presses.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/velleman/k8090/engine"
	"github.com/velleman/k8090/relay"
	"github.com/velleman/k8090/transport"
	"github.com/velleman/k8090/ui"
)

// cliEvents prints driver events to the terminal and tracks relay/timer
// state for PrintRelayLine.
type cliEvents struct {
	engine.NopEvents
	debug bool
	on    [8]bool
	timed [8]bool
}

func (e *cliEvents) Connected() {
	ui.Greenf("\nconnected\n")
}

func (e *cliEvents) ConnectionFailed() {
	ui.Warningf("\nconnection failed\n")
}

func (e *cliEvents) NotConnected() {
	ui.Warningf("\nnot connected\n")
}

func (e *cliEvents) Disconnected() {
	ui.Warningf("\ndisconnected\n")
}

func (e *cliEvents) RelayStatus(previous, current, timed relay.Set) {
	for i := 0; i < 8; i++ {
		e.on[i] = current.Has(i + 1)
		e.timed[i] = timed.Has(i + 1)
	}
	ui.PrintRelayLine(e.on, e.timed)
}

func (e *cliEvents) FirmwareVersion(year, week int) {
	ui.Debugf(e.debug, "firmware %d week %d\n", year, week)
}

func main() {
	var (
		port  = flag.String("port", "", "serial port name (e.g. /dev/ttyUSB0, COM3); omit to auto-detect by VID/PID")
		mock  = flag.Bool("mock", false, "use the in-process mock card instead of a real port")
		debug = flag.Bool("debug", false, "print debug trace")
	)
	flag.Parse()

	events := &cliEvents{debug: *debug}
	eng := engine.New(events, engine.DefaultConfig())
	facade := transport.NewFacade()
	portName := *port
	if *mock {
		portName = transport.MockPortName
	}
	if portName == "" {
		portName = transport.PreferredPort(transport.ListPorts())
		if portName == "" {
			fmt.Println("no K8090 detected; usage: k8090ctl -port <name> | -mock")
			os.Exit(2)
		}
		ui.Debugf(*debug, "auto-detected %s\n", portName)
	}
	facade.SetPortName(portName)

	if err := eng.Connect(facade); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer eng.Disconnect()

	ui.ClearScreen()
	fmt.Println("1-8 toggle relay, R refresh, Q quit")
	ui.DrainKeys()

	for {
		switch k := ui.ReadRelayKey(); k {
		case ui.RelayKeyQuit:
			return
		case ui.RelayKeyRefresh:
			eng.RefreshAllInfo()
		default:
			if k >= 1 && k <= 8 {
				eng.Toggle(relay.FromPosition(k))
			}
		}
	}
}
