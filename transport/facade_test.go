package transport

import (
	"testing"
	"time"

	"github.com/velleman/k8090/frame"
)

func TestMockRejectsNonMandatorySettings(t *testing.T) {
	m := NewMock(1)
	m.SetConfig(Config{PortName: MockPortName, Baud: 9600})
	if err := m.Open(); err == nil {
		t.Fatal("Open should refuse settings other than 19200-8-N-1")
	}
	m.SetConfig(DefaultConfig(MockPortName))
	if err := m.Open(); err != nil {
		t.Fatalf("Open with mandatory settings: %v", err)
	}
}

func TestFacadeRoutesMockByName(t *testing.T) {
	fa := NewFacade()
	fa.SetMockSeed(7)
	fa.SetPortName(MockPortName)
	if !fa.IsMock() {
		t.Fatal("IsMock should report true for the reserved port name")
	}
	if err := fa.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fa.Close()

	// A firmware query through the façade should produce one valid
	// response frame from the mock card behind it.
	req := frame.Encode(0x71, 0, 0, 0)
	if _, err := fa.Write(req[:]); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var raw []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for len(raw) < frame.Len {
		if time.Now().After(deadline) {
			t.Fatalf("timed out; got %d bytes", len(raw))
		}
		n, err := fa.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		raw = append(raw, buf[:n]...)
	}
	f, err := frame.Decode(raw[:frame.Len])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Cmd != 0x71 || f.Param1 != 18 || f.Param2 != 26 {
		t.Fatalf("response = %+v, want firmware 18/26", f)
	}
}

func TestFacadeCachesSettingsAcrossSwitch(t *testing.T) {
	fa := NewFacade()
	fa.SetMockSeed(9)
	fa.SetConfig(Config{PortName: MockPortName, Baud: 9600})
	if err := fa.Open(); err == nil {
		fa.Close()
		t.Fatal("cached non-mandatory settings should be re-applied and rejected by the mock")
	}
	fa.SetConfig(DefaultConfig(MockPortName))
	if err := fa.Open(); err != nil {
		t.Fatalf("Open after restoring mandatory settings: %v", err)
	}
	fa.Close()
}
