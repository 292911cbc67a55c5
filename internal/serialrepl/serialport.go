//go:build serialport

// Real serial port backing, built with -tags serialport.
package serialrepl

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port wraps a real go.bug.st/serial port as an io.ReadWriter, the shape
// AwaitEntry and Serve operate over.
type Port struct {
	port serial.Port
}

// OpenPort opens the named serial port (e.g. "/dev/ttyUSB0") at baud, with a
// short read timeout so AwaitEntry's byte-at-a-time polling never blocks
// past the provisioning window.
func OpenPort(name string, baud int) (*Port, error) {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialrepl: open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialrepl: set read timeout: %w", err)
	}
	return &Port{port: p}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *Port) Close() error                { return p.port.Close() }
