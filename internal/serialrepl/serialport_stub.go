//go:build !serialport

package serialrepl

import "fmt"

// Port is available when built with -tags serialport.
type Port struct{}

// OpenPort is available when built with -tags serialport.
func OpenPort(name string, baud int) (*Port, error) {
	return nil, fmt.Errorf("serialrepl: real serial port not enabled; build with -tags serialport")
}

func (p *Port) Read(b []byte) (int, error)  { return 0, fmt.Errorf("serialrepl: real serial port not enabled") }
func (p *Port) Write(b []byte) (int, error) { return 0, fmt.Errorf("serialrepl: real serial port not enabled") }
func (p *Port) Close() error                { return nil }
