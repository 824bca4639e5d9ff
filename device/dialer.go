package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the HC-05 AT command mode speed.
const DefaultBaudRate = 38400

// Package level hooks over go.bug.st/serial so tests can replace them.
var (
	openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
		return serial.Open(name, mode)
	}
	detailedPorts = enumerator.GetDetailedPortsList
)

// SerialDialer opens a module over a local serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the OS name of the port ("/dev/rfcomm0", "COM5").
	PortName string
	// BaudRate is used when Mode is nil; DefaultBaudRate when zero.
	BaudRate int
	// Mode overrides the 8N1 line settings entirely.
	Mode *serial.Mode
	// ReadTimeout bounds a single driver read; DefaultTimeout when zero.
	ReadTimeout time.Duration
}

// Dial opens the port and applies the read timeout.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("device: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("device: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := openPort(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return port, nil
}

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListPorts enumerates the serial ports available to open.
func ListPorts() ([]PortInfo, error) {
	details, err := detailedPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, p := range details {
		ports = append(ports, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return ports, nil
}
