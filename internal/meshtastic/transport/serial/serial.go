// Package serial opens the gateway's local Meshtastic radio over a
// serial device, per spec §6 ("one serial device path... opened
// read/write at the library's default baud").
package serial

import (
	"go.bug.st/serial"
)

// DefaultBaudRate is the baud rate Meshtastic's USB-serial firmware
// interface uses.
const DefaultBaudRate = 115200

// Connect opens port at baudRate (DefaultBaudRate if zero).
func Connect(port string, baudRate int) (serial.Port, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{BaudRate: baudRate}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AvailablePorts lists serial device paths the host currently exposes,
// useful for a "pick your radio" prompt during first-run setup.
func AvailablePorts() ([]string, error) {
	return serial.GetPortsList()
}
