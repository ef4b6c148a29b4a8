// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package handshake

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Platform is the kind of board the controller firmware runs on.
type Platform string

const (
	// Arduino boards reboot when DTR/RTS toggle and need a reset
	// before they listen for the token.
	Arduino Platform = "arduino"
	// Generic boards are assumed to be listening already.
	Generic Platform = "generic"
)

const DefaultSpeed = 9600

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(s)); p {
	case Arduino, Generic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q, expected %q or %q", s, Arduino, Generic)
	}
}

func (p Platform) NeedsReset() bool {
	return p == Arduino
}

// Mode is 8N1 at the given speed, DefaultSpeed if speed is 0.
func (p Platform) Mode(speed int) *serial.Mode {
	if speed == 0 {
		speed = DefaultSpeed
	}

	return &serial.Mode{
		BaudRate: speed,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens the serial port at devPath set up for platform p.
func Open(devPath string, p Platform, speed int) (Port, error) {
	port, err := serial.Open(devPath, p.Mode(speed))
	if err != nil {
		return nil, ConnError{devPath: devPath, err: err}
	}

	return port, nil
}
