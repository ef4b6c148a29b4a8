// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package handshake

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const ErrChannel = constError("serial channel error")

// ChannelError is a failure talking over an open port.
type ChannelError struct {
	op  string
	err error
}

func (e ChannelError) Error() string {
	return fmt.Sprintf("%v: %v: %v", ErrChannel, e.op, e.err)
}

func (e ChannelError) Unwrap() []error {
	return []error{ErrChannel, e.err}
}

// ConnError is a failure opening the port.
type ConnError struct {
	devPath string
	err     error
}

func (e ConnError) Error() string {
	return fmt.Sprintf("could not open device: %v: %v", e.devPath, e.err)
}

func (e ConnError) Unwrap() []error {
	return []error{ErrChannel, e.err}
}

// Hint turns a port error into advice for the user, or returns an
// empty string.
func Hint(err error) string {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return ""
	}

	switch portErr.Code() {
	case serial.PortBusy:
		return "Serial port is busy. Please check USB connection and exit all serial monitoring terminals."
	case serial.PortNotFound:
		return "Serial port could not be found. Please check USB connection."
	case serial.PermissionDenied:
		return "Permission denied on serial port. Check that your user may access it."
	default:
		return ""
	}
}
