// Copyright (C) 2023 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

//go:build linux || windows

package util

import (
	"fmt"
	"os"

	"github.com/tillitis/gccverify/internal/data"
	"go.bug.st/serial/enumerator"
)

// DetectSerialPort returns the device path of the one connected board
// with a known USB serial bridge.
func DetectSerialPort(verbose bool) (string, error) {
	ports, err := GetSerialPorts(true)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		if verbose {
			fmt.Fprintf(os.Stderr, "No controller serial ports detected. You may specify a known device path using --port.\n")
		}
		return "", ErrNoDevice
	}
	if len(ports) > 1 {
		if verbose {
			fmt.Fprintf(os.Stderr, "Detected %d controller serial ports:\n", len(ports))
			for _, p := range ports {
				fmt.Fprintf(os.Stderr, "%s (%s:%s) with serial number %s\n", p.DevPath, p.VID, p.PID, p.SerialNumber)
			}
			fmt.Fprintf(os.Stderr, "Please choose one of the above by using the --port flag.\n")
		}
		return "", ErrManyDevices
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Auto-detected serial port %s\n", ports[0].DevPath)
	}
	return ports[0].DevPath, nil
}

// GetSerialPorts lists USB serial ports, only those with a known
// bridge if onlyKnown is set.
func GetSerialPorts(onlyKnown bool) ([]SerialPort, error) {
	var ports []SerialPort

	bridges, err := ParseBridges(data.SerialBridges)
	if err != nil {
		return nil, fmt.Errorf("serial bridge list: %w", err)
	}

	portDetails, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("GetDetailedPortsList: %w", err)
	}

	for _, port := range portDetails {
		if !port.IsUSB {
			continue
		}
		if onlyKnown && !IsBridge(bridges, port.VID, port.PID) {
			continue
		}

		ports = append(ports, SerialPort{
			DevPath:      port.Name,
			SerialNumber: port.SerialNumber,
			VID:          port.VID,
			PID:          port.PID,
			Product:      port.Product,
		})
	}

	return ports, nil
}
