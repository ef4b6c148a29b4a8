// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package util

import (
	"bufio"
	"fmt"
	"strings"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const (
	ErrNoDevice    = constError("no controller board connected")
	ErrManyDevices = constError("more than one controller board connected")
)

type SerialPort struct {
	DevPath      string
	SerialNumber string
	VID          string
	PID          string
	Product      string
}

// USBID is a USB vendor and product ID pair, lower case hex.
type USBID struct {
	VID string
	PID string
}

// ParseBridges reads "VID PID" pairs, one per line. Empty lines and
// lines starting with '#' are skipped.
func ParseBridges(s string) (map[USBID]bool, error) {
	ids := map[USBID]bool{}

	scanner := bufio.NewScanner(strings.NewReader(s))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[0]) != 4 || len(fields[1]) != 4 {
			return nil, fmt.Errorf("line %d: expected \"VID PID\", got %q", n, line)
		}

		ids[USBID{VID: strings.ToLower(fields[0]), PID: strings.ToLower(fields[1])}] = true
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// IsBridge reports whether the VID and PID of a port are among ids.
func IsBridge(ids map[USBID]bool, vid string, pid string) bool {
	return ids[USBID{VID: strings.ToLower(vid), PID: strings.ToLower(pid)}]
}
