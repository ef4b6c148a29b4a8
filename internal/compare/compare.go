// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package compare decides whether a program memory dump holds the
// bytes of a reference image.
package compare

import (
	"fmt"

	"github.com/tillitis/gccverify/internal/ihex"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const ErrByteMismatch = constError("device firmware does not match reference image")

// MismatchError carries the absolute address of the first byte that
// differs.
type MismatchError struct {
	Address  int
	Line     int
	Got      byte
	Expected byte
	Missing  bool // dump ends before Address
}

func (e MismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%v at byte %d: dump too short (reference line %d)", ErrByteMismatch, e.Address, e.Line)
	}

	return fmt.Sprintf("%v at byte %d: got 0x%02X, expected 0x%02X (reference line %d)", ErrByteMismatch, e.Address, e.Got, e.Expected, e.Line)
}

func (e MismatchError) Unwrap() error {
	return ErrByteMismatch
}

type Report struct {
	Records int // data records compared
	Bytes   int // bytes compared

	// Reference lines with bad checksums seen during the pass. These
	// are defects in the library file, not in the device.
	BadLines []ihex.ChecksumError
}

// Compare walks every data record of the reference and checks that
// dump has the same byte at each record address. It stops at the
// first difference.
func Compare(lines []ihex.Line, dump []byte) (Report, error) {
	var report Report

	for _, line := range lines {
		if line.Type != ihex.Data {
			continue
		}

		if !line.ChecksumValid() {
			report.BadLines = append(report.BadLines, ihex.ChecksumError{
				Line: line.Number,
				Got:  line.Checksum,
				Want: ihex.Checksum(line.Record),
			})
		}

		for i, want := range line.Data {
			addr := int(line.Address) + i

			if addr >= len(dump) {
				return report, MismatchError{Address: addr, Line: line.Number, Expected: want, Missing: true}
			}

			if dump[addr] != want {
				return report, MismatchError{Address: addr, Line: line.Number, Got: dump[addr], Expected: want}
			}

			report.Bytes++
		}

		if len(line.Data) > 0 {
			report.Records++
		}
	}

	return report, nil
}
