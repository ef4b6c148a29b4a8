// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package ihex

import "fmt"

type constError string

func (err constError) Error() string {
	return string(err)
}

const ErrChecksum = constError("bad checksum")

type ChecksumError struct {
	Line int
	Got  byte
	Want byte
}

func (e ChecksumError) Error() string {
	return fmt.Sprintf("%v at line %d: got 0x%02X, expected 0x%02X", ErrChecksum, e.Line, e.Got, e.Want)
}

func (e ChecksumError) Unwrap() error {
	return ErrChecksum
}

type ParseError struct {
	err error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("invalid record: %v", e.err)
}

func (e ParseError) Unwrap() error {
	return e.err
}

type IOError struct {
	path string
	err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("couldn't read %v: %v", e.path, e.err)
}

func (e IOError) Unwrap() error {
	return e.err
}
