// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package ihex reads Intel HEX reference images, one record per line:
//
//	:BBAAAATT[DD...]CC
//
// BB is the byte count, AAAA the 16-bit address, TT the record type,
// DD the data bytes and CC the checksum, all big-endian hex.
package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

type RecordType byte

const (
	Data      RecordType = 0x00
	EndOfFile RecordType = 0x01
)

const (
	startCode = ':'

	// start code + count + address + type + checksum
	minRecordLen = 11
)

type Record struct {
	ByteCount byte
	Address   uint16
	Type      RecordType
	Data      []byte
	Checksum  byte
}

// ParseRecord decodes one line. Lines that don't look like a record
// at all give a zero Record and no error; those are skipped by
// everything downstream.
func ParseRecord(line string) (Record, error) {
	var rec Record

	line = strings.TrimRight(line, "\r\n")
	if len(line) < minRecordLen || line[0] != startCode {
		return rec, nil
	}

	head, err := hex.DecodeString(line[1:9])
	if err != nil {
		return rec, ParseError{err: err}
	}

	rec.ByteCount = head[0]
	rec.Address = uint16(head[1])<<8 | uint16(head[2])
	rec.Type = RecordType(head[3])

	end := 9 + 2*int(rec.ByteCount)
	if len(line) < end+2 {
		return Record{}, ParseError{err: fmt.Errorf("record too short: got %d characters, byte count needs %d", len(line), end+2)}
	}

	if rec.ByteCount > 0 {
		rec.Data, err = hex.DecodeString(line[9:end])
		if err != nil {
			return Record{}, ParseError{err: err}
		}
	}

	sum, err := hex.DecodeString(line[end : end+2])
	if err != nil {
		return Record{}, ParseError{err: err}
	}
	rec.Checksum = sum[0]

	return rec, nil
}

// IsData reports whether the record carries program memory bytes.
func (r Record) IsData() bool {
	return r.Type == Data && r.ByteCount > 0
}

// ChecksumValid recomputes the checksum over the record fields and
// compares it to the one read from the line.
func (r Record) ChecksumValid() bool {
	return Checksum(r) == r.Checksum
}

// Checksum is the two's complement of the low byte of the sum of
// count, both address bytes, type and all data bytes.
func Checksum(r Record) byte {
	sum := r.ByteCount + byte(r.Address>>8) + byte(r.Address) + byte(r.Type)
	for _, b := range r.Data {
		sum += b
	}

	return ^sum + 1
}

// String encodes the record back to its textual form, using the
// stored checksum.
func (r Record) String() string {
	return fmt.Sprintf(":%02X%04X%02X%s%02X", r.ByteCount, r.Address, byte(r.Type), strings.ToUpper(hex.EncodeToString(r.Data)), r.Checksum)
}

// Line is a record together with the 1-based line it was read from.
type Line struct {
	Number int
	Record
}

// File is the decoded content of a reference image.
type File struct {
	Lines []Line

	// Data records whose checksum didn't match. Parsing carries on
	// past them but the file can't be trusted.
	BadChecksums []ChecksumError
}

// Data returns the data records in file order.
func (f *File) Data() []Line {
	var lines []Line
	for _, l := range f.Lines {
		if l.IsData() {
			lines = append(lines, l)
		}
	}

	return lines
}

func (f *File) Valid() bool {
	return len(f.BadChecksums) == 0
}

func ParseFile(fn string) (*File, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, IOError{path: fn, err: err}
	}
	defer f.Close()

	file, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", fn, err)
	}

	return file, nil
}

// ParseReader decodes every line of r. A line that can't be decoded
// is an error, a checksum mismatch is not.
func ParseReader(r io.Reader) (*File, error) {
	var file File

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++

		rec, err := ParseRecord(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		if rec.Type == Data && !rec.ChecksumValid() {
			file.BadChecksums = append(file.BadChecksums, ChecksumError{
				Line: lineNum,
				Got:  rec.Checksum,
				Want: Checksum(rec),
			})
		}

		file.Lines = append(file.Lines, Line{Number: lineNum, Record: rec})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return &file, nil
}
