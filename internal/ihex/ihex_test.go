// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package ihex

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const dataLine = ":10010000214601360121470136007EFE09D2190140"

const image = `:10010000214601360121470136007EFE09D2190140
:100110002146017E17C20001FF5F16002148011928
:00000001FF
`

func TestParseDataRecord(t *testing.T) {
	rec, err := ParseRecord(dataLine)
	if err != nil {
		t.Fatal(err)
	}

	if rec.ByteCount != 0x10 {
		t.Fatalf("byte count 0x%02X, want 0x10", rec.ByteCount)
	}
	if rec.Address != 0x0100 {
		t.Fatalf("address 0x%04X, want 0x0100", rec.Address)
	}
	if rec.Type != Data {
		t.Fatalf("type %d, want data", rec.Type)
	}

	wantData := []byte{0x21, 0x46, 0x01, 0x36, 0x01, 0x21, 0x47, 0x01, 0x36, 0x00, 0x7E, 0xFE, 0x09, 0xD2, 0x19, 0x01}
	if !bytes.Equal(rec.Data, wantData) {
		t.Fatalf("data %X, want %X", rec.Data, wantData)
	}
	if rec.Checksum != 0x40 {
		t.Fatalf("checksum 0x%02X, want 0x40", rec.Checksum)
	}
	if !rec.ChecksumValid() {
		t.Fatal("checksum should be valid")
	}
	if !rec.IsData() {
		t.Fatal("record should carry data")
	}
}

func TestParseLowercase(t *testing.T) {
	rec, err := ParseRecord(strings.ToLower(dataLine))
	if err != nil {
		t.Fatal(err)
	}
	if !rec.ChecksumValid() {
		t.Fatal("lowercase record should have valid checksum")
	}
}

func TestParseEndOfFile(t *testing.T) {
	rec, err := ParseRecord(":00000001FF")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != EndOfFile {
		t.Fatalf("type %d, want end of file", rec.Type)
	}
	if !rec.ChecksumValid() {
		t.Fatal("EOF checksum should be valid")
	}
	if rec.IsData() {
		t.Fatal("EOF record must not carry data")
	}
}

func TestInertLines(t *testing.T) {
	for _, line := range []string{"", "hello world", ":0000", "10010000214601360121470136007EFE09D2190140"} {
		rec, err := ParseRecord(line)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", line, err)
		}
		if rec.IsData() || rec.ByteCount != 0 || rec.Data != nil {
			t.Fatalf("%q: expected zero record, got %+v", line, rec)
		}
	}
}

func TestParseBroken(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not hex in header", ":1001000G214601360121470136007EFE09D2190140"},
		{"truncated data", ":10010000214601360121"},
		{"not hex in data", ":10010000214601360121470136007EFE09D219ZZ40"},
		{"not hex in checksum", ":00000001FG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord(tt.line)
			var parseErr ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	rec := Record{
		ByteCount: 4,
		Address:   0x1234,
		Type:      Data,
		Data:      []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	rec.Checksum = Checksum(rec)

	parsed, err := ParseRecord(rec.String())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.ChecksumValid() {
		t.Fatalf("%s: checksum should be valid", rec.String())
	}

	// Flip each data byte in turn without touching the checksum.
	for i := range rec.Data {
		flipped := parsed
		flipped.Data = append([]byte(nil), parsed.Data...)
		flipped.Data[i] ^= 0xFF

		if flipped.ChecksumValid() {
			t.Fatalf("flipping data byte %d kept the checksum valid", i)
		}
	}
}

func TestParseReader(t *testing.T) {
	file, err := ParseReader(strings.NewReader(image))
	if err != nil {
		t.Fatal(err)
	}

	if len(file.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(file.Lines))
	}
	if !file.Valid() {
		t.Fatalf("unexpected bad checksums: %v", file.BadChecksums)
	}

	data := file.Data()
	if len(data) != 2 {
		t.Fatalf("got %d data records, want 2", len(data))
	}
	if data[1].Number != 2 || data[1].Address != 0x0110 {
		t.Fatalf("unexpected second data record %+v", data[1])
	}
}

func TestParseReaderKeepsGoingOnBadChecksum(t *testing.T) {
	broken := strings.Replace(image, "D2190140", "D2190141", 1)

	file, err := ParseReader(strings.NewReader(broken))
	if err != nil {
		t.Fatal(err)
	}

	if file.Valid() {
		t.Fatal("file with bad checksum reported valid")
	}
	if len(file.BadChecksums) != 1 || file.BadChecksums[0].Line != 1 {
		t.Fatalf("unexpected bad checksums %v", file.BadChecksums)
	}
	if !errors.Is(file.BadChecksums[0], ErrChecksum) {
		t.Fatal("ChecksumError should unwrap to ErrChecksum")
	}
	if len(file.Lines) != 3 {
		t.Fatalf("parsing stopped early, got %d lines", len(file.Lines))
	}
}

func TestParseFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "stock-1.0.hex")
	if err := os.WriteFile(fn, []byte(image), 0o600); err != nil {
		t.Fatal(err)
	}

	file, err := ParseFile(fn)
	if err != nil {
		t.Fatal(err)
	}
	if len(file.Data()) != 2 {
		t.Fatalf("got %d data records, want 2", len(file.Data()))
	}

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.hex"))
	var ioErr IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}
