// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/tillitis/gccverify/internal/compare"
	"github.com/tillitis/gccverify/internal/data"
	"github.com/tillitis/gccverify/internal/dump"
	"github.com/tillitis/gccverify/internal/handshake"
	"github.com/tillitis/gccverify/internal/manifest"
	"github.com/tillitis/gccverify/internal/params"
	"github.com/tillitis/gccverify/internal/verifier"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	fn := filepath.Join(t.TempDir(), "gccverify.yaml")
	if err := os.WriteFile(fn, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return fn
}

func TestLoadConfig(t *testing.T) {
	fn := writeConfig(t, `libdir: /var/lib/gccverify
attempts: 5
avrdude:
  bin: /usr/local/bin/avrdude
  baud: 115200
`)

	conf, err := loadConfig(fn, true)
	if err != nil {
		t.Fatal(err)
	}

	if conf.LibDir != "/var/lib/gccverify" || conf.Attempts != 5 {
		t.Fatalf("unexpected config %+v", conf)
	}

	a := conf.avrdude(false)
	if a.Bin != "/usr/local/bin/avrdude" || a.Baud != 115200 {
		t.Fatalf("unexpected avrdude setup %+v", a)
	}

	// Defaults survive
	if a.Part != "atmega328p" || conf.ManifestURL != data.ManifestURL {
		t.Fatalf("defaults lost: %+v", conf)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "nope.yaml")

	conf, err := loadConfig(fn, false)
	if err != nil {
		t.Fatalf("missing default config is an error: %v", err)
	}
	if conf.LibDir != "lib" {
		t.Fatalf("unexpected lib dir %q", conf.LibDir)
	}

	var ioErr IOError
	if _, err := loadConfig(fn, true); !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

func TestLoadConfigBroken(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "libdir: lib\nlibrary: other\n"},
		{"not yaml", "libdir: [lib\n"},
		{"half sigsum", "sigsum:\n  submitkeys: keys\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parseErr ParseError
			if _, err := loadConfig(writeConfig(t, tt.content), true); !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{manifest.ErrNotLoaded, catNotLoaded},
		{handshake.ChannelError{}, catComm},
		{fmt.Errorf("%w: nothing received", params.ErrMalformedResponse), catParse},
		{fmt.Errorf("%w: turbo", params.ErrIllegalMod), catVerification},
		{fmt.Errorf("%w: dashback", params.ErrUnknownValue), catVerification},
		{compare.MismatchError{Address: 0x105}, catVerification},
		{fmt.Errorf("%w: stock-0.9", verifier.ErrImageNotAllowed), catVerification},
		{verifier.ErrNoFirmwareName, catMissing},
		{&exec.Error{Name: "avrdude", Err: exec.ErrNotFound}, catMissing},
		{dump.ToolError{Tool: "avrdude", ExitCode: 1}, catTool},
		{fmt.Errorf("%w: stock-1.9", verifier.ErrUnknownImage), catNotFound},
		{errors.New("something else"), catOther},
	}

	for _, tt := range tests {
		if got := category(tt.err); got != tt.want {
			t.Errorf("category(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
