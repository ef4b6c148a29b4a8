// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package dump reads the program memory of a device with an external
// programming tool.
package dump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var le = log.New(os.Stderr, "", 0)

func SilenceLogging() {
	le.SetOutput(io.Discard)
}

// OutputFile is what the tool writes the memory image to, relative
// to its working directory.
const OutputFile = "progmem.bin"

// Dumper reads the full program memory of the device behind port.
type Dumper interface {
	Dump(ctx context.Context, port string) ([]byte, error)
}

// Avrdude dumps flash with avrdude in raw binary format.
type Avrdude struct {
	Bin        string
	Conf       string
	Part       string
	Programmer string
	Baud       int

	// Directory the dump is written to. A fresh temporary directory
	// is used if empty.
	WorkDir string
	Verbose bool
}

// DefaultAvrdude is set up for an ATmega328P behind the Arduino
// bootloader, using the configuration avrdude finds by itself.
func DefaultAvrdude() Avrdude {
	return Avrdude{
		Bin:        "avrdude",
		Part:       "atmega328p",
		Programmer: "arduino",
		Baud:       57600,
	}
}

// Args is the avrdude command line reading flash from port into
// OutputFile.
func (a Avrdude) Args(port string) []string {
	args := []string{}
	if a.Conf != "" {
		args = append(args, "-C"+a.Conf)
	}

	return append(args,
		"-v",
		"-p"+a.Part,
		"-c"+a.Programmer,
		"-P"+port,
		"-Uflash:r:"+OutputFile+":r",
		"-b"+strconv.Itoa(a.Baud),
	)
}

// Dump runs avrdude and returns the memory image. The image file is
// removed before returning, whatever the outcome.
func (a Avrdude) Dump(ctx context.Context, port string) ([]byte, error) {
	dir := a.WorkDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "gccverify-")
		if err != nil {
			return nil, IOError{path: os.TempDir(), err: err}
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	// Paths are relative to where we were started, not to dir. A bare
	// binary name is still looked up in PATH.
	if a.Conf != "" && !filepath.IsAbs(a.Conf) {
		if abs, err := filepath.Abs(a.Conf); err == nil {
			a.Conf = abs
		}
	}

	if hasDir(a.Bin) && !filepath.IsAbs(a.Bin) {
		if abs, err := filepath.Abs(a.Bin); err == nil {
			a.Bin = abs
		}
	}

	out := filepath.Join(dir, OutputFile)
	defer os.Remove(out)

	cmd := exec.CommandContext(ctx, a.Bin, a.Args(port)...)
	cmd.Dir = dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	le.Printf("Reading program memory...\n")

	if a.Verbose {
		le.Printf("%s %s\n", a.Bin, strings.Join(a.Args(port), " "))
	}

	err := cmd.Run()

	if a.Verbose && output.Len() > 0 {
		le.Printf("%s", output.String())
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return nil, ToolError{
			Tool:     a.Bin,
			ExitCode: exitCode,
			Output:   output.String(),
			err:      err,
		}
	}

	image, err := os.ReadFile(out)
	if err != nil {
		return nil, IOError{path: out, err: err}
	}

	le.Printf("Read %d bytes of program memory.\n", len(image))

	return image, nil
}

func hasDir(path string) bool {
	return strings.ContainsRune(path, '/') || strings.ContainsRune(path, filepath.Separator)
}
