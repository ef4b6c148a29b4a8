// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/tillitis/gccverify/internal/compare"
	"github.com/tillitis/gccverify/internal/digest"
	"github.com/tillitis/gccverify/internal/dump"
	"github.com/tillitis/gccverify/internal/handshake"
	"github.com/tillitis/gccverify/internal/library"
	"github.com/tillitis/gccverify/internal/manifest"
	"github.com/tillitis/gccverify/internal/params"
	"github.com/tillitis/gccverify/internal/sigsum"
	"github.com/tillitis/gccverify/internal/util"
	"github.com/tillitis/gccverify/internal/verifier"
)

func manifests(conf Config) (verifier.Manifests, error) {
	s := verifier.Manifests{
		Library: library.New(conf.LibDir),
		URL:     conf.ManifestURL,
	}

	if conf.Sigsum.SubmitKeys != "" {
		var sumLog sigsum.Log
		if err := sumLog.FromFiles(conf.Sigsum.SubmitKeys, conf.Sigsum.Policy); err != nil {
			return s, err
		}
		s.Log = &sumLog
	}

	return s, nil
}

// verify checks the parameters of the controller and, if withImage is
// set, its program memory. It reports whether everything checked out.
func verify(ctx context.Context, conf Config, dev Device, preferRemote bool, verbose bool, withImage bool) bool {
	sources, err := manifests(conf)
	if err != nil {
		parseFailure(fmt.Sprintf("sigsum configuration: %v", err))
		return false
	}

	m := sources.Active(preferRemote, func(err error) {
		le.Printf("WARNING: %v\n", err)
	})

	if !m.IsLoaded() {
		explain(manifest.ErrNotLoaded, verbose)
		return false
	}

	if dev.Path == "" {
		dev.Path, err = util.DetectSerialPort(true)
		if err != nil {
			notFound(err.Error())
			return false
		}
	}

	v := verifier.Verifier{
		Manifest:  &m,
		Library:   sources.Library,
		Dumper:    conf.avrdude(verbose),
		PortName:  dev.Path,
		Handshake: handshake.DefaultConfig(dev.Platform),
		Attempts:  conf.Attempts,
		Open: func() (handshake.Port, error) {
			return handshake.Open(dev.Path, dev.Platform, dev.Speed)
		},
	}
	v.Handshake.Verbose = verbose

	le.Printf("Verifying %v controller on %v\n", dev.Platform, dev.Path)

	res := v.VerifyParams(ctx)
	fmt.Print(res.Report)

	paramsOK := res.Succeeded
	if paramsOK {
		passed("firmware parameters of %s verified.", res.FirmwareName)
	} else {
		explain(res.Err, verbose)
	}

	if !withImage {
		return paramsOK
	}

	if v.FirmwareName() == "" {
		return false
	}

	fmt.Printf("\n")

	img := v.VerifyImage(ctx)
	if !img.Verified {
		explain(img.Err, verbose)
		return false
	}

	passed("controller firmware matches %s in library.", img.FirmwareName)

	return paramsOK
}

// Categories of failure, most specific first.
const (
	catNotLoaded    = "not loaded"
	catComm         = "comm"
	catParse        = "parse"
	catMissing      = "missing"
	catNotFound     = "not found"
	catTool         = "tool"
	catVerification = "verification"
	catOther        = "other"
)

func category(err error) string {
	switch {
	case errors.Is(err, manifest.ErrNotLoaded):
		return catNotLoaded
	case errors.Is(err, handshake.ErrChannel):
		return catComm
	case errors.Is(err, params.ErrMalformedResponse):
		return catParse
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, verifier.ErrNoFirmwareName):
		return catMissing
	case errors.Is(err, dump.ErrTool):
		return catTool
	case errors.Is(err, verifier.ErrUnknownImage), errors.Is(err, os.ErrNotExist):
		return catNotFound
	case params.IsClassification(err),
		errors.Is(err, digest.ErrHashMismatch),
		errors.Is(err, compare.ErrByteMismatch),
		errors.Is(err, verifier.ErrImageNotAllowed),
		errors.Is(err, verifier.ErrSuspectReference):
		return catVerification
	default:
		return catOther
	}
}

func explain(err error, verbose bool) {
	if err == nil {
		return
	}

	switch category(err) {
	case catNotLoaded:
		notFound("no manifest loaded. Run update-manifest, or use --remote.")

	case catComm:
		commFailed(err.Error())
		if hint := handshake.Hint(err); hint != "" {
			fmt.Printf("%s\n", hint)
		}

	case catParse:
		parseFailure(err.Error())

	case catMissing:
		missing(err.Error())

	case catTool:
		toolFailed(err, verbose)

	case catNotFound:
		notFound(err.Error())

	case catVerification:
		verificationFailed(err.Error())

	default:
		fmt.Printf("ERROR: %v\n", err)
	}
}

// commFailed describes an error when we're trying to communicate
// with the controller over the serial port.
func commFailed(msg string) {
	fmt.Printf("I/O FAILED: %s\n", msg)
}

// parseFailure describes an error where we have tried to parse
// something from external sources but failed.
func parseFailure(msg string) {
	fmt.Printf("PARSE ERROR: %s\n", msg)
}

// missing describes an error where something needed to even attempt
// the verification is not there.
func missing(msg string) {
	fmt.Printf("MISSING: %s\n", msg)
}

// notFound describes an error where we can't find something, in the
// library, the manifest or on a web server.
func notFound(msg string) {
	fmt.Printf("NOT FOUND: %s\n", msg)
}

func toolFailed(err error, verbose bool) {
	fmt.Printf("DUMP FAILED: %v\n", err)

	var toolErr dump.ToolError
	if verbose && errors.As(err, &toolErr) && toolErr.Output != "" {
		fmt.Printf("%s output:\n%s\n", toolErr.Tool, toolErr.Output)
	}
}

// verificationFailed describes a controller that doesn't match the
// manifest, or a library that doesn't.
func verificationFailed(msg string) {
	fmt.Printf("%s %s\n", color.RedString("VERIFICATION FAILED:"), msg)
}

func passed(format string, a ...any) {
	fmt.Printf("%s %s\n", color.GreenString("VERIFIED:"), fmt.Sprintf(format, a...))
}
