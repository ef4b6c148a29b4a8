// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package verifier runs verifications of a controller against the
// active manifest: first its reported parameters, then its program
// memory against the reference image for the firmware it reported.
//
// Failures never escape as panics or exits. Every run ends in a
// result with a verdict and the first error that caused a failure.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/tillitis/gccverify/internal/compare"
	"github.com/tillitis/gccverify/internal/dump"
	"github.com/tillitis/gccverify/internal/handshake"
	"github.com/tillitis/gccverify/internal/ihex"
	"github.com/tillitis/gccverify/internal/library"
	"github.com/tillitis/gccverify/internal/manifest"
	"github.com/tillitis/gccverify/internal/params"
)

var le = log.New(os.Stderr, "", 0)

func SilenceLogging() {
	le.SetOutput(io.Discard)
}

type constError string

func (err constError) Error() string {
	return string(err)
}

const (
	ErrNoFirmwareName   = constError("firmware name not available, verify firmware parameters first")
	ErrUnknownImage     = constError("firmware not in manifest")
	ErrImageNotAllowed  = constError("firmware not permitted")
	ErrSuspectReference = constError("reference image has bad checksums")
)

const (
	defaultAttempts = 3
	maxBackoff      = 5 * time.Second
)

// Opener opens the serial port to the controller. It is called once
// per handshake attempt since a handshake always closes its port.
type Opener func() (handshake.Port, error)

type Verifier struct {
	Manifest *manifest.Manifest
	Library  library.Library
	Dumper   dump.Dumper

	Open      Opener
	PortName  string
	Handshake handshake.Config

	// Handshake attempts when the controller doesn't answer or
	// answers garbage.
	Attempts   uint
	RetryDelay time.Duration

	firmwareName string
}

// FirmwareName is the firmware reported by the last parameter
// verification, empty if none was parsed.
func (v *Verifier) FirmwareName() string {
	return v.firmwareName
}

// VerifyParams asks the controller for its parameters and checks
// them against the manifest. Nothing is sent to the controller if no
// manifest is loaded.
func (v *Verifier) VerifyParams(ctx context.Context) params.Result {
	if !v.Manifest.IsLoaded() {
		return params.Result{Err: manifest.ErrNotLoaded}
	}

	v.firmwareName = ""

	le.Printf("Verifying parameters on %v\n", v.PortName)

	attempts := v.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}

	var res params.Result
	err := retry.Do(func() error {
		port, err := v.Open()
		if err != nil {
			return err
		}

		hs, err := handshake.Run(ctx, port, v.Handshake)
		if err != nil {
			return err
		}

		res = params.Validate(hs.Text, v.Manifest)
		if errors.Is(res.Err, params.ErrMalformedResponse) {
			le.Printf("Response: %q\n", hs.Raw)
			return res.Err
		}

		return nil
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(v.RetryDelay),
		retry.MaxDelay(maxBackoff),
		retry.LastErrorOnly(true),
		retry.RetryIf(retriable),
	)
	if err != nil {
		return params.Result{Err: err}
	}

	v.firmwareName = res.FirmwareName
	le.Printf("Detected firmware: %s\n", res.FirmwareName)

	return res
}

// retriable errors are the ones another handshake may fix. A
// classification failure won't change by asking again.
func retriable(err error) bool {
	return errors.Is(err, handshake.ErrChannel) || errors.Is(err, params.ErrMalformedResponse)
}

type ImageResult struct {
	Verified     bool
	FirmwareName string
	Compare      compare.Report
	Err          error
}

// VerifyImage dumps the program memory of the controller and compares
// it to the reference image of the firmware found by VerifyParams.
// The reference must match its manifest digest before it is used.
func (v *Verifier) VerifyImage(ctx context.Context) ImageResult {
	res := ImageResult{FirmwareName: v.firmwareName}

	if !v.Manifest.IsLoaded() {
		res.Err = manifest.ErrNotLoaded
		return res
	}

	if v.firmwareName == "" {
		res.Err = ErrNoFirmwareName
		return res
	}

	img, ok := v.Manifest.FindImage(v.firmwareName)
	if !ok {
		res.Err = fmt.Errorf("%w: %v", ErrUnknownImage, v.firmwareName)
		return res
	}

	if !img.Permitted {
		res.Err = fmt.Errorf("%w: %v", ErrImageNotAllowed, v.firmwareName)
		return res
	}

	le.Printf("Verifying library firmware image...\n")
	if err := v.Library.VerifyImage(img); err != nil {
		res.Err = err
		return res
	}

	ref, err := ihex.ParseFile(v.Library.ImagePath(img.Name))
	if err != nil {
		res.Err = err
		return res
	}

	le.Printf("Downloading controller firmware (this can take a while)...\n")
	res.Compare, res.Err = v.compareDump(ctx, ref)
	if res.Err != nil {
		return res
	}

	if n := len(res.Compare.BadLines); n > 0 {
		for _, bad := range res.Compare.BadLines {
			le.Printf("Error in library firmware file: %v\n", bad)
		}
		res.Err = fmt.Errorf("%w: %d lines", ErrSuspectReference, n)
		return res
	}

	res.Verified = true

	return res
}

// compareDump keeps the memory image local so it is dropped as soon
// as the comparison is done.
func (v *Verifier) compareDump(ctx context.Context, ref *ihex.File) (compare.Report, error) {
	image, err := v.Dumper.Dump(ctx, v.PortName)
	if err != nil {
		return compare.Report{}, err
	}

	le.Printf("Comparing to firmware in library...\n")

	return compare.Compare(ref.Data(), image)
}
