// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package digest establishes that a reference image on disk is the
// one the manifest describes. It fails closed: anything but a
// matching SHA-256 digest is an error.
package digest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	sumcrypto "sigsum.org/sigsum-go/pkg/crypto"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const ErrHashMismatch = constError("image digest does not match manifest")

type IOError struct {
	path string
	err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("I/O error while hashing %v: %v", e.path, e.err)
}

func (e IOError) Unwrap() error {
	return e.err
}

type MismatchError struct {
	Path     string
	Got      sumcrypto.Hash
	Expected sumcrypto.Hash
}

func (e MismatchError) Error() string {
	return fmt.Sprintf("%v: %v is %s, expected %s", ErrHashMismatch, e.Path, Hex(e.Got), Hex(e.Expected))
}

func (e MismatchError) Unwrap() error {
	return ErrHashMismatch
}

// Sum streams r through SHA-256.
func Sum(r io.Reader) (sumcrypto.Hash, error) {
	var sum sumcrypto.Hash

	h := sha256.New()
	if _, err := io.Copy(h, bufio.NewReader(r)); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))

	return sum, nil
}

func SumFile(fn string) (sumcrypto.Hash, error) {
	f, err := os.Open(fn)
	if err != nil {
		return sumcrypto.Hash{}, IOError{path: fn, err: err}
	}
	defer f.Close()

	sum, err := Sum(f)
	if err != nil {
		return sumcrypto.Hash{}, IOError{path: fn, err: err}
	}

	return sum, nil
}

// VerifyFile hashes the file at fn and compares the result to
// expectedHex, ignoring case.
func VerifyFile(fn string, expectedHex string) error {
	expected, err := sumcrypto.HashFromHex(strings.ToLower(strings.TrimSpace(expectedHex)))
	if err != nil {
		return fmt.Errorf("couldn't decode expected digest %q: %w", expectedHex, err)
	}

	got, err := SumFile(fn)
	if err != nil {
		return err
	}

	if got != expected {
		return MismatchError{Path: fn, Got: got, Expected: expected}
	}

	return nil
}

// Verify is VerifyFile for callers that only care about the verdict.
func Verify(fn string, expectedHex string) bool {
	return VerifyFile(fn, expectedHex) == nil
}

// Hex renders a digest the way manifests carry it.
func Hex(h sumcrypto.Hash) string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}
