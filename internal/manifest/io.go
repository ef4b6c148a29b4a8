// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Manifests are small, refuse anything bigger.
const maxManifestSize = 1 << 20

type IOError struct {
	path string
	err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("I/O error on %v: %v", e.path, e.err)
}

func (e IOError) Unwrap() error {
	return e.err
}

type ParseError struct {
	what string
	err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("couldn't parse %v: %v", e.what, e.err)
}

func (e ParseError) Unwrap() error {
	return e.err
}

func (m *Manifest) FromJSON(b []byte) error {
	var parsed Manifest

	if err := json.Unmarshal(b, &parsed); err != nil {
		return ParseError{what: "manifest", err: err}
	}

	if err := parsed.Validate(); err != nil {
		return err
	}

	*m = parsed

	return nil
}

func (m *Manifest) ToJSON() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("couldn't marshal JSON: %w", err)
	}

	return b, nil
}

func (m *Manifest) FromFile(fn string) error {
	b, err := os.ReadFile(fn)
	if err != nil {
		return IOError{path: fn, err: err}
	}

	return m.FromJSON(b)
}

// ToFile writes the manifest to fn. An existing file is first copied
// to backup, if backup is not empty. Nothing is written if the backup
// fails.
func (m *Manifest) ToFile(fn string, backup string) error {
	b, err := m.ToJSON()
	if err != nil {
		return err
	}

	if backup != "" {
		if err := copyFile(fn, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return IOError{path: backup, err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return IOError{path: fn, err: err}
	}

	if err := os.WriteFile(fn, append(b, '\n'), 0o644); err != nil { //nolint:gosec
		return IOError{path: fn, err: err}
	}

	return nil
}

func (m *Manifest) FromURL(manifestURL string) error {
	b, err := Fetch(manifestURL)
	if err != nil {
		return err
	}

	return m.FromJSON(b)
}

// Fetch downloads a manifest, or anything published next to it, and
// returns the raw bytes.
func Fetch(rawURL string) ([]byte, error) {
	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(rawURL) // #nosec G107
	if err != nil {
		return nil, fmt.Errorf("error accessing %v: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error accessing %v: %v", rawURL, resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("couldn't read body: %w", err)
	}

	return b, nil
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, b, 0o644) //nolint:gosec
}
