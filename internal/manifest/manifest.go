// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package manifest holds the trust catalog: which firmware images are
// known, with their reference digests, and which firmware mods are
// permitted within which value ranges.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const (
	ErrNotLoaded = constError("manifest is not loaded")
	ErrDuplicate = constError("duplicate name in manifest")
	ErrRange     = constError("value spec with minVal > maxVal")
	ErrImageName = constError("firmware image name is not a plain file name")
)

type FirmwareImage struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Hash      string `json:"hash"`
	Permitted bool   `json:"permitted"`
}

type ValueSpec struct {
	Name   string `json:"name"`
	MinVal int    `json:"minVal"`
	MaxVal int    `json:"maxVal"`
}

type ModSpec struct {
	Name       string      `json:"name"`
	Permitted  bool        `json:"permitted"`
	ValueSpecs []ValueSpec `json:"valueSpecs"`
}

// Manifest is a versioned catalog. A zero Timestamp means nothing was
// loaded and the manifest must not be used for verification.
type Manifest struct {
	Timestamp      int64           `json:"timestamp"`
	FirmwareImages []FirmwareImage `json:"firmwareImages"`
	ModSpecs       []ModSpec       `json:"modSpecs"`
}

func (m *Manifest) IsLoaded() bool {
	return m != nil && m.Timestamp != 0
}

// FindImage returns the first firmware image called name.
func (m *Manifest) FindImage(name string) (FirmwareImage, bool) {
	for _, img := range m.FirmwareImages {
		if img.Name == name {
			return img, true
		}
	}

	return FirmwareImage{}, false
}

// FindModSpec returns the first mod spec called name.
func (m *Manifest) FindModSpec(name string) (ModSpec, bool) {
	for _, spec := range m.ModSpecs {
		if spec.Name == name {
			return spec, true
		}
	}

	return ModSpec{}, false
}

// FindValueSpec returns the first value spec of the mod called name.
func (s ModSpec) FindValueSpec(name string) (ValueSpec, bool) {
	for _, v := range s.ValueSpecs {
		if v.Name == name {
			return v, true
		}
	}

	return ValueSpec{}, false
}

// Contains reports whether value is within the inclusive range.
func (v ValueSpec) Contains(value int) bool {
	return value >= v.MinVal && value <= v.MaxVal
}

// Validate checks the invariants lookups rely on: names are unique
// within their collection and every value range is well formed. Image
// names become file names in the reference library, so they must not
// carry a path.
func (m *Manifest) Validate() error {
	images := make(map[string]struct{}, len(m.FirmwareImages))
	for _, img := range m.FirmwareImages {
		if !plainName(img.Name) {
			return fmt.Errorf("%w: %q", ErrImageName, img.Name)
		}
		if _, ok := images[img.Name]; ok {
			return DuplicateError{what: "firmware image", name: img.Name}
		}
		images[img.Name] = struct{}{}
	}

	mods := make(map[string]struct{}, len(m.ModSpecs))
	for _, spec := range m.ModSpecs {
		if _, ok := mods[spec.Name]; ok {
			return DuplicateError{what: "mod", name: spec.Name}
		}
		mods[spec.Name] = struct{}{}

		values := make(map[string]struct{}, len(spec.ValueSpecs))
		for _, v := range spec.ValueSpecs {
			if _, ok := values[v.Name]; ok {
				return DuplicateError{what: "value of mod " + spec.Name, name: v.Name}
			}
			values[v.Name] = struct{}{}

			if v.MinVal > v.MaxVal {
				return fmt.Errorf("%w: %s.%s [%d, %d]", ErrRange, spec.Name, v.Name, v.MinVal, v.MaxVal)
			}
		}
	}

	return nil
}

func plainName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..") &&
		filepath.Base(name) == name
}

// Select picks the manifest a verification run is made against. The
// remote one is only used when asked for and actually loaded.
func Select(local, remote Manifest, preferRemote bool) Manifest {
	if preferRemote && remote.IsLoaded() {
		return remote
	}

	return local
}

// IsNewer reports whether remote was published after local.
func IsNewer(remote, local Manifest) bool {
	return remote.Timestamp > local.Timestamp
}

type DuplicateError struct {
	what string
	name string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%v: %v %q", ErrDuplicate, e.what, e.name)
}

func (e DuplicateError) Unwrap() error {
	return ErrDuplicate
}
