// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package params checks the parameters a controller reports about
// its own firmware against the mods permitted by a manifest.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tillitis/gccverify/internal/manifest"
)

type constError string

func (err constError) Error() string {
	return string(err)
}

const (
	ErrMalformedResponse = constError("malformed response")
	ErrUnknownMod        = constError("unknown mod")
	ErrIllegalMod        = constError("illegal mod")
	ErrUnknownValue      = constError("unknown mod value")
	ErrIllegalValue      = constError("illegal mod value")
)

// Reported is what the controller says about its firmware. Defaults
// are chosen so a response with missing fields fails validation.
type Reported struct {
	Name         string `json:"name"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	Mods         []Mod  `json:"mods"`
}

type Mod struct {
	Name    string  `json:"name"`
	Enabled bool    `json:"enabled"`
	Values  []Value `json:"values"`
}

type Value struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// UnmarshalJSON defaults a missing value to math.MaxInt32, which no
// sane range accepts.
func (v *Value) UnmarshalJSON(b []byte) error {
	type plain Value

	p := plain{Value: math.MaxInt32}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*v = Value(p)

	return nil
}

// Parse decodes a response payload.
func Parse(text string) (Reported, error) {
	// A missing mods array means no mods, an explicit null leaves
	// Mods nil.
	r := Reported{
		MajorVersion: -1,
		MinorVersion: -1,
		Mods:         []Mod{},
	}

	if text == "" {
		return r, fmt.Errorf("%w: nothing received", ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return r, fmt.Errorf("%w: response is invalid JSON: %v", ErrMalformedResponse, err)
	}

	switch {
	case r.Name == "":
		return r, fmt.Errorf("%w: response did not contain firmware name", ErrMalformedResponse)
	case r.MajorVersion < 0:
		return r, fmt.Errorf("%w: response did not contain major version number", ErrMalformedResponse)
	case r.MinorVersion < 0:
		return r, fmt.Errorf("%w: response did not contain minor version number", ErrMalformedResponse)
	case r.Mods == nil:
		return r, fmt.Errorf("%w: mods is null", ErrMalformedResponse)
	}

	return r, nil
}

// FirmwareName is the identifier used for the firmware in manifests
// and the reference library.
func (r Reported) FirmwareName() string {
	return fmt.Sprintf("%s-%d.%d", r.Name, r.MajorVersion, r.MinorVersion)
}

type Result struct {
	Succeeded    bool
	FirmwareName string
	Mods         []ClassifiedMod
	Report       string

	// First reason the run failed, nil on success.
	Err error
}

func failed(err error) Result {
	return Result{Err: err}
}

// Validate parses text and classifies every reported mod against m.
// The report is filled in whether or not validation succeeds.
func Validate(text string, m *manifest.Manifest) Result {
	if !m.IsLoaded() {
		return failed(manifest.ErrNotLoaded)
	}

	reported, err := Parse(text)
	if err != nil {
		return failed(err)
	}

	res := Result{
		FirmwareName: reported.FirmwareName(),
	}

	if len(reported.Mods) == 0 {
		return noMods(res)
	}

	var report strings.Builder

	for _, mod := range reported.Mods {
		// An empty name ends the list, the firmware pads its mod
		// array with empty entries. It only stands for "no mods"
		// while nothing has failed, a failure already seen is
		// never turned into a success.
		if mod.Name == "" {
			if res.Err != nil {
				break
			}

			return noMods(res)
		}

		classified := classify(mod, m)
		for _, c := range classified {
			if c.Class.Failed() && res.Err == nil {
				res.Err = fmt.Errorf("%w: %s", c.Class.err(), mod.Name)
			}
			report.WriteString(c.Render())
		}
		res.Mods = append(res.Mods, classified...)
	}

	res.Succeeded = res.Err == nil
	res.Report = report.String()

	return res
}

func noMods(res Result) Result {
	res.Mods = append(res.Mods, ClassifiedMod{Class: NoMods})
	res.Succeeded = true
	res.Report = NoModsBanner

	return res
}

// classify returns one entry per rendered block for mod. A mod can
// be flagged more than once when it reports several unknown values.
func classify(mod Mod, m *manifest.Manifest) []ClassifiedMod {
	spec, ok := m.FindModSpec(mod.Name)
	if !ok {
		return []ClassifiedMod{{Class: UnknownMod, Mod: mod}}
	}

	var out []ClassifiedMod
	badValue := false

	if mod.Enabled && !spec.Permitted {
		out = append(out, ClassifiedMod{Class: IllegalMod, Mod: mod})
	} else {
		for _, v := range mod.Values {
			vs, ok := spec.FindValueSpec(v.Name)
			if !ok {
				badValue = true
				out = append(out, ClassifiedMod{Class: UnknownValue, Mod: mod, Value: v.Name})
				continue
			}

			if !vs.Contains(v.Value) {
				badValue = true
				out = append(out, ClassifiedMod{Class: IllegalValue, Mod: mod, Value: v.Name})
				break
			}
		}
	}

	if !badValue {
		out = append(out, ClassifiedMod{Class: Permitted, Mod: mod})
	}

	return out
}

// IsClassification reports whether err came from classifying a mod
// rather than from a broken response.
func IsClassification(err error) bool {
	return errors.Is(err, ErrUnknownMod) || errors.Is(err, ErrIllegalMod) ||
		errors.Is(err, ErrUnknownValue) || errors.Is(err, ErrIllegalValue)
}
