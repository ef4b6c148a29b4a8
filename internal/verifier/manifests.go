// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package verifier

import (
	"fmt"

	"github.com/tillitis/gccverify/internal/library"
	"github.com/tillitis/gccverify/internal/manifest"
	"github.com/tillitis/gccverify/internal/sigsum"
)

// Manifests knows where the local and the published manifest live.
type Manifests struct {
	Library library.Library
	URL     string

	// If set, the published manifest must come with a valid proof
	// of being logged.
	Log *sigsum.Log
}

func (s Manifests) Local() (manifest.Manifest, error) {
	le.Printf("Loading local manifest...\n")

	return s.Library.LoadManifest()
}

func (s Manifests) Remote() (manifest.Manifest, error) {
	le.Printf("Loading remote manifest...\n")

	b, err := manifest.Fetch(s.URL)
	if err != nil {
		return manifest.Manifest{}, err
	}

	if s.Log != nil {
		proof, err := manifest.Fetch(s.URL + sigsum.ProofSuffix)
		if err != nil {
			return manifest.Manifest{}, fmt.Errorf("couldn't get manifest proof: %w", err)
		}

		if err := s.Log.VerifyProof(b, proof); err != nil {
			return manifest.Manifest{}, fmt.Errorf("manifest proof not verified: %w", err)
		}
	}

	var m manifest.Manifest
	if err := m.FromJSON(b); err != nil {
		return manifest.Manifest{}, err
	}

	return m, nil
}

// Active loads both manifests and picks the one to verify against. A
// manifest that can't be loaded is reported through warn and treated
// as not loaded.
func (s Manifests) Active(preferRemote bool, warn func(error)) manifest.Manifest {
	local, err := s.Local()
	if err != nil {
		warn(fmt.Errorf("local manifest: %w", err))
	}

	if !preferRemote {
		return local
	}

	remote, err := s.Remote()
	if err != nil {
		warn(fmt.Errorf("remote manifest: %w", err))
	}

	return manifest.Select(local, remote, preferRemote)
}

// Update replaces the local manifest with the published one if the
// published one is newer, or if there is no usable local manifest.
// It returns the manifest now in use and whether it changed.
func (s Manifests) Update() (manifest.Manifest, bool, error) {
	remote, err := s.Remote()
	if err != nil {
		return manifest.Manifest{}, false, err
	}

	local, err := s.Local()
	if err == nil && !manifest.IsNewer(remote, local) {
		return local, false, nil
	}

	le.Printf("Updating manifest with remote copy...\n")
	if err := s.Library.SaveManifest(remote); err != nil {
		return remote, false, err
	}

	return remote, true, nil
}
