// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package sigsum checks that a published manifest has been logged in
// a Sigsum transparency log by one of the known submitters.
package sigsum

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	sumcrypto "sigsum.org/sigsum-go/pkg/crypto"
	"sigsum.org/sigsum-go/pkg/key"
	"sigsum.org/sigsum-go/pkg/policy"
	"sigsum.org/sigsum-go/pkg/proof"
)

// ProofSuffix is appended to a manifest URL to find its proof.
const ProofSuffix = ".proof"

// PubKey is a key allowed to submit manifests to the log, and the
// period it was in use.
type PubKey struct {
	Name  string
	Key   [ed25519.PublicKeySize]byte
	Start time.Time
	End   time.Time
}

func (p PubKey) String() string {
	return fmt.Sprintf("%v (%v - %v): %x", p.Name, p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly), p.Key)
}

type Log struct {
	Keys       map[[ed25519.PublicKeySize]byte]PubKey
	SubmitKeys map[sumcrypto.Hash]sumcrypto.PublicKey
	Policy     *policy.Policy
}

type State int

const (
	sName = iota
	sKey
	sStart
	sEnd
)

// ParseKeys reads submit keys. Each key is four lines: a name, the
// key in OpenSSH format, and the first and last day it was in use as
// YYYY-MM-DD. Empty lines and lines starting with '#' are skipped.
func ParseKeys(r io.Reader) (map[[ed25519.PublicKeySize]byte]PubKey, error) {
	var pubkey PubKey
	var state State

	pubKeys := map[[ed25519.PublicKeySize]byte]PubKey{}
	state = sName
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		switch state {
		case sName:
			pubkey = PubKey{Name: line}
			state = sKey

		case sKey:
			pkey, err := key.ParsePublicKey(line)
			if err != nil {
				return nil, fmt.Errorf("key for %v: %w", pubkey.Name, err)
			}

			if _, ok := pubKeys[pkey]; ok {
				return nil, fmt.Errorf("key for %v listed twice", pubkey.Name)
			}

			pubkey.Key = pkey
			state = sStart

		case sStart:
			t, err := time.Parse(time.DateOnly, line)
			if err != nil {
				return nil, fmt.Errorf("start date for %v: %w", pubkey.Name, err)
			}

			pubkey.Start = t
			state = sEnd

		case sEnd:
			t, err := time.Parse(time.DateOnly, line)
			if err != nil {
				return nil, fmt.Errorf("end date for %v: %w", pubkey.Name, err)
			}

			if !t.After(pubkey.Start) {
				return nil, fmt.Errorf("key %v ends before it starts", pubkey.Name)
			}

			pubkey.End = t
			pubKeys[pubkey.Key] = pubkey
			state = sName

		default:
			return nil, errors.New("unknown state when parsing keys")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse sigsum keys: %w", err)
	}

	if state != sName {
		return nil, fmt.Errorf("incomplete entry for key %v", pubkey.Name)
	}

	return pubKeys, nil
}

func (s *Log) FromString(keysStr string, policyStr string) error {
	keys, err := ParseKeys(bytes.NewBufferString(keysStr))
	if err != nil {
		return fmt.Errorf("parse error in submit keys: %w", err)
	}

	if len(keys) == 0 {
		return errors.New("no submit keys")
	}

	s.Keys = keys

	// Transform to Sigsum submitkeys
	s.SubmitKeys = make(map[sumcrypto.Hash]sumcrypto.PublicKey)
	for _, key := range keys {
		s.SubmitKeys[sumcrypto.HashBytes(key.Key[:])] = key.Key
	}

	s.Policy, err = policy.ParseConfig(bytes.NewBufferString(policyStr))
	if err != nil {
		return fmt.Errorf("parse error in policy: %w", err)
	}

	return nil
}

func (s *Log) FromFiles(keysFile string, policyFile string) error {
	keysStr, err := os.ReadFile(keysFile)
	if err != nil {
		return fmt.Errorf("couldn't read submit keys: %w", err)
	}

	policyStr, err := os.ReadFile(policyFile)
	if err != nil {
		return fmt.Errorf("couldn't read policy: %w", err)
	}

	return s.FromString(string(keysStr), string(policyStr))
}

// VerifyProof checks that proofASCII is a valid Sigsum proof of msg,
// submitted by one of our keys while it was in use.
func (s *Log) VerifyProof(msg []byte, proofASCII []byte) error {
	var pr proof.SigsumProof

	if err := pr.FromASCII(bytes.NewBuffer(proofASCII)); err != nil {
		return fmt.Errorf("couldn't parse proof: %w", err)
	}

	digest := sumcrypto.HashBytes(msg)
	if err := pr.Verify(&digest, s.SubmitKeys, s.Policy); err != nil {
		return fmt.Errorf("%w", err)
	}

	var submitter PubKey

	keyFound := false
	for keyindex, key := range s.Keys {
		if sumcrypto.HashBytes(keyindex[:]) == pr.Leaf.KeyHash {
			keyFound = true
			submitter = key
			break
		}
	}

	if !keyFound {
		return errors.New("couldn't find submit key")
	}

	for _, c := range pr.TreeHead.Cosignatures {
		if c.Timestamp > math.MaxInt64 {
			return fmt.Errorf("invalid timestamp: %d", c.Timestamp)
		}

		if ts := time.Unix(int64(c.Timestamp), 0); !submitter.InUse(ts) {
			return fmt.Errorf("witness cosignature outside of lifetime, %v not in %v",
				ts.Format(time.RFC3339), submitter)
		}
	}

	return nil
}

// InUse reports whether t falls within the lifetime of the key. The
// end date is inclusive.
func (p PubKey) InUse(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End.AddDate(0, 0, 1))
}
