// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package library manages the directory of reference firmware images
// and the local copy of the manifest that describes them.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/codeGROOVE-dev/retry"
	"github.com/tillitis/gccverify/internal/data"
	"github.com/tillitis/gccverify/internal/digest"
	"github.com/tillitis/gccverify/internal/manifest"
)

var le = log.New(os.Stderr, "", 0)

func SilenceLogging() {
	le.SetOutput(io.Discard)
}

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
)

type Library struct {
	Dir string

	Client   *http.Client
	Attempts uint
	Delay    time.Duration
	// Show a progress bar while downloading.
	Progress bool
}

func New(dir string) Library {
	return Library{
		Dir:      dir,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Attempts: maxRetries,
		Delay:    initialBackoff,
		Progress: true,
	}
}

// ImagePath is where the reference image called name is kept.
func (l Library) ImagePath(name string) string {
	return filepath.Join(l.Dir, name+data.ImageSuffix)
}

func (l Library) ManifestPath() string {
	return filepath.Join(l.Dir, data.ManifestFile)
}

func (l Library) OldManifestPath() string {
	return filepath.Join(l.Dir, data.OldManifestFile)
}

// LoadManifest reads the local manifest.
func (l Library) LoadManifest() (manifest.Manifest, error) {
	var m manifest.Manifest
	if err := m.FromFile(l.ManifestPath()); err != nil {
		return manifest.Manifest{}, err
	}

	return m, nil
}

// SaveManifest replaces the local manifest with m, keeping the
// previous one as a backup.
func (l Library) SaveManifest(m manifest.Manifest) error {
	return m.ToFile(l.ManifestPath(), l.OldManifestPath())
}

// VerifyImage checks the reference image for img against the digest
// the manifest lists for it.
func (l Library) VerifyImage(img manifest.FirmwareImage) error {
	return digest.VerifyFile(l.ImagePath(img.Name), img.Hash)
}

type Summary struct {
	Verified   []string
	Downloaded []string
	Failed     map[string]error
}

func (s Summary) OK() bool {
	return len(s.Failed) == 0
}

// Update makes sure every image the manifest lists is present and
// matches its digest, downloading the ones that are missing or don't
// match. It carries on past failures and reports them all in the
// summary.
func (l Library) Update(ctx context.Context, m *manifest.Manifest) (Summary, error) {
	if !m.IsLoaded() {
		return Summary{}, manifest.ErrNotLoaded
	}

	if err := m.Validate(); err != nil {
		return Summary{}, err
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return Summary{}, IOError{path: l.Dir, err: err}
	}

	summary := Summary{Failed: map[string]error{}}

	le.Printf("Updating firmware images...\n")

	for _, img := range m.FirmwareImages {
		err := l.VerifyImage(img)
		switch {
		case err == nil:
			le.Printf("%s found and verified.\n", img.Name)
			summary.Verified = append(summary.Verified, img.Name)
			continue
		case errors.Is(err, os.ErrNotExist):
			le.Printf("%s was not found.\n", img.Name)
		default:
			le.Printf("%s does not match manifest.\n", img.Name)
		}

		if err := l.fetchImage(ctx, img); err != nil {
			le.Printf("Failed: %v\n", err)
			summary.Failed[img.Name] = err
			continue
		}

		if err := l.VerifyImage(img); err != nil {
			le.Printf("Downloaded %s does not match manifest.\n", img.Name)
			summary.Failed[img.Name] = err
			continue
		}

		summary.Downloaded = append(summary.Downloaded, img.Name)
	}

	if !summary.OK() {
		return summary, fmt.Errorf("%d of %d images could not be updated", len(summary.Failed), len(m.FirmwareImages))
	}

	return summary, nil
}

func (l Library) fetchImage(ctx context.Context, img manifest.FirmwareImage) error {
	if img.URL == "" {
		return DownloadError{url: img.URL, err: errors.New("no URL in manifest")}
	}

	le.Printf("Downloading %s from %s\n", img.Name, img.URL)

	attempts := l.Attempts
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(func() error {
		return l.download(ctx, img.URL, l.ImagePath(img.Name))
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(l.Delay),
		retry.MaxDelay(maxBackoff),
		retry.LastErrorOnly(true),
	)
}

// download writes at most data.MaxImageSize bytes from url to fn.
// Nothing is written to fn unless the whole body was received.
func (l Library) download(ctx context.Context, url string, fn string) error {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DownloadError{url: url, err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return DownloadError{url: url, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DownloadError{url: url, err: errors.New(resp.Status)}
	}

	var body io.Reader = io.LimitReader(resp.Body, data.MaxImageSize)

	if l.Progress {
		size := resp.ContentLength
		if size < 0 || size > data.MaxImageSize {
			size = data.MaxImageSize
		}

		bar := pb.New64(size).SetTemplate(pb.Full)
		bar.Set(pb.Bytes, true)
		bar.SetWriter(os.Stderr)
		bar.Start()
		defer bar.Finish()

		body = bar.NewProxyReader(body)
	}

	part := fn + ".part"
	f, err := os.Create(part)
	if err != nil {
		return IOError{path: part, err: err}
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(part)
		return DownloadError{url: url, err: err}
	}

	if err := f.Close(); err != nil {
		os.Remove(part)
		return IOError{path: part, err: err}
	}

	if err := os.Rename(part, fn); err != nil {
		os.Remove(part)
		return IOError{path: fn, err: err}
	}

	return nil
}
