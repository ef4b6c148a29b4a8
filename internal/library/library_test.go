// SPDX-FileCopyrightText: 2025 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tillitis/gccverify/internal/digest"
	"github.com/tillitis/gccverify/internal/manifest"
)

func init() {
	SilenceLogging()
}

const stockImage = ":100000000C9461000C947E000C947E000C947E0095\n:00000001FF\n"

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func testLibrary(t *testing.T) Library {
	t.Helper()

	l := New(t.TempDir())
	l.Progress = false
	l.Delay = 0

	return l
}

func testManifest(url string) manifest.Manifest {
	return manifest.Manifest{
		Timestamp: 1500000000,
		FirmwareImages: []manifest.FirmwareImage{
			{Name: "stock-1.0", URL: url + "/stock-1.0.hex", Hash: hashOf(stockImage), Permitted: true},
		},
	}
}

func writeFile(t *testing.T, fn string, content string) {
	t.Helper()

	if err := os.WriteFile(fn, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImagePath(t *testing.T) {
	l := New("lib")
	if got, want := l.ImagePath("stock-1.0"), filepath.Join("lib", "stock-1.0.hex"); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUpdateKeepsVerifiedImage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(stockImage))
	}))
	defer srv.Close()

	l := testLibrary(t)
	m := testManifest(srv.URL)
	writeFile(t, l.ImagePath("stock-1.0"), stockImage)

	summary, err := l.Update(context.Background(), &m)
	if err != nil {
		t.Fatal(err)
	}

	if len(summary.Verified) != 1 || len(summary.Downloaded) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if hits.Load() != 0 {
		t.Fatal("verified image was downloaded again")
	}
}

func TestUpdateDownloadsMissingAndMismatching(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(stockImage))
	}))
	defer srv.Close()

	l := testLibrary(t)
	m := testManifest(srv.URL)
	m.FirmwareImages = append(m.FirmwareImages, manifest.FirmwareImage{
		Name: "stock-1.1", URL: srv.URL + "/stock-1.1.hex", Hash: hashOf(stockImage), Permitted: true,
	})

	writeFile(t, l.ImagePath("stock-1.1"), "tampered")

	summary, err := l.Update(context.Background(), &m)
	if err != nil {
		t.Fatal(err)
	}

	if len(summary.Downloaded) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	for _, img := range m.FirmwareImages {
		if !digest.Verify(l.ImagePath(img.Name), img.Hash) {
			t.Fatalf("%v not verified after update", img.Name)
		}
	}
}

func TestUpdateReportsBadDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not the image you are looking for"))
	}))
	defer srv.Close()

	l := testLibrary(t)
	m := testManifest(srv.URL)

	summary, err := l.Update(context.Background(), &m)
	if err == nil {
		t.Fatal("expected error")
	}

	if !errors.Is(summary.Failed["stock-1.0"], digest.ErrHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", summary.Failed["stock-1.0"])
	}
}

func TestUpdateRetriesDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(stockImage))
	}))
	defer srv.Close()

	l := testLibrary(t)
	m := testManifest(srv.URL)

	if _, err := l.Update(context.Background(), &m); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 3 {
		t.Fatalf("%d requests, want 3", hits.Load())
	}
}

func TestUpdateGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	l := testLibrary(t)
	l.Attempts = 2
	m := testManifest(srv.URL)

	summary, err := l.Update(context.Background(), &m)
	if err == nil {
		t.Fatal("expected error")
	}

	var dlErr DownloadError
	if !errors.As(summary.Failed["stock-1.0"], &dlErr) {
		t.Fatalf("expected DownloadError, got %v", summary.Failed["stock-1.0"])
	}

	if _, err := os.Stat(l.ImagePath("stock-1.0")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("failed download left an image behind")
	}
}

func TestUpdateNeedsManifest(t *testing.T) {
	l := testLibrary(t)

	if _, err := l.Update(context.Background(), &manifest.Manifest{}); !errors.Is(err, manifest.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestSaveManifestKeepsBackup(t *testing.T) {
	l := testLibrary(t)

	old := testManifest("https://example.org")
	if err := l.SaveManifest(old); err != nil {
		t.Fatal(err)
	}

	newer := testManifest("https://example.org")
	newer.Timestamp++
	if err := l.SaveManifest(newer); err != nil {
		t.Fatal(err)
	}

	got, err := l.LoadManifest()
	if err != nil {
		t.Fatal(err)
	}
	if got.Timestamp != newer.Timestamp {
		t.Fatalf("loaded timestamp %v, want %v", got.Timestamp, newer.Timestamp)
	}

	var backup manifest.Manifest
	if err := backup.FromFile(l.OldManifestPath()); err != nil {
		t.Fatal(err)
	}
	if backup.Timestamp != old.Timestamp {
		t.Fatalf("backup timestamp %v, want %v", backup.Timestamp, old.Timestamp)
	}
}

func TestUpdateRefusesPathInImageName(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(stockImage))
	}))
	defer srv.Close()

	l := testLibrary(t)
	m := testManifest(srv.URL)
	m.FirmwareImages[0].Name = "../escaped"

	if _, err := l.Update(context.Background(), &m); !errors.Is(err, manifest.ErrImageName) {
		t.Fatalf("expected ErrImageName, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("image downloaded for a name with a path")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(l.Dir), "escaped.hex")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file written outside the library: %v", err)
	}
}
