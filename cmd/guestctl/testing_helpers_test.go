package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshuapare/guestkit/vfs/xcontent"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large outputs do not block on the pipe.
	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// resetFlags restores the global flags to their defaults
func resetFlags() {
	verbose, quiet, jsonOut, logDir = false, false, false, ""
	heapsDump, heapsStats, heapsAllocs = false, false, nil
	lsRecursive = false
	extractTitleID, extractContentType, extractDisplayName = "", "", ""
	extractLicenses, extractNoHeader = nil, false
}

// writeTestPackage creates a small zip content package with a LIVE header
// for title 4D5307E6 and licenses 0x1 and 0x4
func writeTestPackage(t *testing.T) string {
	t.Helper()
	h := xcontent.ContainerHeader{
		Signature:   xcontent.SignatureLIVE,
		ContentType: xcontent.ContentMarketplace,
		TitleID:     0x4D5307E6,
		DisplayName: "Map Pack",
	}
	h.Licenses[0] = xcontent.License{Bits: 0x1, Flags: 1}
	h.Licenses[1] = xcontent.License{Bits: 0x4, Flags: 1}
	h.Licenses[2] = xcontent.License{Bits: 0x8}
	header, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("encode package header: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dlc.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, data := range map[string]string{
		xcontent.ContainerHeaderMember: string(header),
		"default.xex":                  "XEX2",
		"maps/level1.map":              "level-one",
		"maps/art/sky.dds":             "sky",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatalf("write member: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close package: %v", err)
	}
	return path
}

// assertJSON checks that output is valid JSON and decodes it into v
func assertJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
