package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v2"
)

func TestWriteThenVerifyRoundTrip(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "fingerprints.yaml")
	var stdout, stderr bytes.Buffer

	if code := run([]string{"-manifest", manifest, "-write"}, &stdout, &stderr); code != 0 {
		t.Fatalf("write exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "wrote") {
		t.Fatalf("write output %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"-manifest", manifest}, &stdout, &stderr); code != 0 {
		t.Fatalf("verify exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "fingerprints match") {
		t.Fatalf("verify output %q", stdout.String())
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "fingerprints.yaml")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-manifest", manifest, "-write"}, &stdout, &stderr); code != 0 {
		t.Fatalf("write exited %d: %s", code, stderr.String())
	}

	payload, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(payload, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	m.Fingerprints["Instance@1.0"] = "0000"
	m.Fingerprints["Ghost@9.9"] = "dead"
	tampered, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("encode manifest: %v", err)
	}
	if err := os.WriteFile(manifest, tampered, 0o640); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"-manifest", manifest}, &stdout, &stderr); code != 1 {
		t.Fatalf("drifted verify exited %d", code)
	}
	out := stderr.String()
	if !strings.Contains(out, "Instance@1.0") || !strings.Contains(out, "does not match pinned") {
		t.Fatalf("missing mismatch line: %q", out)
	}
	if !strings.Contains(out, "Ghost@9.9: pinned but not registered") {
		t.Fatalf("missing stale pin line: %q", out)
	}
}

func TestVerifyReportsUnpinnedTypes(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "fingerprints.yaml")
	if err := os.WriteFile(manifest, []byte("fingerprints:\n  {}\n"), 0o640); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-manifest", manifest}, &stdout, &stderr); code != 1 {
		t.Fatalf("verify exited %d", code)
	}
	if !strings.Contains(stderr.String(), "registered but not pinned") {
		t.Fatalf("missing unpinned line: %q", stderr.String())
	}
}

func TestMissingManifestFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-manifest", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr); code != 1 {
		t.Fatalf("exited %d", code)
	}
}

func TestBadFlagExitsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-definitely-not-a-flag"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exited %d", code)
	}
}

func TestCheckedInManifestMatchesRegistry(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-manifest", filepath.Join("..", "..", "docs", "schema", "fingerprints.yaml")}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("pinned manifest drifted (exit %d): %s", code, stderr.String())
	}
}

func TestDiffFingerprintsIsSorted(t *testing.T) {
	drift := diffFingerprints(
		map[string]string{"B@1.0": "x", "A@1.0": "y"},
		map[string]string{"C@1.0": "z"},
	)
	if len(drift) != 3 {
		t.Fatalf("drift = %v", drift)
	}
	for i := 1; i < len(drift); i++ {
		if drift[i-1] > drift[i] {
			t.Fatalf("unsorted drift: %v", drift)
		}
	}
}
