// Command registry-check guards the wire contract: it computes a schema
// fingerprint for every registered entity type and compares the result
// against a pinned manifest. A drifted fingerprint means the type's fields
// or version changed without a coordinated version bump, which would break
// rolling upgrades between service instances.
//
// Bootstrap or refresh the manifest with -write after an intentional
// change; CI runs the default verify mode.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"fleetcore/pkg/compute"
	"fleetcore/pkg/objects"
)

var exitFunc = os.Exit

// Manifest pins the expected schema fingerprints keyed by "Type@version".
type Manifest struct {
	Fingerprints map[string]string `yaml:"fingerprints"`
}

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	manifestPath := fs.String("manifest", "docs/schema/fingerprints.yaml", "path to the pinned fingerprint manifest")
	write := fs.Bool("write", false, "write the current fingerprints to the manifest instead of verifying")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	current, err := currentFingerprints(compute.NewRegistry())
	if err != nil {
		fmt.Fprintf(stderr, "compute fingerprints: %v\n", err)
		return 1
	}

	if *write {
		if err := writeManifest(*manifestPath, current); err != nil {
			fmt.Fprintf(stderr, "write manifest: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %d fingerprints to %s\n", len(current), *manifestPath)
		return 0
	}

	pinned, err := readManifest(*manifestPath)
	if err != nil {
		fmt.Fprintf(stderr, "read manifest: %v\n", err)
		return 1
	}
	drift := diffFingerprints(pinned, current)
	if len(drift) == 0 {
		fmt.Fprintf(stdout, "%d fingerprints match %s\n", len(current), *manifestPath)
		return 0
	}
	for _, line := range drift {
		fmt.Fprintln(stderr, line)
	}
	fmt.Fprintf(stderr, "%d fingerprint mismatches; bump the type version or run -write after a coordinated change\n", len(drift))
	return 1
}

func currentFingerprints(reg *objects.Registry) (map[string]string, error) {
	out := make(map[string]string)
	for _, name := range reg.TypeNames() {
		for _, version := range reg.Versions(name) {
			fp, err := reg.Fingerprint(name, version)
			if err != nil {
				return nil, err
			}
			out[name+"@"+version] = fp
		}
	}
	return out, nil
}

func readManifest(path string) (map[string]string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m.Fingerprints == nil {
		return nil, fmt.Errorf("%s: no fingerprints section", path)
	}
	return m.Fingerprints, nil
}

func writeManifest(path string, fingerprints map[string]string) error {
	payload, err := yaml.Marshal(Manifest{Fingerprints: fingerprints})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o640)
}

// diffFingerprints reports pinned-vs-current mismatches, missing pins, and
// unpinned types, as sorted human-readable lines.
func diffFingerprints(pinned, current map[string]string) []string {
	var drift []string
	for key, want := range pinned {
		got, ok := current[key]
		if !ok {
			drift = append(drift, fmt.Sprintf("%s: pinned but not registered", key))
			continue
		}
		if got != want {
			drift = append(drift, fmt.Sprintf("%s: fingerprint %s does not match pinned %s", key, got, want))
		}
	}
	for key := range current {
		if _, ok := pinned[key]; !ok {
			drift = append(drift, fmt.Sprintf("%s: registered but not pinned", key))
		}
	}
	sort.Strings(drift)
	return drift
}
