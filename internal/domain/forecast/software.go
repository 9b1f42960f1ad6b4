package forecast

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type softwareFile struct {
	Software []Software `yaml:"software"`
}

// LoadSoftwareFile reads target system descriptors from YAML.
func LoadSoftwareFile(path string) ([]Software, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read software file: %w", err)
	}
	return ParseSoftware(data)
}

// ParseSoftware parses a "software:" list and validates each entry.
func ParseSoftware(data []byte) ([]Software, error) {
	var f softwareFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse software yaml: %w", err)
	}
	seen := make(map[string]bool, len(f.Software))
	for i := range f.Software {
		sw := &f.Software[i]
		sw.ServiceType = strings.ToLower(strings.TrimSpace(sw.ServiceType))
		if sw.Name == "" {
			return nil, fmt.Errorf("software %d: name is required", i+1)
		}
		if sw.ServiceURL == "" {
			return nil, fmt.Errorf("software %s: serviceUrl is required", sw.Name)
		}
		if seen[sw.Name] {
			return nil, fmt.Errorf("software %s: duplicate name", sw.Name)
		}
		seen[sw.Name] = true
	}
	return f.Software, nil
}

// SelectSoftware returns the named entries, or all of them when names is empty.
func SelectSoftware(all []Software, names []string) ([]Software, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Software, len(all))
	for _, sw := range all {
		byName[sw.Name] = sw
	}
	out := make([]Software, 0, len(names))
	for _, n := range names {
		sw, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown software %q", n)
		}
		out = append(out, sw)
	}
	return out, nil
}
