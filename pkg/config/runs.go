package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"signal-core/internal/driver"
)

// RunsFile is the YAML document declaring the runs started at boot.
type RunsFile struct {
	Runs []driver.RunSpec `yaml:"runs"`
}

// LoadRuns parses the runs file. A missing path returns an empty list so the
// core can start with the control API only.
func LoadRuns(path string) ([]driver.RunSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runs file: %w", err)
	}
	var doc RunsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse runs file %s: %w", path, err)
	}
	seen := make(map[string]bool, len(doc.Runs))
	for _, spec := range doc.Runs {
		if seen[spec.ID] {
			return nil, fmt.Errorf("runs file %s: duplicate run id %q", path, spec.ID)
		}
		seen[spec.ID] = true
	}
	return doc.Runs, nil
}
