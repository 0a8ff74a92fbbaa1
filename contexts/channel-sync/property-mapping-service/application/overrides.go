package application

import (
	"fmt"
	"os"

	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"

	"gopkg.in/yaml.v3"
)

// OverridesFile is the on-disk shape of the per-property overrides document.
type OverridesFile struct {
	Properties map[string]entities.CodeOverrides `yaml:"properties"`
}

// LoadOverrides reads the optional overrides YAML. A missing path yields an
// empty set; a present but unreadable file is an error.
func LoadOverrides(path string) (OverridesFile, error) {
	if path == "" {
		return OverridesFile{Properties: map[string]entities.CodeOverrides{}}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return OverridesFile{}, fmt.Errorf("read overrides file: %w", err)
	}
	var file OverridesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return OverridesFile{}, fmt.Errorf("parse overrides file: %w", err)
	}
	if file.Properties == nil {
		file.Properties = map[string]entities.CodeOverrides{}
	}
	return file, nil
}

// For returns the overrides of one property, empty when absent.
func (f OverridesFile) For(propertyID string) entities.CodeOverrides {
	return f.Properties[propertyID]
}
