package tenants

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Loader reads the tenant list from a YAML file
type Loader struct {
	filePath string
}

// NewLoader creates a new tenants loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file being loaded
func (l *Loader) Path() string { return l.filePath }

// Load reads, parses and validates the tenants file
func (l *Loader) Load() ([]Tenant, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates tenants YAML
func Parse(data []byte) ([]Tenant, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tenants yaml: %w", err)
	}

	for i := range file.Tenants {
		t := &file.Tenants[i]
		t.Domain = strings.ToLower(strings.TrimSpace(t.Domain))
		t.Name = strings.TrimSpace(t.Name)
	}

	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid tenants file: %w", err)
	}

	seen := make(map[int64]struct{}, len(file.Tenants))
	for _, t := range file.Tenants {
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("invalid tenants file: duplicate tenant id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
	}

	return file.Tenants, nil
}
