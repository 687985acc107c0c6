package tenants

import "fmt"

// File is the top-level structure of tenants.yaml
type File struct {
	Tenants []Tenant `yaml:"tenants" validate:"dive"`
}

// Tenant is one site of the platform
type Tenant struct {
	ID     int64  `yaml:"id" validate:"required,gt=0"`
	Name   string `yaml:"name" validate:"required"`
	Domain string `yaml:"domain" validate:"required,hostname_rfc1123"`
	Path   string `yaml:"path,omitempty" validate:"omitempty,startswith=/"`
}

// DisplayName renders the tenant the way the admin picker shows it.
// Example: "Main Blog (example.com/)"
func (t Tenant) DisplayName() string {
	return fmt.Sprintf("%s (%s%s)", t.Name, t.Domain, t.path())
}

func (t Tenant) path() string {
	if t.Path == "" {
		return "/"
	}
	return t.Path
}
