// Package catalog loads and validates the Ozwald service catalog: the
// YAML file declaring hosts, realms, service definitions (with their
// varieties, profiles and locker requirements) and persistent services.
//
// The catalog is validated fully at load time so the reconciliation
// controller can assume there are no dangling references.
package catalog

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ozwald-dev/ozwald/models"
)

// PersistentService declares a service instance the provisioner starts
// at boot and drains at graceful shutdown.
type PersistentService struct {
	Service string `yaml:"service" validate:"required"`
	Variety string `yaml:"variety"`
	Profile string `yaml:"profile"`
	Host    string `yaml:"host" validate:"required"`
}

// Realm groups service definitions, networks and a vault namespace.
type Realm struct {
	Name               string                     `yaml:"-"`
	Networks           []string                   `yaml:"networks"`
	Services           []models.ServiceDefinition `yaml:"service-definitions" validate:"dive"`
	PersistentServices []PersistentService        `yaml:"persistent-services" validate:"dive"`
}

// Catalog is the fully parsed and validated catalog file.
type Catalog struct {
	Hosts  []models.Host    `yaml:"hosts" validate:"required,dive"`
	Realms map[string]Realm `yaml:"realms" validate:"required"`
}

// Load reads, parses and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for name, realm := range c.Realms {
		realm.Name = name
		for i := range realm.Services {
			realm.Services[i].Realm = name
		}
		c.Realms[name] = realm
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Catalog) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	hostNames := make(map[string]bool)
	for _, h := range c.Hosts {
		if hostNames[h.Name] {
			return fmt.Errorf("duplicate host %q", h.Name)
		}
		hostNames[h.Name] = true
		if h.Hardware != models.HardwareCPUOnly && h.VRAMBytes == 0 {
			return fmt.Errorf("host %q declares %s hardware but no VRAM", h.Name, h.Hardware)
		}
	}

	for realmName, realm := range c.Realms {
		networks := make(map[string]bool)
		for _, n := range realm.Networks {
			networks[n] = true
		}

		serviceNames := make(map[string]bool)
		for _, sd := range realm.Services {
			if serviceNames[sd.Name] {
				return fmt.Errorf("realm %q: duplicate service definition %q", realmName, sd.Name)
			}
			serviceNames[sd.Name] = true

			for _, n := range sd.Networks {
				if !networks[n] {
					return fmt.Errorf("realm %q: service %q references undeclared network %q",
						realmName, sd.Name, n)
				}
			}
		}

		for _, ps := range realm.PersistentServices {
			sd := c.Service(realmName, ps.Service)
			if sd == nil {
				return fmt.Errorf("realm %q: persistent service references unknown definition %q",
					realmName, ps.Service)
			}
			if ps.Variety != "" {
				if _, ok := sd.Varieties[ps.Variety]; !ok {
					return fmt.Errorf("realm %q: persistent service %q references unknown variety %q",
						realmName, ps.Service, ps.Variety)
				}
			}
			if ps.Profile != "" {
				if _, ok := sd.Profiles[ps.Profile]; !ok {
					return fmt.Errorf("realm %q: persistent service %q references unknown profile %q",
						realmName, ps.Service, ps.Profile)
				}
			}
			if !hostNames[ps.Host] {
				return fmt.Errorf("realm %q: persistent service %q references unknown host %q",
					realmName, ps.Service, ps.Host)
			}
		}
	}

	return nil
}

// Host returns the host with the given name, or nil.
func (c *Catalog) Host(name string) *models.Host {
	for i := range c.Hosts {
		if c.Hosts[i].Name == name {
			return &c.Hosts[i]
		}
	}
	return nil
}

// Service returns the service definition by realm and name, or nil.
func (c *Catalog) Service(realm, name string) *models.ServiceDefinition {
	r, ok := c.Realms[realm]
	if !ok {
		return nil
	}
	for i := range r.Services {
		if r.Services[i].Name == name {
			return &r.Services[i]
		}
	}
	return nil
}
