// Package tenant provides the static directory of colleges (tenants) a user can belong to.
package tenant

import (
	"fmt"
	"regexp"
)

// Tenant is a college.
type Tenant struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Directory is an immutable, ordered set of tenants.
type Directory struct {
	tenants []Tenant
	byID    map[string]int
}

// NewDirectory builds a directory, rejecting empty, malformed or duplicate entries.
func NewDirectory(tenants []Tenant) (*Directory, error) {
	d := &Directory{
		tenants: make([]Tenant, 0, len(tenants)),
		byID:    make(map[string]int, len(tenants)),
	}
	for i, t := range tenants {
		if !idPattern.MatchString(t.ID) {
			return nil, fmt.Errorf("tenant %d: invalid id %q", i, t.ID)
		}
		if t.Name == "" {
			return nil, fmt.Errorf("tenant %q: name is required", t.ID)
		}
		if _, dup := d.byID[t.ID]; dup {
			return nil, fmt.Errorf("tenant %q: duplicate id", t.ID)
		}
		d.byID[t.ID] = len(d.tenants)
		d.tenants = append(d.tenants, t)
	}
	if len(d.tenants) == 0 {
		return nil, fmt.Errorf("directory has no tenants")
	}
	return d, nil
}

// Lookup returns the tenant with the given id.
func (d *Directory) Lookup(id string) (Tenant, bool) {
	i, ok := d.byID[id]
	if !ok {
		return Tenant{}, false
	}
	return d.tenants[i], true
}

// Contains reports whether id names a known tenant.
func (d *Directory) Contains(id string) bool {
	_, ok := d.byID[id]
	return ok
}

// DisplayName returns the tenant's name, or "" when id is unknown or empty.
func (d *Directory) DisplayName(id string) string {
	t, _ := d.Lookup(id)
	return t.Name
}

// List returns the tenants in directory order.
func (d *Directory) List() []Tenant {
	out := make([]Tenant, len(d.tenants))
	copy(out, d.tenants)
	return out
}

// Len returns the number of tenants.
func (d *Directory) Len() int {
	return len(d.tenants)
}
