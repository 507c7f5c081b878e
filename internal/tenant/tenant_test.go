package tenant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

func TestBuiltin(t *testing.T) {
	d := Builtin()

	assert.Equal(t, 15, d.Len())
	assert.Equal(t, "Stanford University", d.DisplayName("stanford"))
	assert.Equal(t, "Massachusetts Institute of Technology", d.DisplayName("mit"))
	assert.Equal(t, "Manipal Academy of Higher Education", d.DisplayName("manipal"))

	list := d.List()
	assert.Equal(t, "stanford", list[0].ID)
	assert.Equal(t, "manipal", list[len(list)-1].ID)
}

func TestLookup(t *testing.T) {
	d := Builtin()

	got, ok := d.Lookup("iitkgp")
	require.True(t, ok)
	assert.Equal(t, "Indian Institute of Technology Kharagpur", got.Name)

	_, ok = d.Lookup("hogwarts")
	assert.False(t, ok)
	assert.False(t, d.Contains(""))
	assert.Empty(t, d.DisplayName("hogwarts"))
}

func TestListIsACopy(t *testing.T) {
	d := Builtin()
	list := d.List()
	list[0].Name = "changed"
	assert.Equal(t, "Stanford University", d.DisplayName("stanford"))
}

func TestNewDirectoryRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		tenants []Tenant
	}{
		{"empty", nil},
		{"missing id", []Tenant{{Name: "Nameless"}}},
		{"uppercase id", []Tenant{{ID: "MIT", Name: "MIT"}}},
		{"missing name", []Tenant{{ID: "mit"}}},
		{"duplicate", []Tenant{{ID: "mit", Name: "A"}, {ID: "mit", Name: "B"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirectory(tt.tenants)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	d, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15, d.Len())

	custom := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(custom, []byte("tenants:\n  - id: uoft\n    name: University of Toronto\n"), 0o600))
	d, err = Load(custom)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "University of Toronto", d.DisplayName("uoft"))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("tenants:\n  - id: Bad Id\n    name: x\n"), 0o600))
	_, err = Load(broken)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTenantDirectoryInvalid, errors.CodeOf(err))
}
