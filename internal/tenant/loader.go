package tenant

import (
	"embed"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

//go:embed builtin/colleges.yaml
var builtinFS embed.FS

type directoryFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Builtin returns the directory compiled into the binary.
func Builtin() *Directory {
	data, err := builtinFS.ReadFile("builtin/colleges.yaml")
	if err != nil {
		panic("tenant: embedded directory missing: " + err.Error())
	}
	d, err := Parse(data)
	if err != nil {
		panic("tenant: embedded directory invalid: " + err.Error())
	}
	return d
}

// Parse decodes a YAML directory document.
func Parse(data []byte) (*Directory, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return NewDirectory(file.Tenants)
}

// LoadFile reads a directory from a YAML file.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read tenant directory", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTenantDirectoryInvalid, "invalid tenant directory "+path, err).
			WithKind(errors.KindInvalid).
			WithSuggestion("Each entry needs a lowercase id and a name under a top-level 'tenants' list")
	}
	return d, nil
}

// Load returns the directory at path, or the built-in one when path is empty.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}
