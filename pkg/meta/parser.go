package meta

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/debgen/debgen/pkg/generator"
)

// Parser loads and validates package descriptors.
type Parser struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewParser creates a descriptor parser with the built-in schema registered.
func NewParser() *Parser {
	return &Parser{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// LoadPackage reads the descriptor at path, which may be either the
// package.yaml file itself or the directory containing it. The raw document
// is schema-checked, decoded, and struct-validated before being returned.
func (p *Parser) LoadPackage(ctx context.Context, path string) (*Package, error) {
	descriptorPath := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		descriptorPath = filepath.Join(path, DescriptorFilename)
	}

	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, generator.NewMetadataError(
			fmt.Sprintf("failed to read package descriptor %s", descriptorPath), err)
	}

	// Schema check against the raw document first, so errors reference the
	// descriptor's own field names rather than Go struct fields.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, generator.NewMetadataError(
			fmt.Sprintf("failed to parse %s", descriptorPath), err).
			WithCode(generator.ErrCodeValidation)
	}
	if err := p.schemas.ValidateAgainstSchema(ctx, "package", raw); err != nil {
		return nil, generator.NewMetadataError(
			fmt.Sprintf("descriptor %s violates the package schema", descriptorPath), err).
			WithCode(generator.ErrCodeValidation)
	}

	var pkg Package
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return nil, generator.NewMetadataError(
			fmt.Sprintf("failed to decode %s", descriptorPath), err).
			WithCode(generator.ErrCodeValidation)
	}
	if err := p.validator.Struct(&pkg); err != nil {
		return nil, generator.NewMetadataError(
			fmt.Sprintf("descriptor %s failed validation", descriptorPath), err).
			WithCode(generator.ErrCodeValidation).
			WithPackage(pkg.Name)
	}

	dir, err := filepath.Abs(filepath.Dir(descriptorPath))
	if err != nil {
		return nil, generator.NewMetadataError("failed to resolve package directory", err)
	}
	pkg.Dir = dir

	return &pkg, nil
}

// FindPackages walks root for package descriptors and loads each one.
// Hidden directories and debian/ output trees are skipped. Packages are
// returned in descriptor-path order so every downstream stage sees a
// deterministic input order. Finding no packages is not an error here; the
// caller decides whether an empty release is fatal.
func (p *Parser) FindPackages(ctx context.Context, root string) ([]*Package, error) {
	var descriptorPaths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || name == "debian") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == DescriptorFilename {
			descriptorPaths = append(descriptorPaths, path)
		}
		return nil
	})
	if err != nil {
		return nil, generator.NewMetadataError(
			fmt.Sprintf("failed to scan %s for packages", root), err)
	}
	sort.Strings(descriptorPaths)

	packages := make([]*Package, 0, len(descriptorPaths))
	seen := make(map[string]string)
	for _, dp := range descriptorPaths {
		pkg, err := p.LoadPackage(ctx, dp)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[pkg.Name]; dup {
			return nil, generator.NewMetadataError(
				fmt.Sprintf("package %q declared by both %s and %s", pkg.Name, prev, dp), nil).
				WithPackage(pkg.Name)
		}
		seen[pkg.Name] = dp
		packages = append(packages, pkg)
	}
	return packages, nil
}
