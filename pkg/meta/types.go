package meta

import (
	"fmt"
)

// DescriptorFilename is the file name of a package descriptor.
const DescriptorFilename = "package.yaml"

// ChangelogFilename is the file name of the optional per-package changelog,
// resolved relative to the descriptor's directory.
const ChangelogFilename = "CHANGELOG.md"

// SetupFilename is the optional per-package build configuration inspected by
// the ament_python build type, resolved relative to the descriptor's
// directory.
const SetupFilename = "setup.yaml"

// Known build types.
const (
	BuildTypeCMake       = "cmake"
	BuildTypeCatkin      = "catkin"
	BuildTypeAmentCMake  = "ament_cmake"
	BuildTypeAmentPython = "ament_python"
)

// URLKindWebsite marks the URL selected as the package homepage.
const URLKindWebsite = "website"

// Person is a maintainer or author with a contact address.
type Person struct {
	Name  string `yaml:"name" validate:"required"`
	Email string `yaml:"email" validate:"required,email"`
}

// String renders the person in "Name <email>" form.
func (p Person) String() string {
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

// License is a declared license: a name, optionally backed by a license text
// file relative to the package directory.
type License struct {
	Name string `yaml:"name,omitempty"`
	File string `yaml:"file,omitempty"`
}

// URL is a typed project link.
type URL struct {
	Kind    string `yaml:"kind,omitempty"`
	Address string `yaml:"address" validate:"required,url"`
}

// Operator is a version-constraint comparison operator.
type Operator string

const (
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpGt  Operator = "gt"
)

// Constraint is one operator+value version constraint on a dependency.
type Constraint struct {
	Operator Operator
	Value    string
}

// Dependency is one entry of a role-partitioned dependency list. At most one
// value per comparison operator.
type Dependency struct {
	Name       string `yaml:"name" validate:"required"`
	VersionLt  string `yaml:"version_lt,omitempty"`
	VersionLte string `yaml:"version_lte,omitempty"`
	VersionEq  string `yaml:"version_eq,omitempty"`
	VersionGte string `yaml:"version_gte,omitempty"`
	VersionGt  string `yaml:"version_gt,omitempty"`

	// Condition is an optional Starlark guard expression. An empty condition
	// always passes.
	Condition string `yaml:"condition,omitempty"`

	// EvaluatedCondition caches the guard result for this run. Nil means not
	// yet evaluated.
	EvaluatedCondition *bool `yaml:"-"`
}

// Constraints returns the declared version constraints in fixed operator
// order (lt, lte, eq, gte, gt).
func (d *Dependency) Constraints() []Constraint {
	var cs []Constraint
	for _, pair := range []struct {
		op  Operator
		val string
	}{
		{OpLt, d.VersionLt},
		{OpLte, d.VersionLte},
		{OpEq, d.VersionEq},
		{OpGte, d.VersionGte},
		{OpGt, d.VersionGt},
	} {
		if pair.val != "" {
			cs = append(cs, Constraint{Operator: pair.op, Value: pair.val})
		}
	}
	return cs
}

// Passes reports whether the dependency participates in resolution. A
// dependency with an unevaluated guard is treated as passing, matching the
// behaviour of descriptors without conditions.
func (d *Dependency) Passes() bool {
	return d.EvaluatedCondition == nil || *d.EvaluatedCondition
}

// Package is the declarative metadata of one package. It is read-only to the
// pipeline; the loader is the only writer.
type Package struct {
	Name        string    `yaml:"name" validate:"required"`
	Version     string    `yaml:"version" validate:"required"`
	Description string    `yaml:"description" validate:"required"`
	Maintainers []Person  `yaml:"maintainers" validate:"required,min=1,dive"`
	Licenses    []License `yaml:"licenses,omitempty"`
	URLs        []URL     `yaml:"urls,omitempty" validate:"dive"`

	RunDepends             []Dependency `yaml:"run_depends,omitempty" validate:"dive"`
	BuildDepends           []Dependency `yaml:"build_depends,omitempty" validate:"dive"`
	BuildtoolDepends       []Dependency `yaml:"buildtool_depends,omitempty" validate:"dive"`
	BuildtoolExportDepends []Dependency `yaml:"buildtool_export_depends,omitempty" validate:"dive"`
	TestDepends            []Dependency `yaml:"test_depends,omitempty" validate:"dive"`
	Replaces               []Dependency `yaml:"replaces,omitempty" validate:"dive"`
	Conflicts              []Dependency `yaml:"conflicts,omitempty" validate:"dive"`

	BuildType string `yaml:"build_type" validate:"required"`

	// Dir is the directory the descriptor was loaded from. Changelog,
	// license files, and setup.yaml are resolved relative to it.
	Dir string `yaml:"-"`
}

// PrimaryMaintainer returns the first declared maintainer.
func (p *Package) PrimaryMaintainer() Person {
	return p.Maintainers[0]
}

// MaintainerStrings returns every maintainer in "Name <email>" form.
func (p *Package) MaintainerStrings() []string {
	out := make([]string, 0, len(p.Maintainers))
	for _, m := range p.Maintainers {
		out = append(out, m.String())
	}
	return out
}

// Homepage returns the first website-typed URL, or "" when none is declared.
func (p *Package) Homepage() string {
	for _, u := range p.URLs {
		if u.Kind == URLKindWebsite {
			return u.Address
		}
	}
	return ""
}

// AllDependencies returns pointers to every dependency of every role, so the
// condition evaluator can cache guard results in place.
func (p *Package) AllDependencies() []*Dependency {
	var all []*Dependency
	for _, list := range [][]Dependency{
		p.RunDepends,
		p.BuildDepends,
		p.BuildtoolDepends,
		p.BuildtoolExportDepends,
		p.TestDepends,
		p.Replaces,
		p.Conflicts,
	} {
		for i := range list {
			all = append(all, &list[i])
		}
	}
	return all
}
