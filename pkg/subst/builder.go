package subst

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/debgen/debgen/pkg/changelog"
	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/meta"
	"github.com/debgen/debgen/pkg/resolve"
	"github.com/debgen/debgen/pkg/telemetry"
)

// Substitutions is the fully-resolved binding set for one package (or for
// the synthetic release-unit header). Every field is ready for template
// expansion; no unresolved placeholders remain.
type Substitutions struct {
	Name               string
	Version            string
	Description        string
	Homepage           string
	DebianInc          string
	Format             string
	Package            string
	InstallationPrefix string
	Depends            []string
	BuildDepends       []string
	Replaces           []string
	Conflicts          []string
	Distribution       string
	Date               string
	Year               string
	Maintainer         string
	Maintainers        string
	Changelogs         []changelog.Entry
	DebhelperVersion   int
	Copyright          string
	PassInstallScripts bool
}

// BuildParams are the target-platform inputs of one substitution build.
type BuildParams struct {
	OSName        string
	OSVersion     string
	Channel       string
	InstallPrefix string

	// ReleaseInc is the externally supplied release increment appended as
	// "-<inc>" in non-native mode.
	ReleaseInc int

	// Native selects the native source format (no increment suffix, no
	// upstream/patch split) over quilt.
	Native bool

	// PeerNames are the raw names of every package in the same release
	// unit, eligible for direct dependency linking.
	PeerNames []string

	ReleaserHistory changelog.ReleaserHistory
}

// licenseSeparator is the visual divider between concatenated license texts.
var licenseSeparator = "\n" + strings.Repeat("=", 80) + "\n\n"

// operatorTokens maps version-constraint operators to Debian relation
// tokens.
var operatorTokens = map[meta.Operator]string{
	meta.OpLt:  "<<",
	meta.OpLte: "<=",
	meta.OpEq:  "=",
	meta.OpGte: ">=",
	meta.OpGt:  ">>",
}

// Builder produces one Substitutions value per package.
type Builder struct {
	rc         *generator.RunContext
	resolver   *resolve.Resolver
	conditions *meta.ConditionEvaluator
	logger     *telemetry.Logger
}

// NewBuilder creates a substitution builder sharing one resolver (and thus
// one memoization cache) across every package of the run.
func NewBuilder(rc *generator.RunContext, resolver *resolve.Resolver) *Builder {
	return &Builder{
		rc:         rc,
		resolver:   resolver,
		conditions: meta.NewConditionEvaluator(0),
		logger:     rc.ComponentLogger("subst"),
	}
}

// Build assembles the substitution map for one package. Metadata problems
// (unsupported build type, missing license file) are fatal; dependency
// resolution degrades per key and never fails the build.
func (b *Builder) Build(ctx context.Context, pkg *meta.Package, params BuildParams) (*Substitutions, error) {
	logger := b.logger.WithPackage(pkg.Name)

	subs := &Substitutions{
		Name:               pkg.Name,
		Version:            pkg.Version,
		Description:        FormatDescription(pkg.Description),
		Package:            SanitizePackageName(pkg.Name),
		InstallationPrefix: params.InstallPrefix,
		Distribution:       params.OSVersion,
	}

	subs.Homepage = pkg.Homepage()
	if subs.Homepage == "" {
		logger.Warn("no homepage set, defaulting to ''")
	}

	if params.Native {
		subs.DebianInc = ""
		subs.Format = "native"
	} else {
		subs.DebianInc = fmt.Sprintf("-%d", params.ReleaseInc)
		subs.Format = "quilt"
	}

	// Only dependencies whose platform guard holds participate.
	env := meta.Environment{OS: params.OSName, OSVersion: params.OSVersion, Channel: params.Channel}
	if err := b.conditions.EvaluateConditions(ctx, pkg, env); err != nil {
		return nil, err
	}
	depends := passing(append(append([]meta.Dependency{}, pkg.RunDepends...), pkg.BuildtoolExportDepends...))
	buildDepends := passing(concat(pkg.BuildDepends, pkg.BuildtoolDepends, pkg.TestDepends))
	replaces := passing(pkg.Replaces)
	conflicts := passing(pkg.Conflicts)

	// Replaces/conflicts declarations are release-local names and must not
	// go through external lookup.
	peers := make(map[string]string, len(params.PeerNames))
	for _, name := range params.PeerNames {
		peers[name] = SanitizePackageName(name)
	}
	for _, dep := range append(append([]meta.Dependency{}, replaces...), conflicts...) {
		peers[dep.Name] = SanitizePackageName(dep.Name)
	}

	keys := dependencyNames(concat(depends, buildDepends, replaces, conflicts))
	resolved := b.resolver.Resolve(ctx, keys, params.OSName, params.OSVersion, params.Channel, peers)

	subs.Depends = formatDepends(depends, resolved)
	subs.BuildDepends = formatDepends(buildDepends, resolved)
	subs.Replaces = formatDepends(replaces, resolved)
	subs.Conflicts = formatDepends(conflicts, resolved)

	if b.rc.Verbose {
		b.summarizeDependencyMapping(logger, subs, depends, buildDepends, resolved)
	}

	if err := b.applyBuildType(pkg, subs); err != nil {
		return nil, err
	}

	stamp := b.rc.Now()
	subs.Date = stamp.Format(changelog.RFC2822Layout)
	subs.Year = stamp.Format("2006")

	maintainers := pkg.MaintainerStrings()
	subs.Maintainer = maintainers[0]
	subs.Maintainers = strings.Join(maintainers, ", ")

	entries, issue, err := changelog.Merge(pkg, params.ReleaserHistory, b.rc.Now, logger)
	if err != nil {
		return nil, generator.NewChangelogError("failed to read changelog", err).WithPackage(pkg.Name)
	}
	if issue != nil {
		if err := b.gateChangelogIssue(pkg, issue, logger); err != nil {
			return nil, err
		}
	}
	subs.Changelogs = entries

	// debhelper 7 is kept only for the one legacy distribution that needs it.
	if params.OSVersion == "oneiric" {
		subs.DebhelperVersion = 7
	} else {
		subs.DebhelperVersion = 9
	}

	copyright, err := assembleCopyright(pkg)
	if err != nil {
		return nil, err
	}
	subs.Copyright = copyright

	return subs, nil
}

// gateChangelogIssue applies the validation policy: interactive runs get a
// confirm gate defaulting to abort, automated runs hard-fail under strict
// mode and continue with a warning otherwise.
func (b *Builder) gateChangelogIssue(pkg *meta.Package, issue *changelog.ValidationIssue, logger *telemetry.Logger) error {
	for _, problem := range issue.Problems {
		logger.Error(problem)
	}
	logger.Error("this is almost certainly a mistake; review the changelog of the package being released")

	if b.rc.Interactive {
		if !b.rc.Confirm("Continue anyway") {
			return generator.NewChangelogError("changelog validation declined by operator", nil).
				WithCode(generator.ErrCodeUserDeclined).
				WithPackage(pkg.Name)
		}
		return nil
	}
	if b.rc.StrictChangelog {
		return generator.NewChangelogError(issue.String(), nil).
			WithCode(generator.ErrCodeBadChangelog).
			WithPackage(pkg.Name)
	}
	logger.Warn("continuing despite changelog anomalies (strict changelog disabled)")
	return nil
}

// applyBuildType emits build-type-specific substitutions. An unsupported
// build type has no safe default control-file layout and aborts the run.
func (b *Builder) applyBuildType(pkg *meta.Package, subs *Substitutions) error {
	switch pkg.BuildType {
	case meta.BuildTypeCMake, meta.BuildTypeCatkin, meta.BuildTypeAmentCMake:
		return nil
	case meta.BuildTypeAmentPython:
		pass, err := passInstallScripts(pkg)
		if err != nil {
			return err
		}
		subs.PassInstallScripts = pass
		return nil
	default:
		return generator.NewMetadataError(
			fmt.Sprintf("build type %q is not supported", pkg.BuildType), nil).
			WithCode(generator.ErrCodeUnsupportedBuild).
			WithPackage(pkg.Name)
	}
}

// passInstallScripts decides whether the install-scripts flag should be
// emitted for an ament_python package: yes, unless the package's own
// setup.yaml already declares the option.
func passInstallScripts(pkg *meta.Package) (bool, error) {
	path := filepath.Join(pkg.Dir, meta.SetupFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, generator.NewMetadataError(
			fmt.Sprintf("failed to read %s", path), err).WithPackage(pkg.Name)
	}
	var cfg struct {
		Install map[string]interface{} `yaml:"install"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return false, generator.NewMetadataError(
			fmt.Sprintf("failed to parse %s", path), err).WithPackage(pkg.Name)
	}
	if _, ok := cfg.Install["install-scripts"]; ok {
		return false, nil
	}
	if _, ok := cfg.Install["install_scripts"]; ok {
		return false, nil
	}
	return true, nil
}

// assembleCopyright concatenates the referenced license files with a visual
// separator. A missing referenced file is fatal.
func assembleCopyright(pkg *meta.Package) (string, error) {
	var texts []string
	for _, l := range pkg.Licenses {
		if l.File == "" {
			continue
		}
		path := filepath.Join(pkg.Dir, l.File)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", generator.NewMetadataError(
				fmt.Sprintf("license file %q is not found", path), err).
				WithCode(generator.ErrCodeMissingLicense).
				WithPackage(pkg.Name)
		}
		text := string(data)
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, licenseSeparator), nil
}

// summarizeDependencyMapping logs the key-to-target mapping of every
// dependency, one line per key.
func (b *Builder) summarizeDependencyMapping(logger *telemetry.Logger, subs *Substitutions, depends, buildDepends []meta.Dependency, resolved map[string][]string) {
	if len(depends) == 0 && len(buildDepends) == 0 {
		return
	}
	logger.Infof("package %q has dependencies (key => %s key):", subs.Package, subs.Distribution)
	for _, group := range []struct {
		label string
		deps  []meta.Dependency
	}{
		{"run", depends},
		{"build", buildDepends},
	} {
		for _, d := range group.deps {
			logger.Infof("  [%s] %-20s => %v", group.label, d.Name, resolved[d.Name])
		}
	}
}

// markupTags matches inline markup stripped from descriptions before
// formatting.
var markupTags = regexp.MustCompile(`<.*?>`)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// SanitizePackageName normalizes a package name to the Debian separator
// convention. It is idempotent.
func SanitizePackageName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// FormatDescription renders a description as a Debian control-file
// synopsis+paragraph pair. Markup is stripped and internal whitespace
// collapsed; the text up to the first ". " boundary becomes the synopsis
// line, the remainder an indented continuation paragraph. Text with no
// sentence break is returned as a single line.
//
// The ". " boundary (with the trailing space) avoids splitting on dot
// sequences inside version numbers and abbreviations.
func FormatDescription(value string) string {
	value = strings.TrimSpace(whitespaceRuns.ReplaceAllString(markupTags.ReplaceAllString(value, ""), " "))
	parts := strings.SplitN(value, ". ", 2)
	if len(parts) == 1 || parts[1] == "" {
		return value
	}
	return fmt.Sprintf("%s.\n %s", parts[0], strings.TrimSpace(parts[1]))
}

// formatDepends renders each resolved dependency as either a bare name or
// one "name (op value)" string per declared constraint, sorted and
// de-duplicated.
func formatDepends(deps []meta.Dependency, resolved map[string][]string) []string {
	seen := make(map[string]bool)
	var formatted []string
	for _, d := range deps {
		constraints := d.Constraints()
		for _, resolvedName := range resolved[d.Name] {
			if len(constraints) == 0 {
				if !seen[resolvedName] {
					seen[resolvedName] = true
					formatted = append(formatted, resolvedName)
				}
				continue
			}
			for _, c := range constraints {
				entry := fmt.Sprintf("%s (%s %s)", resolvedName, operatorTokens[c.Operator], c.Value)
				if !seen[entry] {
					seen[entry] = true
					formatted = append(formatted, entry)
				}
			}
		}
	}
	sort.Strings(formatted)
	return formatted
}

// passing filters a dependency list down to entries whose platform guard
// held.
func passing(deps []meta.Dependency) []meta.Dependency {
	var out []meta.Dependency
	for _, d := range deps {
		if d.Passes() {
			out = append(out, d)
		}
	}
	return out
}

// concat joins dependency lists into a fresh slice.
func concat(lists ...[]meta.Dependency) []meta.Dependency {
	var out []meta.Dependency
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// dependencyNames returns the unique key names of deps in first-seen order.
func dependencyNames(deps []meta.Dependency) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range deps {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	return names
}
