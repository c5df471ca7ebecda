// Package pipeline wires the generation stages together: descriptor
// discovery, per-package substitution building, release-unit aggregation,
// and template placement and processing.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/debgen/debgen/pkg/changelog"
	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/meta"
	"github.com/debgen/debgen/pkg/resolve"
	"github.com/debgen/debgen/pkg/subst"
	"github.com/debgen/debgen/pkg/templates"
)

// Options configure one generation run.
type Options struct {
	// PackagePath is the release unit's source tree, scanned for package
	// descriptors.
	PackagePath string

	// TemplatesDir is the template tree root containing one directory per
	// build type.
	TemplatesDir string

	// RulesFiles are dependency-resolution rule files; ignored when Service
	// is set.
	RulesFiles []string

	// Service overrides the rules-backed resolution service, for tests and
	// alternative backends.
	Service resolve.Service

	OSName        string
	OSVersion     string
	Channel       string
	InstallPrefix string
	ReleaseInc    int
	Native        bool

	// ReleaseName is the reserved release-unit name keying the aggregated
	// header. Defaults to the base name of PackagePath.
	ReleaseName string

	// PlaceTemplates / ProcessTemplates select the stages to run. The CLI
	// defaults to both when neither flag is given.
	PlaceTemplates   bool
	ProcessTemplates bool

	// Gbp keeps the release-tooling configuration template when placing.
	Gbp bool

	ReleaserHistory changelog.ReleaserHistory
}

// Generate runs the full pipeline: one substitution build per package, one
// aggregation, then template placement and processing per Options. All
// fatal errors surface to the caller; the only silent continuation is the
// documented per-key dependency-resolution fallback.
func Generate(ctx context.Context, rc *generator.RunContext, opts Options) error {
	logger := rc.ComponentLogger("pipeline")

	// An interrupted run must stop before the next stage, never after
	// completing the remaining ones.
	if err := ctx.Err(); err != nil {
		return err
	}

	parser := meta.NewParser()
	packages, err := parser.FindPackages(ctx, opts.PackagePath)
	if err != nil {
		return err
	}
	if len(packages) == 0 {
		return generator.NewMetadataError(
			fmt.Sprintf("no packages found in path %q", opts.PackagePath), nil).
			WithCode(generator.ErrCodeNotFound)
	}

	names := make([]string, 0, len(packages))
	for _, pkg := range packages {
		names = append(names, pkg.Name)
	}
	logger.Infof("generating debs for %s:%s for package(s) %v", opts.OSName, opts.OSVersion, names)

	service := opts.Service
	if service == nil {
		service, err = resolve.NewRulesService(opts.RulesFiles...)
		if err != nil {
			return generator.NewInternalError("failed to load resolution rules", err)
		}
	}
	resolver := resolve.NewResolver(service, resolve.DefaultRetryPolicy(), rc.ComponentLogger("resolver"))
	builder := subst.NewBuilder(rc, resolver)

	params := subst.BuildParams{
		OSName:          opts.OSName,
		OSVersion:       opts.OSVersion,
		Channel:         opts.Channel,
		InstallPrefix:   opts.InstallPrefix,
		ReleaseInc:      opts.ReleaseInc,
		Native:          opts.Native,
		PeerNames:       names,
		ReleaserHistory: opts.ReleaserHistory,
	}

	subsList := make([]*subst.Substitutions, 0, len(packages))
	for _, pkg := range packages {
		if err := ctx.Err(); err != nil {
			return err
		}
		subs, err := builder.Build(ctx, pkg, params)
		if err != nil {
			return err
		}
		subsList = append(subsList, subs)
	}

	if unresolved := resolver.Unresolved(); len(unresolved) > 0 {
		logger.Warnf("keys resolved to their literal names: %v", unresolved)
	}

	releaseName := opts.ReleaseName
	if releaseName == "" {
		abs, err := filepath.Abs(opts.PackagePath)
		if err != nil {
			return generator.NewInternalError("failed to resolve package path", err)
		}
		releaseName = filepath.Base(abs)
	}
	view := subst.Aggregate(subsList, releaseName)

	// Every package of a release shares one control-file layout; the first
	// package's build type selects the template tree.
	buildType := packages[0].BuildType
	expander := templates.NewExpander(rc)
	debianDir := filepath.Join(opts.PackagePath, "debian")

	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.PlaceTemplates {
		templateDir := filepath.Join(opts.TemplatesDir, buildType)
		if err := expander.Place(templateDir, opts.PackagePath, opts.Gbp); err != nil {
			return err
		}
	}
	if opts.ProcessTemplates {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := expander.Expand(debianDir, view)
		if err != nil {
			return err
		}
		if err := expander.RemoveProcessed(processed); err != nil {
			return err
		}
		logger.Infof("processed %d template(s) in %s", len(processed), debianDir)
	}

	return nil
}
