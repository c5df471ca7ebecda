package subst

import (
	"strings"
)

// View is the aggregated collection handed to template expansion: every
// per-package substitution map plus the synthetic release-unit header, in a
// deterministic iteration order (input order, header last).
type View struct {
	// Order lists the map keys in iteration order.
	Order []string

	// HeaderKey is the reserved key of the release-unit header map.
	HeaderKey string

	// Maps holds the substitution map for each key in Order.
	Maps map[string]*Substitutions
}

// Header returns the release-unit header map.
func (v *View) Header() *Substitutions {
	return v.Maps[v.HeaderKey]
}

// Packages returns the per-package maps in input order, excluding the
// header.
func (v *View) Packages() []*Substitutions {
	out := make([]*Substitutions, 0, len(v.Order)-1)
	for _, key := range v.Order {
		if key == v.HeaderKey {
			continue
		}
		out = append(out, v.Maps[key])
	}
	return out
}

// Aggregate merges the per-package substitution maps of one release unit
// into a View with a synthetic header keyed by releaseName. Header fields
// are seeded from the first package; every subsequent package contributes
// its maintainers, build dependencies, and licensing text. Build
// dependencies naming a sibling package of the release are removed, and
// duplicates dropped preserving first-seen order.
//
// An empty input yields a header-only view with unseeded fields; the
// pipeline treats a release with no packages as a fatal error before this
// point.
func Aggregate(subs []*Substitutions, releaseName string) *View {
	header := &Substitutions{
		Name:    releaseName,
		Package: SanitizePackageName(releaseName),
	}

	var maintainers []string
	maintainerSeen := make(map[string]bool)
	var copyrights []string

	for i, sub := range subs {
		if i == 0 {
			header.Version = sub.Version
			header.DebianInc = sub.DebianInc
			header.Format = sub.Format
			header.InstallationPrefix = sub.InstallationPrefix
			header.Homepage = sub.Homepage
			header.Changelogs = sub.Changelogs
			header.DebhelperVersion = sub.DebhelperVersion
			header.Distribution = sub.Distribution
			header.Date = sub.Date
			header.Year = sub.Year
			header.Maintainer = sub.Maintainer
		}
		for _, m := range strings.Split(sub.Maintainers, ", ") {
			if m != "" && !maintainerSeen[m] {
				maintainerSeen[m] = true
				maintainers = append(maintainers, m)
			}
		}
		header.BuildDepends = append(header.BuildDepends, sub.BuildDepends...)
		if sub.Copyright != "" {
			copyrights = append(copyrights, sub.Copyright)
		}
	}
	header.Maintainers = strings.Join(maintainers, ", ")
	header.Copyright = strings.Join(copyrights, licenseSeparator)

	// No intra-release self-dependencies: drop any build dependency whose
	// bare name equals a sibling package's raw or output name.
	siblings := make(map[string]bool, 2*len(subs))
	for _, sub := range subs {
		siblings[sub.Name] = true
		siblings[sub.Package] = true
	}
	header.BuildDepends = dropSiblingsAndDuplicates(header.BuildDepends, siblings)

	view := &View{
		HeaderKey: header.Package,
		Maps:      make(map[string]*Substitutions, len(subs)+1),
	}
	for _, sub := range subs {
		view.Order = append(view.Order, sub.Package)
		view.Maps[sub.Package] = sub
	}
	view.Order = append(view.Order, view.HeaderKey)
	view.Maps[view.HeaderKey] = header
	return view
}

// dropSiblingsAndDuplicates filters a formatted dependency list, removing
// entries whose bare name (version constraint stripped) is in exclude and
// de-duplicating while preserving first-seen order.
func dropSiblingsAndDuplicates(deps []string, exclude map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, dep := range deps {
		if exclude[bareName(dep)] {
			continue
		}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	return out
}

// bareName strips the " (op value)" constraint suffix of a formatted
// dependency.
func bareName(dep string) string {
	if i := strings.Index(dep, " ("); i >= 0 {
		return dep[:i]
	}
	return dep
}
