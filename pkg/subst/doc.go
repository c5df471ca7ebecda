// Package subst builds the substitution maps template expansion consumes.
//
// The Builder combines one package's metadata, its resolved dependencies,
// its merged changelog, and build-type-specific flags into one Substitutions
// value. Aggregate then merges the per-package values of a multi-package
// release into a synthetic header describing the release unit as a whole:
// combined maintainers, merged build dependencies with intra-release
// self-dependencies removed, and concatenated licensing text.
package subst
