// Package generator orchestrates the control-file generation pipeline.
//
// # Overview
//
// A run converts the declarative metadata of one or more packages released
// together into a populated debian/ control-file tree:
//
//  1. Discover - Find package descriptors under the release path (meta)
//  2. Build - Produce one substitution map per package (subst)
//  3. Aggregate - Merge the maps into a release-unit header view (subst)
//  4. Place - Stage the build-type template tree into debian/ (templates)
//  5. Process - Expand every template against the view (templates)
//
// The pipeline is strictly sequential; dependency resolution memoizes
// external lookups for the duration of one run but runs synchronously.
//
// # Run Context
//
// Every stage receives a RunContext carrying the run ID, the component
// logger, the verbosity level, and the interactive-vs-automated policy.
// There are no process-wide toggles.
//
// # Error Classification
//
// Errors are classified for abort and fallback decisions:
//
//   - Metadata: invalid package metadata, always fatal
//   - Resolution: per-key lookup failure, degrades to a literal fallback
//   - Changelog: validation anomaly, gated by confirm or strict mode
//   - Template: template-tree failure, always fatal
//   - Internal: unexpected error caught at the outer boundary, fatal
package generator
