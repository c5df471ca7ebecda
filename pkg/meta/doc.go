// Package meta defines the declarative package descriptor model and its
// loader.
//
// A package is described by a package.yaml file carrying the name, version,
// description, maintainers, licenses, URLs, and role-partitioned dependency
// lists consumed by the substitution builder. Loading is a three-step
// validation funnel:
//
//  1. The raw YAML document is checked against a built-in CUE schema.
//  2. The document is decoded into the typed Package struct.
//  3. The struct is validated with go-playground/validator tags.
//
// Dependencies may carry a platform-conditional guard: a Starlark expression
// evaluated against the target os, os_version, and channel. Only
// dependencies whose guard evaluates true participate in resolution.
package meta
