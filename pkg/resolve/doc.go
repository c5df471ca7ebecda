// Package resolve maps abstract dependency keys to target-system package
// names.
//
// A Resolver wraps an external resolution Service with three behaviours the
// pipeline relies on:
//
//   - peer short-circuit: keys naming a sibling package of the same release
//     resolve directly to the sibling's output name, bypassing the service
//   - memoization: service results are cached per run, keyed by
//     (name, os, os_version, channel)
//   - degradation: a key that cannot be resolved falls back to its literal
//     name; resolution never fails for an individual key
//
// Transient service failures are retried with exponential backoff before the
// fallback applies. RulesService is the file-backed Service used by the CLI;
// tests inject fakes.
package resolve
