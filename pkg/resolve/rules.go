package resolve

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleEntry maps a platform selector to target-system package names. The
// selector is matched against the OS version, then the distribution channel,
// then the wildcard "*".
type ruleEntry map[string][]string

// RulesService is a Service backed by YAML rule files of the form
//
//	libfoo-dev:
//	  ubuntu:
//	    noble: [libfoo-dev]
//	    "*": [libfoo-dev, libfoo1]
//	  debian:
//	    "*": [libfoo-dev]
//
// Later files override earlier ones key by key.
type RulesService struct {
	rules map[string]map[string]ruleEntry
}

// NewRulesService loads the given rule files in order.
func NewRulesService(paths ...string) (*RulesService, error) {
	rs := &RulesService{
		rules: make(map[string]map[string]ruleEntry),
	}
	for _, path := range paths {
		if err := rs.loadFile(path); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func (rs *RulesService) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	var parsed map[string]map[string]ruleEntry
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	for key, byOS := range parsed {
		rs.rules[key] = byOS
	}
	return nil
}

// Len returns the number of loaded rule keys.
func (rs *RulesService) Len() int {
	return len(rs.rules)
}

// ResolveOne implements Service. Selector precedence within an OS block is
// OS version, then channel, then "*".
func (rs *RulesService) ResolveOne(_ context.Context, name, osName, osVersion, channel string) ([]string, error) {
	byOS, ok := rs.rules[name]
	if !ok {
		return nil, ErrNotFound
	}
	entry, ok := byOS[osName]
	if !ok {
		return nil, ErrNotFound
	}
	for _, selector := range []string{osVersion, channel, "*"} {
		if pkgs, ok := entry[selector]; ok && len(pkgs) > 0 {
			return pkgs, nil
		}
	}
	return nil, ErrNotFound
}
