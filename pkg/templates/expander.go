// Package templates expands a packaging template tree into final control
// files.
//
// Template files carry the .tpl suffix and use text/template syntax over the
// substitution maps built by the subst package. Two file names have a
// distinguished role: control_header.tpl expands once with the release-unit
// header bindings, and control_package.tpl expands once per package with
// that package's bindings, appending one block per package to the shared
// control file. Every other template expands once with the header bindings.
package templates

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/subst"
	"github.com/debgen/debgen/pkg/telemetry"
)

// Extension marks a generic template file.
const Extension = ".tpl"

// Distinguished template file names.
const (
	headerTemplateName  = "control_header" + Extension
	packageTemplateName = "control_package" + Extension

	// GbpConfTemplateName is the optional release-tooling configuration
	// template, omitted when multi-package aggregation is disabled.
	GbpConfTemplateName = "gbp.conf" + Extension
)

// FileRole is the expansion behaviour of one template file, resolved once
// per file from its name.
type FileRole int

const (
	// RoleNone marks a non-template file; it is left untouched.
	RoleNone FileRole = iota

	// RoleRegular expands once with the header bindings, stripping the
	// generic suffix.
	RoleRegular

	// RoleHeaderOnly expands once with the header bindings as the shared
	// top section of a composite output, stripping the _header suffix.
	RoleHeaderOnly

	// RolePerPackageRepeat expands once per non-header package, appending
	// each block to the shared output derived by stripping the _package
	// suffix.
	RolePerPackageRepeat
)

// roleTable dispatches the distinguished file names; everything else is
// decided by suffix.
var roleTable = map[string]FileRole{
	headerTemplateName:  RoleHeaderOnly,
	packageTemplateName: RolePerPackageRepeat,
}

// RoleOf resolves the expansion role of a template file name.
func RoleOf(name string) FileRole {
	if role, ok := roleTable[name]; ok {
		return role
	}
	if strings.HasSuffix(name, Extension) {
		return RoleRegular
	}
	return RoleNone
}

// outputPath derives the output file for a template according to its role.
func outputPath(templatePath string, role FileRole) string {
	switch role {
	case RoleHeaderOnly:
		return strings.TrimSuffix(templatePath, "_header"+Extension)
	case RolePerPackageRepeat:
		return strings.TrimSuffix(templatePath, "_package"+Extension)
	default:
		return strings.TrimSuffix(templatePath, Extension)
	}
}

// Expander walks a template tree and expands every template against an
// aggregated view.
type Expander struct {
	logger *telemetry.Logger
}

// NewExpander creates a template expander logging under the given run
// context.
func NewExpander(rc *generator.RunContext) *Expander {
	return &Expander{logger: rc.ComponentLogger("templates")}
}

// Expand processes every template under root and returns the paths of the
// processed template sources, so the caller can remove them after a
// successful run. A missing root is fatal before any expansion begins, and
// any individual expansion failure aborts: a partially-expanded tree is
// never considered safe.
func (e *Expander) Expand(root string, view *subst.View) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, generator.NewTemplateError(
			fmt.Sprintf("no template directory found at %q, cannot process templates", root), err)
	}
	return e.processFolder(root, view)
}

// processFolder expands one directory depth-first: subdirectories are
// processed before the current directory's files, in lexical order, so the
// processed-path list is deterministic.
func (e *Expander) processFolder(dir string, view *subst.View) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, generator.NewTemplateError(fmt.Sprintf("failed to read template directory %s", dir), err)
	}

	var processed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Name() == ".git" || entry.Name() == ".svn" {
			continue
		}
		sub, err := e.processFolder(filepath.Join(dir, entry.Name()), view)
		if err != nil {
			return nil, err
		}
		processed = append(processed, sub...)
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == packageTemplateName {
			continue
		}
		role := RoleOf(entry.Name())
		if role == RoleNone {
			continue
		}
		templatePath := filepath.Join(dir, entry.Name())
		if err := e.expandOnce(templatePath, role, view.Header()); err != nil {
			return nil, err
		}
		processed = append(processed, templatePath)
	}

	// The per-package template last: its output is built by successive
	// appends, one block per package, in input iteration order.
	packagePath := filepath.Join(dir, packageTemplateName)
	if _, err := os.Stat(packagePath); err == nil {
		if err := e.expandPerPackage(packagePath, view); err != nil {
			return nil, err
		}
		processed = append(processed, packagePath)
	}

	return processed, nil
}

// expandOnce expands a header-bound template and writes its output with the
// source file's permissions.
func (e *Expander) expandOnce(templatePath string, role FileRole, bindings *subst.Substitutions) error {
	result, err := expandFile(templatePath, bindings)
	if err != nil {
		return err
	}
	target := outputPath(templatePath, role)
	e.logger.Infof("expanding %q -> %q", templatePath, target)

	// An empty license file would be noise in the output tree; skip it but
	// still count the template as processed.
	if len(result) == 0 && filepath.Base(target) == "copyright" {
		return nil
	}

	if err := os.WriteFile(target, result, 0644); err != nil {
		return generator.NewTemplateError(fmt.Sprintf("failed to write %s", target), err)
	}
	return copyFileMode(templatePath, target)
}

// expandPerPackage expands the repeating template once per non-header
// package, appending each block to the shared output.
func (e *Expander) expandPerPackage(templatePath string, view *subst.View) error {
	target := outputPath(templatePath, RolePerPackageRepeat)
	e.logger.Infof("expanding %q -> %q (per package)", templatePath, target)

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return generator.NewTemplateError(fmt.Sprintf("failed to open %s", target), err)
	}
	defer out.Close()

	for _, pkg := range view.Packages() {
		result, err := expandFile(templatePath, pkg)
		if err != nil {
			return err
		}
		if _, err := out.Write(result); err != nil {
			return generator.NewTemplateError(fmt.Sprintf("failed to append to %s", target), err)
		}
	}
	return copyFileMode(templatePath, target)
}

// expandFile applies the expansion capability to one template file.
func expandFile(templatePath string, bindings *subst.Substitutions) ([]byte, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, generator.NewTemplateError(fmt.Sprintf("failed to read template %s", templatePath), err)
	}
	tmpl, err := template.New(filepath.Base(templatePath)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, generator.NewTemplateError(fmt.Sprintf("failed to parse template %s", templatePath), err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, bindings); err != nil {
		return nil, generator.NewTemplateError(fmt.Sprintf("failed to expand template %s", templatePath), err)
	}
	return buf.Bytes(), nil
}

// copyFileMode copies the source template's permissions to the output.
func copyFileMode(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return generator.NewTemplateError(fmt.Sprintf("failed to stat %s", src), err)
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return generator.NewTemplateError(fmt.Sprintf("failed to set permissions on %s", dst), err)
	}
	return nil
}

// Place stages the build type's template tree into the package's debian/
// directory. The tree is copied to a temporary sibling first and renamed
// into place, so a failed placement never leaves a partial debian/ behind.
// The release-tooling configuration template is dropped unless gbp is set.
func (e *Expander) Place(templateDir, packageDir string, gbp bool) error {
	info, err := os.Stat(templateDir)
	if err != nil {
		return generator.NewTemplateError(
			fmt.Sprintf("no templates found at %q", templateDir), err)
	}
	e.logger.Infof("placing template files from %q in the debian folder", templateDir)

	staging, err := os.MkdirTemp(packageDir, "debian.stage-")
	if err != nil {
		return generator.NewTemplateError("failed to create staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := copyTree(templateDir, staging); err != nil {
		return err
	}
	if !gbp {
		if err := os.Remove(filepath.Join(staging, GbpConfTemplateName)); err != nil && !os.IsNotExist(err) {
			return generator.NewTemplateError("failed to drop gbp.conf template", err)
		}
	}

	// MkdirTemp creates the staging root 0700; the renamed debian/ must carry
	// the template tree's own directory mode.
	if err := os.Chmod(staging, info.Mode().Perm()); err != nil {
		return generator.NewTemplateError("failed to set permissions on staging directory", err)
	}

	debianDir := filepath.Join(packageDir, "debian")
	if err := os.RemoveAll(debianDir); err != nil {
		return generator.NewTemplateError("failed to clear existing debian directory", err)
	}
	if err := os.Rename(staging, debianDir); err != nil {
		return generator.NewTemplateError("failed to move staged templates into place", err)
	}
	return nil
}

// RemoveProcessed deletes the template sources after successful processing,
// leaving only final control files in the output tree.
func (e *Expander) RemoveProcessed(paths []string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			return generator.NewTemplateError(fmt.Sprintf("failed to remove processed template %s", path), err)
		}
	}
	return nil
}

// copyTree copies a directory tree, preserving file permissions.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return generator.NewTemplateError(fmt.Sprintf("failed to walk %s", src), err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return generator.NewTemplateError("failed to compute relative path", err)
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if rel == "." {
				return nil
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return generator.NewTemplateError(fmt.Sprintf("failed to create %s", target), err)
			}
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return generator.NewTemplateError(fmt.Sprintf("failed to open %s", path), err)
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return generator.NewTemplateError(fmt.Sprintf("failed to create %s", target), err)
		}
		defer out.Close()
		if _, err := io.Copy(out, in); err != nil {
			return generator.NewTemplateError(fmt.Sprintf("failed to copy %s", path), err)
		}
		return nil
	})
}
