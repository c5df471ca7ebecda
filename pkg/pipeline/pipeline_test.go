package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/telemetry"
)

func testRunContext(t *testing.T) *generator.RunContext {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	rc := generator.NewRunContext(logger, false, false, true)
	rc.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return rc
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// writeReleaseUnit lays out a two-package source tree where the second
// package depends on the first.
func writeReleaseUnit(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "tesseract_common", "package.yaml"), `
name: tesseract_common
version: 0.28.2
description: Common utilities. Shared types used across the stack.
maintainers:
  - name: Jane Doe
    email: jane@example.com
licenses:
  - name: Apache-2.0
    file: LICENSE
urls:
  - kind: website
    address: https://example.com/tesseract
build_type: cmake
run_depends:
  - name: eigen
`)
	writeFile(t, filepath.Join(root, "tesseract_common", "LICENSE"), "Apache License 2.0 text\n")
	writeFile(t, filepath.Join(root, "tesseract_common", "CHANGELOG.md"), `
## 0.28.2 (2024-05-20)
- Current release
`)

	writeFile(t, filepath.Join(root, "tesseract_geometry", "package.yaml"), `
name: tesseract_geometry
version: 0.28.2
description: Geometry types.
maintainers:
  - name: John Roe
    email: john@example.com
licenses:
  - name: Apache-2.0
    file: LICENSE
build_type: cmake
run_depends:
  - name: tesseract_common
build_depends:
  - name: eigen
`)
	writeFile(t, filepath.Join(root, "tesseract_geometry", "LICENSE"), "Apache License 2.0 text\n")
	writeFile(t, filepath.Join(root, "tesseract_geometry", "CHANGELOG.md"), `
## 0.28.2 (2024-05-20)
- Current release
`)

	return root
}

// writeTemplateTree lays out a minimal cmake template tree.
func writeTemplateTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	cmake := filepath.Join(root, "cmake")
	writeFile(t, filepath.Join(cmake, "control_header.tpl"),
		"Source: {{.Package}}\nVersion: {{.Version}}{{.DebianInc}}\nMaintainer: {{.Maintainer}}\n\n")
	writeFile(t, filepath.Join(cmake, "control_package.tpl"),
		"Package: {{.Package}}\nDepends: {{range $i, $d := .Depends}}{{if $i}}, {{end}}{{$d}}{{end}}\nDescription: {{.Description}}\n\n")
	writeFile(t, filepath.Join(cmake, "compat.tpl"), "{{.DebhelperVersion}}\n")
	writeFile(t, filepath.Join(cmake, "copyright.tpl"), "{{.Copyright}}")
	writeFile(t, filepath.Join(cmake, "gbp.conf.tpl"), "[DEFAULT]\n")
	writeFile(t, filepath.Join(cmake, "source", "format.tpl"), "3.0 ({{.Format}})\n")
	return root
}

func writeRulesFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeFile(t, path, `
eigen:
  ubuntu:
    "*": [libeigen3-dev]
`)
	return path
}

func defaultOptions(t *testing.T) Options {
	return Options{
		PackagePath:      writeReleaseUnit(t),
		TemplatesDir:     writeTemplateTree(t),
		RulesFiles:       []string{writeRulesFile(t)},
		OSName:           "ubuntu",
		OSVersion:        "noble",
		InstallPrefix:    "/usr",
		ReleaseInc:       1,
		ReleaseName:      "tesseract",
		PlaceTemplates:   true,
		ProcessTemplates: true,
	}
}

func TestGenerate_EndToEnd(t *testing.T) {
	opts := defaultOptions(t)

	if err := Generate(context.Background(), testRunContext(t), opts); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}

	debianDir := filepath.Join(opts.PackagePath, "debian")
	data, err := os.ReadFile(filepath.Join(debianDir, "control"))
	if err != nil {
		t.Fatalf("Expected a control file: %v", err)
	}
	control := string(data)

	if !strings.Contains(control, "Source: tesseract\n") {
		t.Errorf("Expected release-unit source header, got:\n%s", control)
	}
	if !strings.Contains(control, "Version: 0.28.2-1\n") {
		t.Errorf("Expected incremented quilt version, got:\n%s", control)
	}
	if !strings.Contains(control, "Package: tesseract-common\n") || !strings.Contains(control, "Package: tesseract-geometry\n") {
		t.Errorf("Expected one block per package, got:\n%s", control)
	}
	// The external key goes through the rules, the sibling links directly.
	if !strings.Contains(control, "libeigen3-dev") {
		t.Errorf("Expected rules-resolved dependency, got:\n%s", control)
	}
	if !strings.Contains(control, "Depends: tesseract-common\n") {
		t.Errorf("Expected sibling dependency linked by sanitized name, got:\n%s", control)
	}

	compat, err := os.ReadFile(filepath.Join(debianDir, "compat"))
	if err != nil {
		t.Fatalf("Expected a compat file: %v", err)
	}
	if string(compat) != "9\n" {
		t.Errorf("Expected debhelper 9, got %q", compat)
	}

	format, err := os.ReadFile(filepath.Join(debianDir, "source", "format"))
	if err != nil {
		t.Fatalf("Expected a source format file: %v", err)
	}
	if string(format) != "3.0 (quilt)\n" {
		t.Errorf("Expected quilt source format, got %q", format)
	}

	copyright, err := os.ReadFile(filepath.Join(debianDir, "copyright"))
	if err != nil {
		t.Fatalf("Expected a copyright file: %v", err)
	}
	if !strings.Contains(string(copyright), "Apache License 2.0 text") {
		t.Errorf("Expected license text in copyright, got %q", copyright)
	}

	// Processed template sources are gone, and gbp.conf was never placed.
	for _, leftover := range []string{"control_header.tpl", "control_package.tpl", "compat.tpl", "gbp.conf.tpl"} {
		if _, err := os.Stat(filepath.Join(debianDir, leftover)); !os.IsNotExist(err) {
			t.Errorf("Expected %s removed from the output tree", leftover)
		}
	}
}

func TestGenerate_CancelledContextAborts(t *testing.T) {
	opts := defaultOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Generate(ctx, testRunContext(t), opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.PackagePath, "debian")); !os.IsNotExist(err) {
		t.Error("Expected no debian directory after a cancelled run")
	}
}

func TestGenerate_CancellationBetweenStages(t *testing.T) {
	opts := defaultOptions(t)
	ctx, cancel := context.WithCancel(context.Background())

	// First let a full run complete, then re-run with a context cancelled
	// mid-flight: the second run must not rewrite the output tree.
	if err := Generate(ctx, testRunContext(t), opts); err != nil {
		t.Fatalf("Expected initial generation to succeed, got: %v", err)
	}
	cancel()
	if err := Generate(ctx, testRunContext(t), opts); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled on the re-run, got: %v", err)
	}
}

func TestGenerate_NoPackagesFound(t *testing.T) {
	opts := defaultOptions(t)
	opts.PackagePath = t.TempDir()

	err := Generate(context.Background(), testRunContext(t), opts)
	if err == nil {
		t.Fatal("Expected an error for an empty source tree")
	}
	var genErr *generator.Error
	if !errors.As(err, &genErr) {
		t.Fatalf("Expected a classified error, got: %v", err)
	}
	if genErr.Code != generator.ErrCodeNotFound {
		t.Errorf("Expected code %q, got %q", generator.ErrCodeNotFound, genErr.Code)
	}
}

func TestGenerate_UnsupportedBuildTypeAbortsBeforeOutput(t *testing.T) {
	opts := defaultOptions(t)
	writeFile(t, filepath.Join(opts.PackagePath, "tesseract_common", "package.yaml"), `
name: tesseract_common
version: 0.28.2
description: Common utilities.
maintainers:
  - name: Jane Doe
    email: jane@example.com
build_type: meson
`)

	err := Generate(context.Background(), testRunContext(t), opts)
	if err == nil {
		t.Fatal("Expected an error for an unsupported build type")
	}
	var genErr *generator.Error
	if !errors.As(err, &genErr) {
		t.Fatalf("Expected a classified error, got: %v", err)
	}
	if genErr.Code != generator.ErrCodeUnsupportedBuild {
		t.Errorf("Expected code %q, got %q", generator.ErrCodeUnsupportedBuild, genErr.Code)
	}
	if _, err := os.Stat(filepath.Join(opts.PackagePath, "debian")); !os.IsNotExist(err) {
		t.Error("Expected no debian directory after an aborted run")
	}
}

func TestGenerate_DefaultReleaseNameFromPath(t *testing.T) {
	opts := defaultOptions(t)
	opts.ReleaseName = ""

	if err := Generate(context.Background(), testRunContext(t), opts); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(opts.PackagePath, "debian", "control"))
	if err != nil {
		t.Fatalf("Expected a control file: %v", err)
	}
	want := "Source: " + filepath.Base(opts.PackagePath) + "\n"
	if !strings.Contains(string(data), want) {
		t.Errorf("Expected header keyed by the path base name, got:\n%s", data)
	}
}

func TestGenerate_PlaceOnlyKeepsTemplates(t *testing.T) {
	opts := defaultOptions(t)
	opts.ProcessTemplates = false

	if err := Generate(context.Background(), testRunContext(t), opts); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}

	debianDir := filepath.Join(opts.PackagePath, "debian")
	if _, err := os.Stat(filepath.Join(debianDir, "control_header.tpl")); err != nil {
		t.Errorf("Expected template sources placed but unprocessed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(debianDir, "control")); !os.IsNotExist(err) {
		t.Error("Expected no expanded control file in place-only mode")
	}
}

func TestGenerate_NativeFormat(t *testing.T) {
	opts := defaultOptions(t)
	opts.Native = true

	if err := Generate(context.Background(), testRunContext(t), opts); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(opts.PackagePath, "debian", "source", "format"))
	if err != nil {
		t.Fatalf("Expected a source format file: %v", err)
	}
	if string(data) != "3.0 (native)\n" {
		t.Errorf("Expected native source format, got %q", data)
	}

	control, err := os.ReadFile(filepath.Join(opts.PackagePath, "debian", "control"))
	if err != nil {
		t.Fatalf("Expected a control file: %v", err)
	}
	if !strings.Contains(string(control), "Version: 0.28.2\n") {
		t.Errorf("Expected no increment suffix in native mode, got:\n%s", control)
	}
}

func TestGenerate_GbpKeepsConfTemplate(t *testing.T) {
	opts := defaultOptions(t)
	opts.Gbp = true
	opts.ProcessTemplates = false

	if err := Generate(context.Background(), testRunContext(t), opts); err != nil {
		t.Fatalf("Expected generation to succeed, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(opts.PackagePath, "debian", "gbp.conf.tpl")); err != nil {
		t.Errorf("Expected gbp.conf template kept in gbp mode: %v", err)
	}
}
