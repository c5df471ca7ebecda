package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/subst"
	"github.com/debgen/debgen/pkg/telemetry"
)

func testExpander(t *testing.T) *Expander {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	rc := generator.NewRunContext(logger, false, false, true)
	rc.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return NewExpander(rc)
}

func testView() *subst.View {
	return subst.Aggregate([]*subst.Substitutions{
		{
			Name:        "tesseract_common",
			Package:     "tesseract-common",
			Version:     "0.28.2",
			Description: "Common utilities.",
			Depends:     []string{"libeigen3-dev"},
		},
		{
			Name:        "tesseract_geometry",
			Package:     "tesseract-geometry",
			Version:     "0.28.2",
			Description: "Geometry types.",
			Depends:     []string{"tesseract-common"},
		},
	}, "tesseract")
}

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write template %s: %v", name, err)
	}
	return path
}

func TestRoleOf(t *testing.T) {
	cases := []struct {
		name string
		want FileRole
	}{
		{"control_header.tpl", RoleHeaderOnly},
		{"control_package.tpl", RolePerPackageRepeat},
		{"rules.tpl", RoleRegular},
		{"compat.tpl", RoleRegular},
		{"README.md", RoleNone},
		{"control", RoleNone},
	}
	for _, tc := range cases {
		if got := RoleOf(tc.name); got != tc.want {
			t.Errorf("RoleOf(%q): expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		path string
		role FileRole
		want string
	}{
		{"debian/control_header.tpl", RoleHeaderOnly, "debian/control"},
		{"debian/control_package.tpl", RolePerPackageRepeat, "debian/control"},
		{"debian/rules.tpl", RoleRegular, "debian/rules"},
		{"debian/source/format.tpl", RoleRegular, "debian/source/format"},
	}
	for _, tc := range cases {
		if got := outputPath(tc.path, tc.role); got != tc.want {
			t.Errorf("outputPath(%q, %v): expected %q, got %q", tc.path, tc.role, tc.want, got)
		}
	}
}

func TestExpand_MissingRootFails(t *testing.T) {
	e := testExpander(t)
	_, err := e.Expand(filepath.Join(t.TempDir(), "nope"), testView())
	if err == nil {
		t.Fatal("Expected an error for a missing template root")
	}
	if generator.ClassOf(err) != generator.ErrorClassTemplate {
		t.Errorf("Expected a template-class error, got: %v", err)
	}
}

func TestExpand_HeaderAndPackagesShareControl(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "control_header.tpl", "Source: {{.Package}}\nVersion: {{.Version}}\n\n")
	writeTemplate(t, dir, "control_package.tpl", "Package: {{.Package}}\nDescription: {{.Description}}\n\n")

	e := testExpander(t)
	processed, err := e.Expand(dir, testView())
	if err != nil {
		t.Fatalf("Expected expansion to succeed, got: %v", err)
	}
	if len(processed) != 2 {
		t.Fatalf("Expected 2 processed templates, got %v", processed)
	}

	data, err := os.ReadFile(filepath.Join(dir, "control"))
	if err != nil {
		t.Fatalf("Expected a control file: %v", err)
	}
	content := string(data)

	headerIdx := strings.Index(content, "Source: tesseract")
	firstIdx := strings.Index(content, "Package: tesseract-common")
	secondIdx := strings.Index(content, "Package: tesseract-geometry")
	if headerIdx < 0 || firstIdx < 0 || secondIdx < 0 {
		t.Fatalf("Expected header and both package blocks, got:\n%s", content)
	}
	if !(headerIdx < firstIdx && firstIdx < secondIdx) {
		t.Errorf("Expected header first then packages in input order, got:\n%s", content)
	}
	if strings.Contains(content, "Package: tesseract\n") {
		t.Error("Expected no package block for the synthetic header")
	}
}

func TestExpand_Deterministic(t *testing.T) {
	run := func(t *testing.T) []byte {
		dir := t.TempDir()
		writeTemplate(t, dir, "control_header.tpl", "Source: {{.Package}}\n\n")
		writeTemplate(t, dir, "control_package.tpl", "Package: {{.Package}}\n\n")
		writeTemplate(t, dir, "compat.tpl", "9\n")

		e := testExpander(t)
		if _, err := e.Expand(dir, testView()); err != nil {
			t.Fatalf("Expected expansion to succeed, got: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "control"))
		if err != nil {
			t.Fatalf("Expected a control file: %v", err)
		}
		return data
	}

	first := run(t)
	second := run(t)
	if string(first) != string(second) {
		t.Errorf("Expected byte-identical output across runs:\n%s\n---\n%s", first, second)
	}
}

func TestExpand_EmptyCopyrightSkippedButProcessed(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "copyright.tpl", "{{.Copyright}}")

	view := testView()
	view.Header().Copyright = ""

	e := testExpander(t)
	processed, err := e.Expand(dir, view)
	if err != nil {
		t.Fatalf("Expected expansion to succeed, got: %v", err)
	}
	if len(processed) != 1 || processed[0] != path {
		t.Errorf("Expected the template counted as processed, got %v", processed)
	}
	if _, err := os.Stat(filepath.Join(dir, "copyright")); !os.IsNotExist(err) {
		t.Error("Expected no copyright output for an empty expansion")
	}
}

func TestExpand_UnknownPlaceholderFails(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "rules.tpl", "{{.NoSuchField}}\n")

	e := testExpander(t)
	_, err := e.Expand(dir, testView())
	if err == nil {
		t.Fatal("Expected an error for an unknown placeholder")
	}
	if generator.ClassOf(err) != generator.ErrorClassTemplate {
		t.Errorf("Expected a template-class error, got: %v", err)
	}
}

func TestExpand_PreservesExecutableMode(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "rules.tpl", "#!/usr/bin/make -f\n")
	if err := os.Chmod(path, 0755); err != nil {
		t.Fatalf("Failed to chmod template: %v", err)
	}

	e := testExpander(t)
	if _, err := e.Expand(dir, testView()); err != nil {
		t.Fatalf("Expected expansion to succeed, got: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "rules"))
	if err != nil {
		t.Fatalf("Expected a rules output: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("Expected mode 0755 on output, got %v", info.Mode().Perm())
	}
}

func TestExpand_Subdirectories(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "source")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatalf("Failed to create source dir: %v", err)
	}
	writeTemplate(t, srcDir, "format.tpl", "3.0 (quilt)\n")

	e := testExpander(t)
	processed, err := e.Expand(dir, testView())
	if err != nil {
		t.Fatalf("Expected expansion to succeed, got: %v", err)
	}
	if len(processed) != 1 {
		t.Fatalf("Expected 1 processed template, got %v", processed)
	}
	data, err := os.ReadFile(filepath.Join(srcDir, "format"))
	if err != nil {
		t.Fatalf("Expected a format output: %v", err)
	}
	if string(data) != "3.0 (quilt)\n" {
		t.Errorf("Unexpected format output: %q", data)
	}
}

func TestRemoveProcessed(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "compat.tpl", "9\n")

	e := testExpander(t)
	processed, err := e.Expand(dir, testView())
	if err != nil {
		t.Fatalf("Expected expansion to succeed, got: %v", err)
	}
	if err := e.RemoveProcessed(processed); err != nil {
		t.Fatalf("Expected removal to succeed, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "compat.tpl")); !os.IsNotExist(err) {
		t.Error("Expected the template source removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "compat")); err != nil {
		t.Error("Expected the expanded output to remain")
	}
}

func TestPlace_CopiesTreeAndDropsGbpConf(t *testing.T) {
	templateDir := t.TempDir()
	writeTemplate(t, templateDir, "control_header.tpl", "Source: {{.Package}}\n")
	writeTemplate(t, templateDir, GbpConfTemplateName, "[DEFAULT]\n")
	srcDir := filepath.Join(templateDir, "source")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatalf("Failed to create source dir: %v", err)
	}
	writeTemplate(t, srcDir, "format.tpl", "3.0 (quilt)\n")

	pkgDir := t.TempDir()
	e := testExpander(t)
	if err := e.Place(templateDir, pkgDir, false); err != nil {
		t.Fatalf("Expected placement to succeed, got: %v", err)
	}

	debianDir := filepath.Join(pkgDir, "debian")
	if _, err := os.Stat(filepath.Join(debianDir, "control_header.tpl")); err != nil {
		t.Errorf("Expected header template placed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(debianDir, "source", "format.tpl")); err != nil {
		t.Errorf("Expected nested template placed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(debianDir, GbpConfTemplateName)); !os.IsNotExist(err) {
		t.Error("Expected gbp.conf template dropped without gbp mode")
	}

	// No staging directory may survive the placement.
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		t.Fatalf("Failed to read package dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "debian.stage-") {
			t.Errorf("Expected no staging leftovers, found %s", entry.Name())
		}
	}
}

func TestPlace_DebianDirCarriesTemplateTreeMode(t *testing.T) {
	templateDir := t.TempDir()
	if err := os.Chmod(templateDir, 0755); err != nil {
		t.Fatalf("Failed to chmod template dir: %v", err)
	}
	writeTemplate(t, templateDir, "compat.tpl", "9\n")

	pkgDir := t.TempDir()
	e := testExpander(t)
	if err := e.Place(templateDir, pkgDir, false); err != nil {
		t.Fatalf("Expected placement to succeed, got: %v", err)
	}

	info, err := os.Stat(filepath.Join(pkgDir, "debian"))
	if err != nil {
		t.Fatalf("Expected a debian directory: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("Expected debian/ to carry the template tree's mode 0755, got %v", info.Mode().Perm())
	}
}

func TestPlace_KeepsGbpConfInGbpMode(t *testing.T) {
	templateDir := t.TempDir()
	writeTemplate(t, templateDir, GbpConfTemplateName, "[DEFAULT]\n")

	pkgDir := t.TempDir()
	e := testExpander(t)
	if err := e.Place(templateDir, pkgDir, true); err != nil {
		t.Fatalf("Expected placement to succeed, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(pkgDir, "debian", GbpConfTemplateName)); err != nil {
		t.Errorf("Expected gbp.conf template kept in gbp mode: %v", err)
	}
}

func TestPlace_ReplacesExistingDebianDir(t *testing.T) {
	templateDir := t.TempDir()
	writeTemplate(t, templateDir, "compat.tpl", "9\n")

	pkgDir := t.TempDir()
	debianDir := filepath.Join(pkgDir, "debian")
	if err := os.MkdirAll(debianDir, 0755); err != nil {
		t.Fatalf("Failed to create existing debian dir: %v", err)
	}
	stale := filepath.Join(debianDir, "stale")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatalf("Failed to write stale file: %v", err)
	}

	e := testExpander(t)
	if err := e.Place(templateDir, pkgDir, false); err != nil {
		t.Fatalf("Expected placement to succeed, got: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected the stale debian content replaced")
	}
	if _, err := os.Stat(filepath.Join(debianDir, "compat.tpl")); err != nil {
		t.Errorf("Expected fresh template placed: %v", err)
	}
}

func TestPlace_MissingTemplateDirFails(t *testing.T) {
	e := testExpander(t)
	err := e.Place(filepath.Join(t.TempDir(), "nope"), t.TempDir(), false)
	if err == nil {
		t.Fatal("Expected an error for a missing template directory")
	}
	if generator.ClassOf(err) != generator.ErrorClassTemplate {
		t.Errorf("Expected a template-class error, got: %v", err)
	}
}
