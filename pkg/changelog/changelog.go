// Package changelog reads a package's version-ordered change history and
// merges it into the date-stamped, releaser-attributed entry sequence the
// substitution builder embeds in the generated debian/changelog.
//
// The source format is a CHANGELOG.md with one section per version, newest
// first:
//
//	## 1.2.0 (2024-03-01)
//	- Added the frobnicator
//	- Fixed startup crash
//
//	## 1.1.0 (2023-11-20)
//	- Initial stable release
//
// The currently-released version is guaranteed to appear (synthesized when
// absent) and must be the newest entry; violations surface as a
// ValidationIssue for the caller's confirm gate, never as a silent fix.
package changelog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/debgen/debgen/pkg/meta"
	"github.com/debgen/debgen/pkg/telemetry"
)

// RFC2822Layout is the date layout used inside generated changelog entries.
const RFC2822Layout = "Mon, 02 Jan 2006 15:04:05 -0700"

// AutogeneratedChanges is the change text of a synthesized entry.
const AutogeneratedChanges = "  * Autogenerated, no changelog for this version found in " + meta.ChangelogFilename + "."

// Entry is one release's changelog record, newest-first in a merged
// sequence.
type Entry struct {
	Version  string
	Date     string // RFC 2822
	Changes  string // newline-joined, each line two-space indented
	Releaser string
	Email    string
}

// Releaser identifies who released a given version.
type Releaser struct {
	Name  string
	Email string
}

// ReleaserHistory maps a version to the releaser of record for that version.
type ReleaserHistory map[string]Releaser

// ValidationIssue describes changelog anomalies that need operator
// confirmation (or a hard stop in strict mode).
type ValidationIssue struct {
	Problems []string
}

func (v *ValidationIssue) String() string {
	return strings.Join(v.Problems, "; ")
}

// section is one parsed CHANGELOG.md version section, in file order.
type section struct {
	version string
	date    time.Time
	hasDate bool
	changes []string
}

var sectionHeader = regexp.MustCompile(`^##\s+(\S+)(?:\s+\((\d{4}-\d{2}-\d{2})\))?\s*$`)

// parseFile parses the package's changelog file. A missing file yields an
// empty history and no error.
func parseFile(path string) ([]section, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var sections []section
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if m := sectionHeader.FindStringSubmatch(line); m != nil {
			sec := section{version: m[1]}
			if m[2] != "" {
				if date, err := time.Parse("2006-01-02", m[2]); err == nil {
					sec.date = date
					sec.hasDate = true
				}
			}
			sections = append(sections, sec)
			continue
		}
		if len(sections) == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		sections[len(sections)-1].changes = append(sections[len(sections)-1].changes, formatChangeLine(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return sections, true, nil
}

// formatChangeLine indents one change line for quoting inside a debian
// changelog block, normalizing markdown dashes to asterisk bullets.
func formatChangeLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "- ") {
		trimmed = "* " + strings.TrimPrefix(trimmed, "- ")
	}
	return "  " + trimmed
}

// Merge reads the package's change history and produces the validated,
// newest-first entry sequence. The currently-released version is synthesized
// at the head when the history lacks it. Validation anomalies are returned
// as a non-nil ValidationIssue; the sequence is still returned so the caller
// can continue after an operator confirmation.
func Merge(pkg *meta.Package, history ReleaserHistory, now func() time.Time, logger *telemetry.Logger) ([]Entry, *ValidationIssue, error) {
	if now == nil {
		now = time.Now
	}
	maintainer := pkg.PrimaryMaintainer()

	path := filepath.Join(pkg.Dir, meta.ChangelogFilename)
	sections, found, err := parseFile(path)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		logger.Warnf("no %s found for package %q", meta.ChangelogFilename, pkg.Name)
	}
	if len(history) == 0 && len(sections) > 0 {
		logger.Warn("no releaser history, attributing every entry to the current maintainer")
	}

	entries := make([]Entry, 0, len(sections)+1)
	haveCurrent := false
	for _, sec := range sections {
		releaser := Releaser{Name: maintainer.Name, Email: maintainer.Email}
		if r, ok := history[sec.version]; ok {
			releaser = r
		}
		date := now()
		if sec.hasDate {
			date = sec.date
		}
		entries = append(entries, Entry{
			Version:  sec.version,
			Date:     date.Format(RFC2822Layout),
			Changes:  strings.Join(sec.changes, "\n"),
			Releaser: releaser.Name,
			Email:    releaser.Email,
		})
		if sec.version == pkg.Version {
			haveCurrent = true
		}
	}

	if found && !haveCurrent {
		logger.Warnf("a %s was found, but it has no entry for the version being released (%s); every version should have an entry, even a blank one",
			meta.ChangelogFilename, pkg.Version)
	}
	if !haveCurrent {
		entries = append([]Entry{{
			Version:  pkg.Version,
			Date:     now().Format(RFC2822Layout),
			Changes:  AutogeneratedChanges,
			Releaser: maintainer.Name,
			Email:    maintainer.Email,
		}}, entries...)
	}

	issue := validate(pkg, entries)
	return entries, issue, nil
}

// validate checks that the release's own version heads the sequence and that
// no entry is newer than it. Violations are reported, never corrected.
func validate(pkg *meta.Package, entries []Entry) *ValidationIssue {
	var problems []string
	if entries[0].Version != pkg.Version {
		problems = append(problems, fmt.Sprintf(
			"the first changelog entry %q is not the version being released (%s)",
			entries[0].Version, pkg.Version))
	}
	for _, e := range entries {
		if versionNewer(e.Version, pkg.Version) {
			problems = append(problems, fmt.Sprintf(
				"changelog entry %q is newer than the version of package %q being released (%s)",
				e.Version, pkg.Name, pkg.Version))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationIssue{Problems: problems}
}

// versionNewer reports whether a is strictly newer than b under semantic
// version precedence. Unparseable versions compare lexically as a last
// resort so validation still catches the obvious cases.
func versionNewer(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a > b
	}
	return va.GreaterThan(vb)
}
