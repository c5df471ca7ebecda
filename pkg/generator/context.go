package generator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/debgen/debgen/pkg/telemetry"
)

// RunContext carries the per-run policy and identity that every pipeline
// stage needs. It replaces process-wide verbosity and prompt toggles with an
// explicit object passed through each call.
type RunContext struct {
	// RunID uniquely identifies this run and is attached to every log line.
	RunID string

	// Logger is the run's base logger; stages derive component loggers.
	Logger *telemetry.Logger

	// Verbose enables per-key dependency mapping summaries and other
	// debug-level output.
	Verbose bool

	// Interactive selects the confirm-gate policy for changelog-validation
	// warnings. Automated runs never prompt.
	Interactive bool

	// StrictChangelog makes changelog-validation anomalies fatal in
	// automated runs instead of continuing with a warning.
	StrictChangelog bool

	// Confirm asks the operator a yes/no question, defaulting to no.
	// Only consulted when Interactive is true.
	Confirm func(prompt string) bool

	// Now supplies the timestamp used for synthesized changelog entries and
	// date substitutions. Injectable for deterministic tests.
	Now func() time.Time
}

// NewRunContext creates a run context with a fresh run ID, stdin-backed
// confirmation, and wall-clock time.
func NewRunContext(logger *telemetry.Logger, verbose, interactive, strictChangelog bool) *RunContext {
	runID := uuid.New().String()
	return &RunContext{
		RunID:           runID,
		Logger:          logger.WithRunID(runID),
		Verbose:         verbose,
		Interactive:     interactive,
		StrictChangelog: strictChangelog,
		Confirm:         confirmFromStdin(os.Stdin, os.Stderr),
		Now:             time.Now,
	}
}

// ComponentLogger returns a child logger for the named pipeline component.
func (rc *RunContext) ComponentLogger(component string) *telemetry.Logger {
	return rc.Logger.NewComponentLogger(component)
}

// confirmFromStdin returns a confirm function reading one line from in.
// Anything other than "y" or "yes" declines.
func confirmFromStdin(in io.Reader, out io.Writer) func(string) bool {
	reader := bufio.NewReader(in)
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}
