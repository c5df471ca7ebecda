package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/debgen/debgen/pkg/meta"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate package descriptors",
		Long: `Validate every package descriptor found under the given path.

This command checks:
  - YAML syntax validity
  - Conformance to the built-in package schema
  - Struct-level constraints (maintainer contact details, URLs)

It performs no resolution and writes nothing.`,
		Example: `  # Validate descriptors in the current directory
  debgen validate

  # Validate a specific release tree
  debgen validate ./my-release`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			log.Info().Str("path", path).Msg("Validating package descriptors")

			parser := meta.NewParser()
			packages, err := parser.FindPackages(cmd.Context(), path)
			if err != nil {
				return err
			}
			if len(packages) == 0 {
				return fmt.Errorf("no packages found in path %q", path)
			}
			for _, pkg := range packages {
				fmt.Printf("%s %s (%s) ok\n", pkg.Name, pkg.Version, pkg.BuildType)
			}
			return nil
		},
	}

	return cmd
}
