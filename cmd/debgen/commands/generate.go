package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/pipeline"
	"github.com/debgen/debgen/pkg/telemetry"
)

func newGenerateCommand() *cobra.Command {
	var (
		placeTemplates   bool
		processTemplates bool
		osName           string
		osVersion        string
		channel          string
		installPrefix    string
		native           bool
		releaseInc       int
		releaseName      string
		rulesFiles       []string
		templatesDir     string
		strictChangelog  bool
		nonInteractive   bool
		gbp              bool
	)

	cmd := &cobra.Command{
		Use:   "generate [package_path]",
		Short: "Generate the debian/ control-file tree for a release",
		Long: `Generate the debian/ control-file tree for the package(s) at the given path
(default: current directory).

The run discovers every package descriptor under the path, builds one
substitution map per package, aggregates them under a release-unit header,
places the build type's template tree into debian/, and expands every
template. Passing --place-template-files or --process-template-files limits
the run to that stage; by default both run.`,
		Example: `  # Generate control files for the release in the current directory
  debgen generate --os-name ubuntu --os-version noble --channel jazzy

  # Only re-process already placed templates
  debgen generate --process-template-files ./my-release

  # Native package format, custom prefix
  debgen generate --native --install-prefix /opt ./my-release`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			log.Info().
				Str("path", path).
				Str("os_name", osName).
				Str("os_version", osVersion).
				Str("channel", channel).
				Msg("Generating control files")

			logCfg := telemetry.DefaultLoggingConfig()
			if verbose {
				logCfg.Level = "debug"
			}
			if jsonOutput {
				logCfg.Format = "json"
			}
			logger, err := telemetry.NewLogger(logCfg)
			if err != nil {
				return err
			}
			rc := generator.NewRunContext(logger, verbose, !nonInteractive, strictChangelog)

			// Neither stage flag given means both stages run.
			if !placeTemplates && !processTemplates {
				placeTemplates = true
				processTemplates = true
			}

			return pipeline.Generate(cmd.Context(), rc, pipeline.Options{
				PackagePath:      path,
				TemplatesDir:     templatesDir,
				RulesFiles:       rulesFiles,
				OSName:           osName,
				OSVersion:        osVersion,
				Channel:          channel,
				InstallPrefix:    installPrefix,
				ReleaseInc:       releaseInc,
				Native:           native,
				ReleaseName:      releaseName,
				PlaceTemplates:   placeTemplates,
				ProcessTemplates: processTemplates,
				Gbp:              gbp,
			})
		},
	}

	cmd.Flags().BoolVar(&placeTemplates, "place-template-files", false, "place debian/* template files only")
	cmd.Flags().BoolVar(&processTemplates, "process-template-files", false, "process templates in debian/* only")
	cmd.MarkFlagsMutuallyExclusive("place-template-files", "process-template-files")
	cmd.Flags().StringVar(&osName, "os-name", "ubuntu", "OS name, e.g. ubuntu, debian")
	cmd.Flags().StringVar(&osVersion, "os-version", "noble", "OS version or codename, e.g. noble, bookworm")
	cmd.Flags().StringVar(&channel, "channel", "", "distribution channel the resolved dependency names target")
	cmd.Flags().StringVar(&installPrefix, "install-prefix", "/usr", "overrides the default installation prefix")
	cmd.Flags().BoolVar(&native, "native", false, "generate a native-format package")
	cmd.Flags().IntVar(&releaseInc, "release-inc", 0, "release increment number for non-native packages")
	cmd.Flags().StringVar(&releaseName, "release-name", "", "release-unit name for the aggregated header (default: base of package path)")
	cmd.Flags().StringSliceVar(&rulesFiles, "rules", nil, "dependency-resolution rule files")
	cmd.Flags().StringVar(&templatesDir, "templates", "templates", "template tree root containing one directory per build type")
	cmd.Flags().BoolVar(&strictChangelog, "strict-changelog", true, "fail on changelog-validation anomalies in non-interactive runs")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; changelog anomalies follow --strict-changelog")
	cmd.Flags().BoolVar(&gbp, "gbp", false, "keep the gbp.conf release-tooling template")

	return cmd
}
