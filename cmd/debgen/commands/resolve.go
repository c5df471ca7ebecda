package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/debgen/debgen/pkg/resolve"
	"github.com/debgen/debgen/pkg/telemetry"
)

func newResolveCommand() *cobra.Command {
	var (
		osName     string
		osVersion  string
		channel    string
		rulesFiles []string
	)

	cmd := &cobra.Command{
		Use:   "resolve <key>...",
		Short: "Resolve dependency keys against the rule files",
		Long: `Resolve one or more dependency keys the way a generation run would,
printing the target-system package names per key. Keys without a mapping
fall back to their literal name, exactly as during generation.`,
		Example: `  # Check what libfoo-dev resolves to on ubuntu noble
  debgen resolve --rules rules.yaml --os-name ubuntu --os-version noble libfoo-dev`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := telemetry.NewLogger(telemetry.DefaultLoggingConfig())
			if err != nil {
				return err
			}

			service, err := resolve.NewRulesService(rulesFiles...)
			if err != nil {
				return err
			}
			resolver := resolve.NewResolver(service, resolve.DefaultRetryPolicy(), logger.NewComponentLogger("resolver"))

			resolved := resolver.Resolve(cmd.Context(), args, osName, osVersion, channel, nil)
			for _, key := range args {
				fmt.Printf("%-24s => %v\n", key, resolved[key])
			}
			if unresolved := resolver.Unresolved(); len(unresolved) > 0 {
				logger.Warnf("keys resolved to their literal names: %v", unresolved)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&osName, "os-name", "ubuntu", "OS name, e.g. ubuntu, debian")
	cmd.Flags().StringVar(&osVersion, "os-version", "noble", "OS version or codename")
	cmd.Flags().StringVar(&channel, "channel", "", "distribution channel")
	cmd.Flags().StringSliceVar(&rulesFiles, "rules", nil, "dependency-resolution rule files")

	return cmd
}
