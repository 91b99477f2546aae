package main

import (
	"github.com/spf13/cobra"

	"github.com/driveindex/driveindex/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		shown := *cc.Cfg
		if shown.Status.Token != "" {
			shown.Status.Token = "********"
		}

		return printJSON(cc.stdout, shown)
	}

	return config.RenderEffective(cc.Cfg, cc.CfgPath, cc.stdout)
}
