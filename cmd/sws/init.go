package main

import (
	"fmt"

	"github.com/marmos91/sws/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		force  bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				var err error
				path, err = config.InitConfig(force)
				if err != nil {
					return err
				}
			} else if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	cmd.Flags().StringVar(&output, "output", "", "write to this path instead of the default location")
	return cmd
}
