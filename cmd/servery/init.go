package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melih/servery/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config and server template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, f := range []struct {
			path  string
			write func(string) (bool, error)
		}{
			{cfgFile, config.WriteDefaultConfig},
			{cfg.TemplatePath, config.WriteDefaultTemplate},
		} {
			wrote, err := f.write(f.path)
			if err != nil {
				return err
			}
			if wrote {
				fmt.Fprintf(out, "wrote %s\n", f.path)
			} else {
				fmt.Fprintf(out, "kept existing %s\n", f.path)
			}
		}
		return nil
	},
}
