package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/servery/internal/config"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "servery",
	Short:   "Provision game servers as Docker containers",
	Long:    `servery keeps a registry of servers and launches a container for each one from a configuration template.`,
	Version: version,
	// every subcommand needs the config, so load it before any of them run
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigFile,
		"config file")
	rootCmd.PersistentFlags().String("listen", "",
		"API listen address (overrides listen_addr)")

	// Bind flags to viper
	_ = viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd, serversCmd, initCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(viper.GetViper(), cfgFile)
	return err
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
