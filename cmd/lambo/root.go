package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lambo",
		Short: "lambo is an HTTP reverse-proxy load balancer",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "path to configuration file")

	serve := newServeCmd()
	root.AddCommand(serve)
	root.AddCommand(newValidateCmd())

	// Running `lambo` with no subcommand behaves like `lambo serve`.
	root.RunE = serve.RunE

	return root
}
