package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phi-labs-ltd/lambo-proxy/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "load and validate a configuration file without starting the listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: %d group(s), %d rule(s)\n", len(cfg.Groups), len(cfg.Rules))
			return nil
		},
	}
}
