package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "computedemo",
		Short: "Exercise the gogpu compute runtime",
		Long: `computedemo records element-wise add dispatches from many goroutines
into one compute runtime and prints how they were batched into submissions.

Settings come from defaults, an optional config file (--config), COMPUTE_*
environment variables and flags, in increasing priority.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(newRunCmd(&cfgFile), newConfigCmd(&cfgFile))
	return root
}

func newRunCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit dispatches concurrently and report statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(newViper(), *cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	d := defaultDemoConfig()
	f := cmd.Flags()
	f.String("backend", d.Backend, "device backend: noop, vulkan or default")
	f.Int("goroutines", d.Goroutines, "number of submitting goroutines")
	f.Int("dispatches", d.Dispatches, "dispatches per goroutine")
	f.Uint32("elements", d.Elements, "elements per buffer")
	f.Bool("spirv", d.SPIRV, "compile shaders to SPIR-V with naga")
	f.Bool("verify", d.Verify, "read the output back and check it")
	f.Bool("profile", d.Profile, "enable timestamp diagnostics when supported")
	f.String("log-level", d.LogLevel, "log level: debug, info, warn or error")
	f.Uint32("submit-frequency", d.Runtime.CmdSubmitFrequency, "dispatches per automatic submission")
	f.Duration("wait-timeout", d.Runtime.WaitTimeout, "fence wait timeout")
	return cmd
}

func newConfigCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := newViper()
			if _, err := loadConfig(v, *cfgFile, nil); err != nil {
				return err
			}
			return writeSettings(cmd.OutOrStdout(), v)
		},
	}
}
