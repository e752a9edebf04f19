package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const appName = "controlpanel"

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Streaming control panel kept in sync with the remote studio",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerGlobalFlags(rootCmd, flags)

	rootCmd.AddCommand(
		newRunCommand(flags),
		newSceneCommand(flags),
		newStreamCommand(flags),
		newOverlayCommand(flags),
		newBrbCommand(flags),
		newRefreshCommand(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	ConfigDir string
	Target    string
	LogLevel  string
}

func registerGlobalFlags(cmd *cobra.Command, f *globalFlags) {
	cmd.PersistentFlags().StringVar(&f.ConfigDir, "config-dir", ".", "directory holding controlpanel.cfg.json and .env")
	cmd.PersistentFlags().StringVar(&f.Target, "target", "", "remote endpoint, overrides channel.target")
	cmd.PersistentFlags().StringVar(&f.LogLevel, "log-level", "", "log level, overrides logLevel")
}
