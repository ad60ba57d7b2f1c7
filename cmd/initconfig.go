package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/carpool-sim/carpool-sim/sim"
)

var forceInit bool

// initConfigCmd writes the built-in default configuration as a starting point.
var initConfigCmd = &cobra.Command{
	Use:   "initconfig [path]",
	Short: "Write the default YAML configuration",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil && !forceInit {
			logrus.Fatalf("%s already exists (use --force to overwrite)", path)
		}

		if err := sim.WriteDefaultConfig(path); err != nil {
			logrus.Fatalf("write config: %v", err)
		}
		logrus.Infof("default configuration written to %s", path)
	},
}

func init() {
	initConfigCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initConfigCmd)
}
