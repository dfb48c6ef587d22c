package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/esplink/cmd/gen"
)

var (
	// Overrides ESPLINK_LOG_LEVEL with debug
	debug bool
)

var RootCmd = &cobra.Command{
	Use:   "esplink",
	Short: "Drive an ESP-01 WiFi co-processor over its AT command port",
	Long: `esplink brings an ESP-01 WiFi module up from power-on to a listening
TCP server, tracks the clients that connect to it and relays their messages.

Configuration is read from the environment (ESPLINK_*) and .env.local.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")

	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(SimulateCmd)
	RootCmd.AddCommand(ProbeCmd)
	RootCmd.AddCommand(StatusCmd)
	RootCmd.AddCommand(PortsCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
