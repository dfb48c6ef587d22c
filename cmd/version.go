package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/esplink/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := meta.GetInfo()

		fmt.Fprintf(cmd.OutOrStdout(), "esplink %s\n", info.String())
	},
}
