package gen

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/esplink/internal/env"
	"github.com/luma/esplink/internal/meta"
)

// buildTimeLayout matches the BuildTimeUTC the release build stamps.
const buildTimeLayout = "2006/01/02 15:04:05"

var (
	manDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for esplink",
	Long: `Generate one man page per esplink command into the "man" directory
under the current directory. The page of the root command also documents
every ESPLINK_* environment variable and its default.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		header := &doc.GenManHeader{
			Title:   "ESPLINK",
			Section: "1",
			Manual:  "esplink Manual",
			Source:  "esplink " + info.Version,
		}

		if built, err := time.Parse(buildTimeLayout, info.BuildTime); err == nil {
			header.Date = &built
		}

		if err := os.MkdirAll(manDir, 0750); err != nil {
			return err
		}

		root := cmd.Root()
		root.DisableAutoGenTag = true

		long := root.Long
		root.Long = withEnvironment(long)
		defer func() { root.Long = long }()

		fmt.Fprintln(cmd.OutOrStdout(), "Generating esplink man pages in", manDir, "...")

		return doc.GenManTree(root, header, manDir)
	},
}

// withEnvironment appends the configuration variables to a command's long
// description.
func withEnvironment(long string) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(long, "\n"))
	b.WriteString("\n\nEnvironment (also read from .env.local):\n\n")

	for _, v := range env.Variables() {
		if v.Default == "" {
			fmt.Fprintf(&b, "    %s\n", v.Name)
			continue
		}

		fmt.Fprintf(&b, "    %s (default %s)\n", v.Name, v.Default)
	}

	return b.String()
}

func init() {
	flags := ManPagesCmd.PersistentFlags()

	flags.StringVar(&manDir, "dir", "man", "the directory to write the man pages.")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
