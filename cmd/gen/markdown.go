package gen

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var (
	markdownDir string
)

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate markdown reference docs for esplink",
	Long: `Generate one markdown file per command, linked together, into the
	"docs/cli" directory under the current directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(markdownDir, 0750); err != nil {
			return err
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Fprintln(cmd.OutOrStdout(), "Generating esplink markdown docs in", markdownDir, "...")

		return doc.GenMarkdownTree(cmd.Root(), markdownDir)
	},
}

func init() {
	flags := MarkdownCmd.PersistentFlags()

	flags.StringVar(&markdownDir, "dir", "docs/cli", "the directory to write the markdown files.")

	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
