package gen_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/luma/esplink/cmd/gen"
)

var _ = Describe("gen / man", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "esplink-man")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("writes a page per command", func() {
		root := &cobra.Command{Use: "esplink"}
		root.AddCommand(&cobra.Command{Use: "start", Run: func(*cobra.Command, []string) {}})
		root.AddCommand(gen.RootCmd)

		out := filepath.Join(dir, "man")
		root.SetArgs([]string{"gen", "man", "--dir", out})
		Expect(root.Execute()).To(Succeed())

		Expect(filepath.Join(out, "esplink.1")).To(BeAnExistingFile())
		Expect(filepath.Join(out, "esplink-start.1")).To(BeAnExistingFile())
		Expect(filepath.Join(out, "esplink-gen-man.1")).To(BeAnExistingFile())
	})

	It("documents the environment on the root page only", func() {
		root := &cobra.Command{Use: "esplink", Long: "Drive an ESP-01."}
		root.AddCommand(&cobra.Command{Use: "start", Run: func(*cobra.Command, []string) {}})
		root.AddCommand(gen.RootCmd)

		out := filepath.Join(dir, "man")
		root.SetArgs([]string{"gen", "man", "--dir", out})
		Expect(root.Execute()).To(Succeed())

		page, err := os.ReadFile(filepath.Join(out, "esplink.1"))
		Expect(err).To(Succeed())
		Expect(string(page)).To(ContainSubstring("ESPLINK_SERIAL_DEVICE"))
		Expect(string(page)).To(ContainSubstring("ESPLINK_CMD_TIMEOUT (default 10s)"))

		page, err = os.ReadFile(filepath.Join(out, "esplink-start.1"))
		Expect(err).To(Succeed())
		Expect(string(page)).NotTo(ContainSubstring("ESPLINK_SERIAL_DEVICE"))

		Expect(root.Long).To(Equal("Drive an ESP-01."))
	})

	It("writes a markdown file per command", func() {
		root := &cobra.Command{Use: "esplink"}
		root.AddCommand(&cobra.Command{Use: "start", Run: func(*cobra.Command, []string) {}})
		root.AddCommand(gen.RootCmd)

		out := filepath.Join(dir, "docs")
		root.SetArgs([]string{"gen", "markdown", "--dir", out})
		Expect(root.Execute()).To(Succeed())

		Expect(filepath.Join(out, "esplink.md")).To(BeAnExistingFile())
		Expect(filepath.Join(out, "esplink_start.md")).To(BeAnExistingFile())
	})
})
