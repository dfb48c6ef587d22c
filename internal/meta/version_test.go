package meta_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/esplink/internal/meta"
)

var _ = Describe("meta / Info", func() {
	It("falls back to dev for unstamped builds", func() {
		info := meta.Info{Platform: "linux arm", GoVersion: "go1.21"}
		Expect(info.String()).To(Equal("dev linux arm go1.21"))
	})

	It("includes the stamped fields", func() {
		info := meta.Info{
			Version:   "1.2.0",
			Build:     "abc123",
			Branch:    "main",
			BuildTime: "2021/09/01 10:00:00",
			Platform:  "linux arm",
			GoVersion: "go1.21",
			GoTag:     "netgo",
		}

		Expect(info.String()).To(Equal("1.2.0 (main@abc123) built 2021/09/01 10:00:00 linux arm go1.21 tags netgo"))
	})

	It("reports the running platform", func() {
		info := meta.GetInfo()
		Expect(info.Platform).NotTo(BeEmpty())
		Expect(info.GoVersion).To(HavePrefix("go"))
	})
})
