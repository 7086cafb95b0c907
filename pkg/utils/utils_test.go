package utils_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soulprintco/imprint/pkg/utils"
)

func TestUtils(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Utils Suite")
}

var _ = Describe("Truncate", func() {
	It("leaves short strings untouched", func() {
		Expect(utils.Truncate("short", 512)).To(Equal("short"))
	})

	It("keeps strings at exactly the cap", func() {
		exact := strings.Repeat("x", 512)
		Expect(utils.Truncate(exact, 512)).To(Equal(exact))
	})

	It("never exceeds the cap, ellipsis included", func() {
		out := utils.Truncate(strings.Repeat("x", 600), 512)
		Expect(len(out)).To(BeNumerically("<=", 512))
		Expect(out).To(HaveSuffix("..."))
	})

	It("clips hard when the cap cannot fit an ellipsis", func() {
		Expect(utils.Truncate("abcdef", 2)).To(Equal("ab"))
	})
})
