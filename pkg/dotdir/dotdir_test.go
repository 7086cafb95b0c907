package dotdir_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soulprintco/imprint/pkg/dotdir"
)

func TestDotdir(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dotdir Suite")
}

var _ = Describe("Resolve", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())

		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("creates the override directory if it does not exist", func() {
		dir := filepath.Join(tmpDir, "newdir")
		result, err := dotdir.Resolve(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(dir))

		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("prefers the override over a local .imprint dir", func() {
		Expect(os.Mkdir(filepath.Join(tmpDir, ".imprint"), 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })

		override := filepath.Join(tmpDir, "override")
		result, err := dotdir.Resolve(override)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(override))
	})

	It("uses a local .imprint dir when no override is given", func() {
		local := filepath.Join(tmpDir, ".imprint")
		Expect(os.Mkdir(local, 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })

		result, err := dotdir.Resolve("")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(local))
	})

	It("falls back to ~/.imprint and creates it", func() {
		emptyDir := filepath.Join(tmpDir, "empty")
		Expect(os.Mkdir(emptyDir, 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(emptyDir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })

		origHome := os.Getenv("HOME")
		Expect(os.Setenv("HOME", emptyDir)).To(Succeed())
		DeferCleanup(func() { os.Setenv("HOME", origHome) })

		result, err := dotdir.Resolve("")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(filepath.Join(emptyDir, ".imprint")))

		info, err := os.Stat(result)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})
})
