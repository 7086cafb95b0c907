package chunker_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soulprintco/imprint/pkg/archive"
	"github.com/soulprintco/imprint/pkg/chunker"
)

func TestChunker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Chunker Suite")
}

func msg(role, text string) archive.Message {
	return archive.Message{
		Role:  role,
		Parts: []archive.ContentPart{{Kind: archive.PartText, Text: text}},
	}
}

var _ = Describe("EstimateTokens", func() {
	It("approximates a token per four bytes", func() {
		Expect(chunker.EstimateTokens("")).To(Equal(0))
		Expect(chunker.EstimateTokens("abcd")).To(Equal(1))
		Expect(chunker.EstimateTokens(strings.Repeat("x", 400))).To(Equal(100))
	})
})

var _ = Describe("Chunker", func() {
	var c *chunker.Chunker

	BeforeEach(func() {
		var err error
		c, err = chunker.New(chunker.Config{SmallTokens: 10, MediumTokens: 50, LargeTokens: 200})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects non-ascending tier targets", func() {
		_, err := chunker.New(chunker.Config{SmallTokens: 100, MediumTokens: 50, LargeTokens: 200})
		Expect(err).To(HaveOccurred())

		_, err = chunker.New(chunker.Config{SmallTokens: 0, MediumTokens: 50, LargeTokens: 200})
		Expect(err).To(HaveOccurred())
	})

	It("never splits a message across chunks", func() {
		// Each message renders to ~26 bytes (~6 tokens); a 10-token small
		// tier fits one message per chunk once a second would overflow.
		msgs := []archive.Message{
			msg("user", "aaaaaaaaaaaaaaaaaaaa"),
			msg("assistant", "bbbbbbbbbbbbbbbbbbbb"),
			msg("user", "cccccccccccccccccccc"),
		}

		chunks, err := c.SplitTier("conv", msgs, chunker.TierSmall)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(chunks)).To(BeNumerically(">", 1))
		for _, ch := range chunks {
			// Chunk text is whole rendered messages joined by blank lines.
			for _, line := range strings.Split(ch.Text, "\n\n") {
				Expect(line).To(MatchRegexp(`^(user|assistant): `))
			}
		}
	})

	It("gives an oversize message its own chunk", func() {
		big := msg("user", strings.Repeat("x", 1000)) // ~250 tokens > small target
		msgs := []archive.Message{msg("user", "hi"), big, msg("user", "bye")}

		chunks, err := c.SplitTier("conv", msgs, chunker.TierSmall)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(3))
		Expect(chunks[1].TokenEstimate).To(BeNumerically(">", 10))
		Expect(chunks[1].StartIndex).To(Equal(1))
		Expect(chunks[1].EndIndex).To(Equal(2))
	})

	It("produces deterministic ids of the form conv/tier/index", func() {
		msgs := []archive.Message{msg("user", "hello there")}

		first, err := c.SplitTier("conv-9", msgs, chunker.TierMedium)
		Expect(err).NotTo(HaveOccurred())
		second, err := c.SplitTier("conv-9", msgs, chunker.TierMedium)
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(Equal(second))
		Expect(first[0].ID).To(Equal("conv-9/medium/0"))
	})

	It("covers every message exactly once per tier", func() {
		var msgs []archive.Message
		for i := 0; i < 20; i++ {
			msgs = append(msgs, msg("user", strings.Repeat("m", 30)))
		}

		chunks, err := c.SplitTier("conv", msgs, chunker.TierSmall)
		Expect(err).NotTo(HaveOccurred())

		covered := 0
		next := 0
		for _, ch := range chunks {
			Expect(ch.StartIndex).To(Equal(next))
			Expect(ch.EndIndex).To(BeNumerically(">", ch.StartIndex))
			covered += ch.EndIndex - ch.StartIndex
			next = ch.EndIndex
		}
		Expect(covered).To(Equal(len(msgs)))
	})

	It("splits at every tier at once", func() {
		var msgs []archive.Message
		for i := 0; i < 10; i++ {
			msgs = append(msgs, msg("user", strings.Repeat("m", 100)))
		}

		chunks, err := c.Split("conv", msgs)
		Expect(err).NotTo(HaveOccurred())

		seen := map[chunker.Tier]int{}
		for _, ch := range chunks {
			seen[ch.Tier]++
		}
		Expect(seen).To(HaveKey(chunker.TierSmall))
		Expect(seen).To(HaveKey(chunker.TierMedium))
		Expect(seen).To(HaveKey(chunker.TierLarge))
		// Smaller targets mean more chunks.
		Expect(seen[chunker.TierSmall]).To(BeNumerically(">=", seen[chunker.TierMedium]))
		Expect(seen[chunker.TierMedium]).To(BeNumerically(">=", seen[chunker.TierLarge]))
	})

	It("returns no chunks for an empty conversation", func() {
		chunks, err := c.Split("conv", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(BeEmpty())
	})

	It("rejects unknown tiers", func() {
		_, err := c.SplitTier("conv", nil, chunker.Tier("giant"))
		Expect(err).To(HaveOccurred())
	})
})
