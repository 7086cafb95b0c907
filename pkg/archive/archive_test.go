package archive_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soulprintco/imprint/pkg/archive"
)

func TestArchive(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Archive Suite")
}

func strptr(s string) *string { return &s }

func jsonUnmarshal(data string, v any) error {
	return json.Unmarshal([]byte(data), v)
}

// treeConv builds a three-message linear conversation:
// root -> user "hello" -> assistant "hi there", current_node on the leaf.
func treeConv() *archive.Conversation {
	return &archive.Conversation{
		ID:          "conv-1",
		CurrentNode: "n2",
		Mapping: map[string]*archive.Node{
			"root": {ID: "root", Children: []string{"n1"}},
			"n1": {
				ID: "n1", Parent: strptr("root"), Children: []string{"n2"},
				Message: &archive.Message{
					Role:  archive.RoleUser,
					Parts: []archive.ContentPart{{Kind: archive.PartText, Text: "hello"}},
				},
			},
			"n2": {
				ID: "n2", Parent: strptr("n1"),
				Message: &archive.Message{
					Role:  archive.RoleAssistant,
					Parts: []archive.ContentPart{{Kind: archive.PartText, Text: "hi there"}},
				},
			},
		},
	}
}

var _ = Describe("ScanArchive", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("streams a bare array of conversations", func() {
		input := `[
			{"conversation_id": "a", "title": "first", "mapping": {}},
			{"conversation_id": "b", "title": "second", "mapping": {}}
		]`

		var ids []string
		err := archive.ScanArchive(ctx, strings.NewReader(input), func(c *archive.Conversation) error {
			ids = append(ids, c.ID)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"a", "b"}))
	})

	It("streams an object-wrapped archive, skipping sibling objects", func() {
		input := `{
			"meta": {"exported_at": 123, "nested": {"deep": [1, 2, 3]}},
			"conversations": [{"id": "wrapped"}]
		}`

		var ids []string
		err := archive.ScanArchive(ctx, strings.NewReader(input), func(c *archive.Conversation) error {
			ids = append(ids, c.ID)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"wrapped"}))
	})

	It("falls back from conversation_id to id", func() {
		input := `[{"id": "only-id"}]`

		var got string
		err := archive.ScanArchive(ctx, strings.NewReader(input), func(c *archive.Conversation) error {
			got = c.ID
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("only-id"))
	})

	It("propagates callback errors", func() {
		input := `[{"id": "a"}, {"id": "b"}]`

		calls := 0
		err := archive.ScanArchive(ctx, strings.NewReader(input), func(c *archive.Conversation) error {
			calls++
			return fmt.Errorf("boom")
		})
		Expect(err).To(MatchError(ContainSubstring("boom")))
		Expect(calls).To(Equal(1))
	})

	It("rejects non-JSON input", func() {
		err := archive.ScanArchive(ctx, strings.NewReader("not json"), func(*archive.Conversation) error {
			return nil
		})
		Expect(err).To(HaveOccurred())
	})

	It("stops when the context is cancelled", func() {
		input := `[{"id": "a"}, {"id": "b"}]`

		cctx, cancel := context.WithCancel(ctx)
		err := archive.ScanArchive(cctx, strings.NewReader(input), func(c *archive.Conversation) error {
			cancel()
			return nil
		})
		Expect(err).To(MatchError(context.Canceled))
	})

	It("decodes export-shaped messages inside the mapping", func() {
		input := `[{
			"conversation_id": "full",
			"current_node": "n1",
			"mapping": {
				"root": {"id": "root", "parent": null, "children": ["n1"]},
				"n1": {
					"id": "n1", "parent": "root", "children": [],
					"message": {
						"author": {"role": "user"},
						"content": {"content_type": "text", "parts": ["question?"]},
						"metadata": {"is_visually_hidden_from_conversation": true},
						"create_time": 1700000000.5
					}
				}
			}
		}]`

		var conv *archive.Conversation
		err := archive.ScanArchive(ctx, strings.NewReader(input), func(c *archive.Conversation) error {
			conv = c
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		node := conv.Mapping["n1"]
		Expect(node).NotTo(BeNil())
		Expect(node.Message.Role).To(Equal(archive.RoleUser))
		Expect(node.Message.Text()).To(Equal("question?"))
		Expect(node.Message.Hidden).To(BeTrue())
		Expect(node.Message.CreateTime).To(BeNumerically("~", 1700000000.5))
	})

	It("decodes pre-parsed messages with flat role and string content", func() {
		input := `[{
			"id": "flat",
			"messages": [
				{"role": "user", "content": "plain string content"},
				{"role": "assistant", "content": "reply"}
			]
		}]`

		var conv *archive.Conversation
		err := archive.ScanArchive(ctx, strings.NewReader(input), func(c *archive.Conversation) error {
			conv = c
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Messages).To(HaveLen(2))
		Expect(conv.Messages[0].Role).To(Equal(archive.RoleUser))
		Expect(conv.Messages[0].Text()).To(Equal("plain string content"))
	})
})

var _ = Describe("Message content parts", func() {
	It("classifies mixed parts", func() {
		input := `{
			"author": {"role": "assistant"},
			"content": {"content_type": "multimodal_text", "parts": [
				"leading text",
				{"asset_pointer": "file-service://abc"},
				{"text": "object text"},
				{"content_type": "mystery"}
			]}
		}`

		var m archive.Message
		Expect(jsonUnmarshal(input, &m)).To(Succeed())
		Expect(m.Parts).To(HaveLen(4))
		Expect(m.Parts[0].Kind).To(Equal(archive.PartText))
		Expect(m.Parts[1].Kind).To(Equal(archive.PartAssetPointer))
		Expect(m.Parts[1].AssetID).To(Equal("file-service://abc"))
		Expect(m.Parts[2].Kind).To(Equal(archive.PartText))
		Expect(m.Parts[3].Kind).To(Equal(archive.PartOther))
		Expect(m.Text()).To(Equal("leading text\nobject text"))
	})

	It("extracts text-carrying content objects without parts", func() {
		input := `{"author": {"role": "tool"}, "content": {"content_type": "tether_quote", "text": "quoted"}}`

		var m archive.Message
		Expect(jsonUnmarshal(input, &m)).To(Succeed())
		Expect(m.Text()).To(Equal("quoted"))
	})

	It("treats null content as empty", func() {
		input := `{"author": {"role": "system"}, "content": null}`

		var m archive.Message
		Expect(jsonUnmarshal(input, &m)).To(Succeed())
		Expect(m.Parts).To(BeEmpty())
		Expect(m.Text()).To(Equal(""))
	})
})

var _ = Describe("Reconstruct", func() {
	It("walks back from current_node and returns root-first order", func() {
		msgs, err := archive.Reconstruct(treeConv())
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Text()).To(Equal("hello"))
		Expect(msgs[1].Text()).To(Equal("hi there"))
	})

	It("skips structural nodes without messages", func() {
		conv := treeConv()
		// The root node carries no message and must not appear in output.
		msgs, err := archive.Reconstruct(conv)
		Expect(err).NotTo(HaveOccurred())
		for _, m := range msgs {
			Expect(m.Text()).NotTo(BeEmpty())
		}
	})

	It("follows the last child at branches when current_node is absent", func() {
		conv := treeConv()
		conv.CurrentNode = ""
		// Add an abandoned sibling branch; the walk must take the last child.
		conv.Mapping["n1"].Children = []string{"n2-old", "n2"}
		conv.Mapping["n2-old"] = &archive.Node{
			ID: "n2-old", Parent: strptr("n1"),
			Message: &archive.Message{
				Role:  archive.RoleAssistant,
				Parts: []archive.ContentPart{{Kind: archive.PartText, Text: "abandoned"}},
			},
		}

		msgs, err := archive.Reconstruct(conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Text()).To(Equal("hi there"))
	})

	It("passes pre-parsed flat messages through untouched", func() {
		conv := &archive.Conversation{
			ID: "flat",
			Messages: []archive.Message{
				{Role: archive.RoleUser, Parts: []archive.ContentPart{{Kind: archive.PartText, Text: "a"}}},
			},
		}
		msgs, err := archive.Reconstruct(conv)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
	})

	It("returns MalformedTreeError when current_node is not in the mapping", func() {
		conv := treeConv()
		conv.CurrentNode = "nope"

		_, err := archive.Reconstruct(conv)
		var mte *archive.MalformedTreeError
		Expect(err).To(BeAssignableToTypeOf(mte))
		Expect(err.Error()).To(ContainSubstring("nope"))
	})

	It("returns MalformedTreeError on a dangling parent pointer", func() {
		conv := treeConv()
		conv.Mapping["n1"].Parent = strptr("missing")

		_, err := archive.Reconstruct(conv)
		var mte *archive.MalformedTreeError
		Expect(err).To(BeAssignableToTypeOf(mte))
	})

	It("terminates with MalformedTreeError on a parent cycle", func() {
		conv := treeConv()
		conv.Mapping["root"].Parent = strptr("n2")

		_, err := archive.Reconstruct(conv)
		var mte *archive.MalformedTreeError
		Expect(err).To(BeAssignableToTypeOf(mte))
		Expect(err.Error()).To(ContainSubstring("cycle"))
	})

	It("terminates with MalformedTreeError on a child cycle in the forward walk", func() {
		conv := treeConv()
		conv.CurrentNode = ""
		conv.Mapping["n2"].Children = []string{"n1"}

		_, err := archive.Reconstruct(conv)
		var mte *archive.MalformedTreeError
		Expect(err).To(BeAssignableToTypeOf(mte))
	})

	It("returns MalformedTreeError when no root exists", func() {
		conv := treeConv()
		conv.CurrentNode = ""
		conv.Mapping["root"].Parent = strptr("n2")

		_, err := archive.Reconstruct(conv)
		var mte *archive.MalformedTreeError
		Expect(err).To(BeAssignableToTypeOf(mte))
		Expect(err.Error()).To(ContainSubstring("no root"))
	})

	It("handles an empty conversation", func() {
		msgs, err := archive.Reconstruct(&archive.Conversation{ID: "empty"})
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})
})

var _ = Describe("FilterMessages", func() {
	text := func(s string) []archive.ContentPart {
		return []archive.ContentPart{{Kind: archive.PartText, Text: s}}
	}

	It("drops hidden messages but keeps user-system ones", func() {
		msgs := []archive.Message{
			{Role: archive.RoleUser, Parts: text("visible")},
			{Role: archive.RoleTool, Parts: text("tool noise"), Hidden: true},
			{Role: archive.RoleSystem, Parts: text("custom instructions"), Hidden: true, UserSystem: true},
		}

		out := archive.FilterMessages(msgs)
		Expect(out).To(HaveLen(2))
		Expect(out[0].Text()).To(Equal("visible"))
		Expect(out[1].Text()).To(Equal("custom instructions"))
	})

	It("drops messages with no text content", func() {
		msgs := []archive.Message{
			{Role: archive.RoleAssistant, Parts: []archive.ContentPart{{Kind: archive.PartAssetPointer, AssetID: "x"}}},
			{Role: archive.RoleUser, Parts: text("   ")},
			{Role: archive.RoleUser, Parts: text("kept")},
		}

		out := archive.FilterMessages(msgs)
		Expect(out).To(HaveLen(1))
		Expect(out[0].Text()).To(Equal("kept"))
	})

	It("returns an empty slice for empty input", func() {
		Expect(archive.FilterMessages(nil)).To(BeEmpty())
	})
})
