// Package archive models exported chat-history archives: the conversation
// DAG layout produced by chat exports, a constant-memory streaming scanner
// over multi-gigabyte archive files, active-path reconstruction, and message
// filtering.
package archive

import (
	"encoding/json"
	"strings"
)

// Author roles observed in exports.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// PartKind discriminates the polymorphic content parts of an exported message.
type PartKind int

const (
	// PartText is a plain text part; the only kind the pipeline consumes.
	PartText PartKind = iota

	// PartAssetPointer references an uploaded or generated asset.
	PartAssetPointer

	// PartOther covers every part shape we do not recognize.
	PartOther
)

// ContentPart is a tagged variant over the export's duck-typed content parts.
type ContentPart struct {
	Kind    PartKind
	Text    string
	AssetID string
}

// Message is a single conversation message with its visibility flags.
type Message struct {
	Role       string
	Parts      []ContentPart
	Hidden     bool
	UserSystem bool
	CreateTime float64
}

// Text concatenates the message's text parts in order. Asset pointers and
// unrecognized parts are skipped; the pipeline is text-only.
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Parts {
		if p.Kind != PartText {
			continue
		}
		if s := strings.TrimSpace(p.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Node is one entry in a conversation's mapping. Some nodes are structural
// placeholders with no message (the synthetic root, client-side markers).
type Node struct {
	ID       string   `json:"id"`
	Parent   *string  `json:"parent"`
	Children []string `json:"children"`
	Message  *Message `json:"message"`
}

// Conversation is a single exported conversation: a node-indexed tree plus
// the leaf id the export considered active. Pre-parsed exports carry a flat
// Messages list and no Mapping.
type Conversation struct {
	ID          string
	Title       string
	CreateTime  float64
	CurrentNode string
	Mapping     map[string]*Node
	Messages    []Message
}

// UnmarshalJSON accepts both the tree-shaped export ("mapping"/"current_node")
// and the pre-parsed shape (flat "messages"). The conversation id may appear
// as either "conversation_id" or "id".
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw struct {
		ConversationID string           `json:"conversation_id"`
		ID             string           `json:"id"`
		Title          string           `json:"title"`
		CreateTime     *float64         `json:"create_time"`
		CurrentNode    string           `json:"current_node"`
		Mapping        map[string]*Node `json:"mapping"`
		Messages       []Message        `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ID = raw.ConversationID
	if c.ID == "" {
		c.ID = raw.ID
	}
	c.Title = raw.Title
	if raw.CreateTime != nil {
		c.CreateTime = *raw.CreateTime
	}
	c.CurrentNode = raw.CurrentNode
	c.Mapping = raw.Mapping
	c.Messages = raw.Messages
	return nil
}

// UnmarshalJSON decodes both the export message shape (nested author/content/
// metadata objects) and the pre-parsed shape (flat role + string content).
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Author *struct {
			Role string `json:"role"`
		} `json:"author"`
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		Metadata   map[string]any  `json:"metadata"`
		CreateTime *float64        `json:"create_time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Author != nil {
		m.Role = raw.Author.Role
	} else {
		m.Role = raw.Role
	}
	if raw.CreateTime != nil {
		m.CreateTime = *raw.CreateTime
	}
	m.Parts = decodeContentParts(raw.Content)
	m.Hidden = metadataBool(raw.Metadata, "is_visually_hidden_from_conversation")
	m.UserSystem = metadataBool(raw.Metadata, "is_user_system_message")
	return nil
}

// decodeContentParts maps the export's polymorphic content value onto tagged
// variants. Shapes handled:
//
//	"plain string"
//	{ "content_type": "text", "parts": ["...", {"text": "..."}, {"asset_pointer": "..."}] }
//	{ "content_type": "tether_quote", "text": "..." }
func decodeContentParts(raw json.RawMessage) []ContentPart {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return []ContentPart{{Kind: PartText, Text: direct}}
	}

	var probe struct {
		Parts []json.RawMessage `json:"parts"`
		Text  string            `json:"text"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return []ContentPart{{Kind: PartOther}}
	}

	if len(probe.Parts) == 0 {
		if probe.Text != "" {
			return []ContentPart{{Kind: PartText, Text: probe.Text}}
		}
		return nil
	}

	parts := make([]ContentPart, 0, len(probe.Parts))
	for _, p := range probe.Parts {
		parts = append(parts, decodePart(p))
	}
	return parts
}

func decodePart(raw json.RawMessage) ContentPart {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ContentPart{Kind: PartText, Text: s}
	}

	var obj struct {
		Text         string `json:"text"`
		AssetPointer string `json:"asset_pointer"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ContentPart{Kind: PartOther}
	}

	switch {
	case obj.AssetPointer != "":
		return ContentPart{Kind: PartAssetPointer, AssetID: obj.AssetPointer}
	case obj.Text != "":
		return ContentPart{Kind: PartText, Text: obj.Text}
	default:
		return ContentPart{Kind: PartOther}
	}
}

func metadataBool(metadata map[string]any, key string) bool {
	if len(metadata) == 0 {
		return false
	}
	v, ok := metadata[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
