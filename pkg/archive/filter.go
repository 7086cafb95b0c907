package archive

import "strings"

// FilterMessages drops messages the pipeline should never see: visually
// hidden messages (unless they carry the user-system flag, which marks the
// user's custom instructions) and messages with no text content after
// part extraction.
func FilterMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Hidden && !m.UserSystem {
			continue
		}
		if strings.TrimSpace(m.Text()) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
