package extractor

import (
	"fmt"

	"github.com/soulprintco/imprint/pkg/chunker"
)

const extractionSystemPrompt = `You are a memory analyst. You read excerpts of a person's chat history and extract durable facts about them.

Extract only facts about the user, never about the assistant. Each fact must be a single self-contained sentence. Categories:

- preferences: likes, dislikes, habits, tools and styles they favor
- projects: things they are building, working on, or responsible for
- dates: deadlines, events, and dates that matter to them
- beliefs: opinions, values, and convictions they express
- decisions: choices they have made or committed to

Return strict JSON matching the provided schema. Leave a category empty when the excerpt supports nothing durable for it. Do not invent facts.`

func extractionPrompt(chunk chunker.Chunk) string {
	return fmt.Sprintf("Conversation excerpt (%s granularity):\n\n%s", chunk.Tier, chunk.Text)
}
