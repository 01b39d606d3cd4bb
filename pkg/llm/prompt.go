package llm

import (
	"fmt"
	"strings"

	"github.com/kairosgraph/kairos/pkg/types"
)

// defaultSystemPrompt instructs the model to emit a bare envelope.
const defaultSystemPrompt = `You are a knowledge extraction engine. Read the conversation and extract
entities and relationships as a single JSON object. Respond with ONLY the
JSON object, no prose and no markdown fences.`

// BuildExtractionMessages assembles the provider-agnostic message list for
// an extraction call, embedding the envelope JSON schema in the system turn.
func BuildExtractionMessages(ec ExtractionContext) []Message {
	system := ec.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	system = fmt.Sprintf("%s\n\nThe JSON object must match this schema:\n%s", system, types.EnvelopeJSONSchema)

	messages := make([]Message, 0, len(ec.Messages)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	for _, m := range ec.Messages {
		messages = append(messages, Message{Role: m.Role, Content: cleanContent(m.Content)})
	}
	return messages
}

// cleanContent strips zero-width and control characters that break some
// providers' tokenizers.
func cleanContent(input string) string {
	for _, zw := range []string{"\u200b", "\u200c", "\u200d", "\ufeff", "\u2060"} {
		input = strings.ReplaceAll(input, zw, "")
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
