package chat

import (
	"strings"

	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
)

// formatHistory renders the most recent window messages as "sender: content"
// lines, oldest first. messages must already be in chronological order.
func formatHistory(messages []database.ChatMessage, window int) string {
	if window > 0 && len(messages) > window {
		messages = messages[len(messages)-window:]
	}

	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Sender + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// formatMemoryBlock joins retrieved chunks into the single block the prompt
// embeds between the rag_memory tags, one bullet per chunk.
func formatMemoryBlock(chunks []string) string {
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = "- " + c
	}
	return strings.Join(lines, "\n")
}
