// Package assistant turns a support question into a grounded answer: it
// composes the model prompt, calls the generator and filters the reply
// against the documentation corpus.
package assistant

import (
	"strings"

	"github.com/mohammad-safakhou/supportbot/internal/corpus"
	"github.com/mohammad-safakhou/supportbot/models"
)

// NotFoundReply is the canonical refusal. It is echoed verbatim in the prompt,
// compared against by the validator and stored as-is.
const NotFoundReply = "Sorry, I don't have information about that."

// HistoryLimit caps the rendered history at five user/assistant pairs.
const HistoryLimit = 10

const noHistory = "No previous conversation."

// SelectDocuments renders the documentation block for message. The first entry
// whose title appears in the message is used alone; otherwise every entry is.
func SelectDocuments(message string, c *corpus.Corpus) string {
	lower := strings.ToLower(message)
	for i := 0; i < c.Len(); i++ {
		e := c.At(i)
		if e.Title == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(e.Title)) {
			return renderEntry(e)
		}
	}

	parts := make([]string, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		parts = append(parts, renderEntry(c.At(i)))
	}
	return strings.Join(parts, "\n\n")
}

func renderEntry(e models.DocEntry) string {
	return "### " + e.Title + "\n" + e.Content
}

// RenderHistory renders at most the last HistoryLimit messages, oldest first.
func RenderHistory(history []models.Message) string {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	if len(history) == 0 {
		return noHistory
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		speaker := "Assistant"
		if m.Role == models.RoleUser {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt assembles the grounding prompt sent to the model. history must
// not contain the current question.
func BuildPrompt(message string, history []models.Message, c *corpus.Corpus) string {
	var b strings.Builder
	b.WriteString("\nYou are a customer support assistant.\n\n")
	b.WriteString("STRICT RULES:\n")
	b.WriteString("- Only answer using the documentation below.\n")
	b.WriteString("- If the answer is not found, respond EXACTLY with:\n")
	b.WriteString("\"" + NotFoundReply + "\"\n")
	b.WriteString("- Do not guess.\n")
	b.WriteString("- Do not use external knowledge.\n\n")
	b.WriteString("Documentation:\n")
	b.WriteString(SelectDocuments(message, c))
	b.WriteString("\n\nConversation History:\n")
	b.WriteString(RenderHistory(history))
	b.WriteString("\n\nCurrent Question:\n")
	b.WriteString(message)
	b.WriteString("\n\nAnswer:\n")
	return b.String()
}
