package answer

import (
	"strings"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

const systemPrompt = "You are an empathetic, factual assistant helping a person recall their own memories."

// BuildPrompt renders the user turn: the memories with their dates and
// reported feelings, then the question.
func BuildPrompt(question string, recs []memory.Record) string {
	var b strings.Builder
	b.WriteString("You are a gentle, empathetic assistant helping a person with memory challenges.\n")
	b.WriteString("When you answer:\n")
	b.WriteString("1) Briefly refer to the relevant memory, quoting or summarising it.\n")
	b.WriteString("2) If a feeling was recorded, kindly mention it (for example: \"You felt happy about this\").\n")
	b.WriteString("Use warm, reassuring language. Keep the answer short and respectful. ")
	b.WriteString("If the memories do not answer the question, say so gently rather than guessing.\n\n")
	b.WriteString("Stored memories:\n")
	for _, r := range recs {
		b.WriteString("- Memory: ")
		b.WriteString(r.Text)
		if !r.Timestamp.IsZero() {
			b.WriteString(" (on ")
			b.WriteString(r.Timestamp.Format("Monday, 2 January 2006"))
			b.WriteString(")")
		}
		if r.Emotion != memory.EmotionNone {
			b.WriteString(" (feeling: ")
			b.WriteString(string(r.Emotion))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	return b.String()
}
