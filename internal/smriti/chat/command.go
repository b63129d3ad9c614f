// Package chat turns chat messages into memory operations: saving a memory,
// asking about past memories, browsing the timeline, and transcribing voice
// notes into memories.
package chat

import (
	"strings"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// Action is what a message asks for.
type Action int

const (
	ActionNone Action = iota
	ActionRemember
	ActionAsk
	ActionMemories
	ActionHelp
)

// Command is a parsed chat message.
type Command struct {
	Action  Action
	Emotion memory.Emotion
	// Text is the memory, the question, or the timeline filter.
	Text string
}

var verbs = map[string]Action{
	"remember": ActionRemember,
	"save":     ActionRemember,
	"ask":      ActionAsk,
	"memories": ActionMemories,
	"timeline": ActionMemories,
	"help":     ActionHelp,
}

// Parse reads a message body. The verb may carry a leading "/" or "!" and
// may be followed by ":". A remember command may name an emotion in brackets
// before the text, as in "remember [happy] tea with Meena". Any other message
// ending in "?" is a question.
func Parse(body string) Command {
	body = strings.TrimSpace(body)
	if body == "" {
		return Command{}
	}

	first, rest, _ := strings.Cut(body, " ")
	verb := strings.ToLower(strings.TrimRight(strings.TrimLeft(first, "/!"), ":"))
	action, ok := verbs[verb]
	if !ok {
		if strings.HasSuffix(body, "?") {
			return Command{Action: ActionAsk, Text: body}
		}
		return Command{}
	}

	cmd := Command{Action: action, Text: strings.TrimSpace(rest)}
	if action == ActionRemember {
		cmd.Emotion, cmd.Text = splitEmotion(cmd.Text)
	}
	return cmd
}

// splitEmotion strips a leading "[emotion]" tag. Unknown tags are left in the
// text.
func splitEmotion(text string) (memory.Emotion, string) {
	if !strings.HasPrefix(text, "[") {
		return memory.EmotionNone, text
	}
	end := strings.Index(text, "]")
	if end < 0 {
		return memory.EmotionNone, text
	}
	emotion, err := memory.ParseEmotion(text[1:end])
	if err != nil {
		return memory.EmotionNone, text
	}
	return emotion, strings.TrimSpace(text[end+1:])
}
