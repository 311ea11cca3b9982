package dispatch

import "github.com/studioloop/maestro/core"

// AssembleContext builds the ordered prompt window for one turn: an optional
// system prompt, the persisted conversation context in its stored order, and
// the new user input last. It never reorders or mutates its inputs; the
// returned slice is freshly allocated.
//
// Persisted history is expected to hold user/assistant/tool messages only;
// the system prompt is supplied fresh each turn so prompt changes apply to
// existing sessions.
func AssembleContext(systemPrompt string, history []core.ChatMessage, input string) []core.ChatMessage {
	out := make([]core.ChatMessage, 0, len(history)+2)

	if systemPrompt != "" {
		out = append(out, core.SystemMessage(systemPrompt))
	}
	out = append(out, history...)
	if input != "" {
		out = append(out, core.UserMessage(input))
	}

	return out
}
