package agent

import "strings"

// notFoundReply is what the model is told to answer when the context is silent.
const notFoundReply = "I couldn't find that information."

// buildPrompt assembles the single user message sent to the LLM.
func buildPrompt(document, recent, query string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions strictly based on the context below.\n")
	b.WriteString("If the answer cannot be found in the context, respond: \"" + notFoundReply + "\"\n\n")
	b.WriteString("Context:\n")
	b.WriteString(document)
	b.WriteString("\n\nRecent conversation:\n")
	b.WriteString(recent)
	b.WriteString("\n\nUser question: ")
	b.WriteString(query)
	b.WriteString("\n")
	return b.String()
}

// containsAny reports whether text contains any of words as a substring.
func containsAny(text string, words []string) bool {
	text = strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
