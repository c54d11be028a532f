package faq

import (
	"fmt"
	"strings"
)

func buildContext(matches []Match) string {
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", m.Metadata.Question, m.Metadata.Answer))
	}
	return strings.Join(blocks, "\n\n")
}

func buildSystemPrompt(persona, context string, maxWords int) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))
	b.WriteString("\n\nAnswer the customer's question using only the FAQ context below. ")
	b.WriteString("If the context does not contain enough information to answer, say that you do not have enough information ")
	b.WriteString("and suggest contacting customer support. Never make up fees, rates or policies.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(context)
	fmt.Fprintf(&b, "\n\nYour reply is read aloud on a phone call. Keep it conversational and under %d words, without lists or markdown.", maxWords)
	return b.String()
}
