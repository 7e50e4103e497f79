package rag

import "strings"

// fallbackResponse is returned without calling the generation model when
// retrieval finds nothing to ground an answer on.
const fallbackResponse = "I don't have any relevant information in my knowledge base to answer your question. Please upload some documents first or ask about something that might be covered in the uploaded documents."

// apologyPrefix opens the response recorded when a turn fails mid-pipeline.
const apologyPrefix = "I apologize, but I encountered an error while processing your question: "

const (
	historyPlaceholder = "{conversation_history}"
	contextPlaceholder = "{context}"
)

// renderPrompt fills the system prompt template and appends the user's
// question in the Human/Assistant convention the model is steered toward.
func renderPrompt(systemPrompt, history, docContext, question string) string {
	rendered := strings.ReplaceAll(systemPrompt, historyPlaceholder, history)
	rendered = strings.ReplaceAll(rendered, contextPlaceholder, docContext)

	var sb strings.Builder
	sb.WriteString("System: ")
	sb.WriteString(rendered)
	sb.WriteString("\n\n")
	sb.WriteString("Human: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	return sb.String()
}
