package rag

import (
	"fmt"
	"strings"
)

// GroundedSystemPrompt instructs the model to answer from the retrieved context only.
const GroundedSystemPrompt = `You help managers handle situations with the people they manage.
Answer the question using only the CONTEXT provided. Each context line starts with its source tag.
If the context does not contain the answer, say that you don't know instead of guessing.`

// GroundedUserPrompt combines the context block and the question.
func GroundedUserPrompt(query, contextBlock string) string {
	var b strings.Builder
	if contextBlock != "" {
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	b.WriteString("QUESTION\n")
	b.WriteString(query)
	return b.String()
}

// CoachingPrompt asks the model to rewrite a grounded answer into a refined
// answer followed by six example phrases.
func CoachingPrompt(query, baseAnswer string) string {
	return fmt.Sprintf(`You are a management communication coach trained in attachment theory.
Based on the following manager query and response:

QUERY: %s
ANSWER: %s

Please output the following format:

1. A refined and professional version of the answer above.
2. Then, a list of 6 concrete example phrases the manager could say.
   For each example, include a one-sentence explanation of *why* it works (the psychological or relational principle it supports).
Output everything as markdown.`, query, baseAnswer)
}

// ExampleQuestions are starter questions offered to new users.
var ExampleQuestions = []string{
	"How can I figure out what type of person I am dealing with?",
	"How do I motivate someone with an anxious attachment style?",
	"How do I give feedback to an avoidant employee?",
	"How can I deliver bad news without making someone shut down?",
	"What should I say when an employee takes credit for others' work?",
}
