package review

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a strict senior software engineer reviewing a pull request. Your job is to judge the change and produce a structured verdict in JSON format.

Rules:
1. Only review the changes shown in the diff. Do not comment on unchanged code.
2. Judge whether the change is sound overall: correctness, security, performance, and whether it addresses the linked issue if one is given.
3. Be concise and actionable. Every finding must describe a concrete problem or improvement.
4. Rate each finding's severity as "low", "medium", or "high".
5. The overall verdict is "good" if you would approve the change, "bad" otherwise.

You MUST respond with ONLY a JSON object. No markdown, no explanation, no preamble. Just the JSON object.

The object must have this exact structure:
{
  "verdict": "good|bad",
  "summary": "One or two sentences summarizing the change and your judgement",
  "findings": [
    {"severity": "low|medium|high", "description": "What is wrong or could be improved, and why it matters"}
  ]
}

If the change is flawless, use verdict "good" with an empty findings array.`

// SystemPrompt returns the system prompt for PR review.
func SystemPrompt() string {
	return systemPrompt
}

// BuildReviewPrompt constructs the user prompt for reviewing one pull request.
func BuildReviewPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Review the following pull request.\n\n")
	fmt.Fprintf(&b, "Repository: %s\n", in.Repo)
	fmt.Fprintf(&b, "PR #%d: %s\n", in.Number, in.Title)

	if in.IssueContext != "" {
		b.WriteString("\nLinked issue context:\n")
		b.WriteString(in.IssueContext)
		b.WriteString("\n")
	} else {
		b.WriteString("\nNo linked issue found.\n")
	}

	b.WriteString("\n--- BEGIN DIFF ---\n")
	b.WriteString(in.Diff)
	b.WriteString("\n--- END DIFF ---\n")

	return b.String()
}

const chatSystemPrompt = `You are a helpful assistant integrated with the user's GitHub account. Answer questions about their repositories, issues, and code. If they ask about issues and context is provided, summarize it. If they ask for code, write code. If needed context is missing, ask them to name the repository.`

// ChatSystemPrompt returns the system prompt for free-form chat turns.
func ChatSystemPrompt() string {
	return chatSystemPrompt
}

// BuildChatPrompt flattens a conversation history plus optional fetched
// context into a single prompt. The last turn is the pending user message.
func BuildChatPrompt(history []ChatTurn, contextInfo string) string {
	var b strings.Builder

	if contextInfo != "" {
		b.WriteString("Context information:\n")
		b.WriteString(contextInfo)
		b.WriteString("\n\n")
	}

	if len(history) > 1 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history[:len(history)-1] {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		fmt.Fprintf(&b, "User message: %s\n", history[len(history)-1].Content)
	}

	return b.String()
}
