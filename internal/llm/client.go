// Package llm wraps the chat completion API used by every generation and
// improvement agent. Prompt assembly order is part of the contract here:
// downstream prompt caching depends on a stable prefix, so the system
// preamble and system-role context blocks always come first, in the order
// supplied, followed by user-role blocks and the caller's instruction.
package llm

import (
	"context"
	"strings"
)

// Client defines the minimal completion interface agents use.
type Client interface {
	// Complete sends a bare prompt and returns the trimmed completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a separate system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ContextBlock is a tagged chunk of prompt context.
type ContextBlock struct {
	Role    string // "system" or "user"
	Title   string
	Content string
}

// SystemBlock builds a system-role context block.
func SystemBlock(title, content string) ContextBlock {
	return ContextBlock{Role: "system", Title: title, Content: content}
}

// UserBlock builds a user-role context block.
func UserBlock(title, content string) ContextBlock {
	return ContextBlock{Role: "user", Title: title, Content: content}
}

// preamble is the fixed system prefix shared by every generated prompt.
const preamble = `You are a driver generator for REST APIs. You analyze API
specifications and produce declarative schemas, implementation code,
documentation, and package manifests. Respond only with the artifact
requested, inside a fenced code block where one is asked for.`

// AssemblePrompts builds the (system, user) prompt pair for an instruction
// plus context blocks. System blocks keep their supplied order; user blocks
// precede the instruction.
func AssemblePrompts(instruction string, blocks []ContextBlock) (string, string) {
	var system strings.Builder
	system.WriteString(preamble)
	for _, b := range blocks {
		if b.Role != "system" {
			continue
		}
		system.WriteString("\n\n")
		if b.Title != "" {
			system.WriteString("## " + b.Title + "\n")
		}
		system.WriteString(b.Content)
	}

	var user strings.Builder
	for _, b := range blocks {
		if b.Role == "system" {
			continue
		}
		if b.Title != "" {
			user.WriteString("## " + b.Title + "\n")
		}
		user.WriteString(b.Content)
		user.WriteString("\n\n")
	}
	user.WriteString(instruction)

	return system.String(), user.String()
}

// Generate runs an instruction with context blocks through the client.
func Generate(ctx context.Context, c Client, instruction string, blocks []ContextBlock) (string, error) {
	system, user := AssemblePrompts(instruction, blocks)
	return c.CompleteWithSystem(ctx, system, user)
}
