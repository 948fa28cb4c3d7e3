package pipeline

import "strings"

// extractJSON pulls the first balanced JSON object or array out of an LLM
// response, skipping any prose around it. Returns "{}" when nothing
// JSON-shaped is present.
func extractJSON(text string) string {
	if block := fencedBlock(text, "json"); block != "" {
		text = block
	}

	start := strings.Index(text, "{")
	if start == -1 {
		start = strings.Index(text, "[")
	}
	if start == -1 {
		return "{}"
	}

	endChar := byte('}')
	if text[start] == '[' {
		endChar = ']'
	}
	startChar := text[start]

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == startChar:
			depth++
		case ch == endChar:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return text[start:]
}

// extractCodeBlock extracts a fenced code block from a markdown-style
// response. Falls back to the whole text when no fence is found, since
// models sometimes answer with raw code.
func extractCodeBlock(text, lang string) string {
	if block := fencedBlock(text, lang); block != "" {
		return block
	}
	return strings.TrimSpace(text)
}

func fencedBlock(text, lang string) string {
	patterns := []string{
		"```" + lang + "\n",
		"```" + lang + "\r\n",
		"```\n",
	}
	for _, pattern := range patterns {
		if idx := strings.Index(text, pattern); idx != -1 {
			start := idx + len(pattern)
			end := strings.Index(text[start:], "```")
			if end != -1 {
				return strings.TrimSpace(text[start : start+end])
			}
		}
	}
	return ""
}

// stripFences removes a wrapping code fence from documentation output but
// leaves inner fences intact.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[len(lines)-1], "```") {
		return trimmed
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
