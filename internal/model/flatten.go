package model

import "strings"

// Flatten projects blocks to the plain text used for search indexing.
// Thinking, tool results, system events and conversation control are left
// out: they are either noise or private reasoning.
func Flatten(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case TextBlock:
			parts = append(parts, v.Text)
		case CommandBlock:
			if v.Description != "" {
				parts = append(parts, v.Description)
			}
			parts = append(parts, v.Command)
		case FileOperationBlock:
			parts = append(parts, "["+string(v.Operation)+"] "+v.Path)
		case SearchBlock:
			parts = append(parts, "["+string(v.SearchType)+"] "+v.Pattern)
		case GitBlock:
			line := "[git " + string(v.Operation) + "]"
			switch {
			case v.Message != "":
				line += " " + v.Message
			case v.PRTitle != "":
				line += " " + v.PRTitle
			}
			parts = append(parts, line)
		case ToolCallBlock:
			if v.Description != "" {
				parts = append(parts, v.Description)
			}
		}
	}
	return strings.TrimSpace(strings.Join(nonEmpty(parts), "\n"))
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
