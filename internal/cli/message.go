package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/theirongolddev/smriti/internal/model"
)

var roleStyles = map[model.Role]lipgloss.Style{
	model.RoleUser:      lipgloss.NewStyle().Bold(true).Foreground(ColorBlue),
	model.RoleAssistant: lipgloss.NewStyle().Bold(true).Foreground(ColorGreen),
	model.RoleSystem:    lipgloss.NewStyle().Bold(true).Foreground(ColorPurple),
	model.RoleTool:      lipgloss.NewStyle().Bold(true).Foreground(ColorOrange),
}

// RenderMessage renders one stored message as a header line followed by a
// line per block. Block lines are cut to width cells.
func RenderMessage(m model.StructuredMessage, width int) string {
	var b strings.Builder

	style, ok := roleStyles[m.Role]
	if !ok {
		style = headerStyle
	}
	header := fmt.Sprintf("#%d %s", m.Sequence, style.Render(string(m.Role)))
	if ts := FormatTime(m.Timestamp); ts != "" {
		header += "  " + dimStyle.Render(ts)
	}
	if m.Metadata.Model != "" {
		header += "  " + dimStyle.Render(m.Metadata.Model)
	}
	b.WriteString("  ")
	b.WriteString(header)
	b.WriteString("\n")

	for _, blk := range m.Blocks {
		line := BlockLine(blk)
		if line == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(ansi.Truncate(line, width, "…"))
		b.WriteString("\n")
	}
	return b.String()
}

// BlockLine summarizes a block on a single line.
func BlockLine(blk model.Block) string {
	switch v := blk.(type) {
	case model.TextBlock:
		return OneLine(v.Text)
	case model.ThinkingBlock:
		return dimStyle.Render("(thinking) ") + OneLine(v.Thinking)
	case model.ToolCallBlock:
		s := "→ " + v.ToolName
		if v.Description != "" {
			s += ": " + OneLine(v.Description)
		}
		return s
	case model.ToolResultBlock:
		if !v.Success {
			return errorStyle.Render("← error ") + OneLine(v.Error)
		}
		return "← " + OneLine(v.Output)
	case model.FileOperationBlock:
		target := v.Path
		if target == "" {
			target = v.Pattern
		}
		return fmt.Sprintf("[%s] %s", v.Operation, target)
	case model.CommandBlock:
		return "$ " + OneLine(v.Command)
	case model.SearchBlock:
		target := v.Pattern
		if v.URL != "" {
			target = v.URL
		}
		return fmt.Sprintf("[%s] %s", v.SearchType, target)
	case model.GitBlock:
		s := "[git " + string(v.Operation) + "]"
		switch {
		case v.Message != "":
			s += " " + OneLine(v.Message)
		case v.PRTitle != "":
			s += " " + OneLine(v.PRTitle)
		case v.Branch != "":
			s += " " + v.Branch
		}
		return s
	case model.ErrorBlock:
		return errorStyle.Render("["+v.ErrorType+"] ") + OneLine(v.Message)
	case model.ImageBlock:
		return fmt.Sprintf("[image %s, %d bytes]", v.MediaType, v.SizeBytes)
	case model.CodeBlock:
		return fmt.Sprintf("[code %s] %s", v.Language, OneLine(v.Code))
	case model.SystemEventBlock:
		s := "[" + string(v.EventType) + "]"
		if v.DurationMs > 0 {
			s += " " + FormatDuration(time.Duration(v.DurationMs) * time.Millisecond)
		}
		if v.Detail != "" {
			s += " " + OneLine(v.Detail)
		}
		return dimStyle.Render(s)
	case model.ConversationControlBlock:
		s := "[" + string(v.ControlType) + "]"
		if v.Name != "" {
			s += " " + v.Name
		}
		if v.Args != "" {
			s += " " + OneLine(v.Args)
		}
		return dimStyle.Render(s)
	}
	return ""
}
