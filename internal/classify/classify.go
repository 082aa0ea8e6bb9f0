package classify

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

// Classifier turns raw fragments into typed blocks. It has no side effects.
type Classifier struct {
	rules *Rules
}

// New returns a Classifier sharing the given rule set.
func New(rules *Rules) *Classifier {
	if rules == nil {
		rules = NewRules()
	}
	return &Classifier{rules: rules}
}

// Rules returns the classifier's pattern set.
func (c *Classifier) Rules() *Rules { return c.rules }

// IsKnown reports whether a fragment kind has a dedicated mapping. Unknown
// kinds still classify (they degrade to text) but callers may want to
// count the degradation.
func IsKnown(k model.FragmentKind) bool {
	switch k {
	case model.FragText, model.FragThinking, model.FragToolUse,
		model.FragToolResult, model.FragImage, model.FragCode:
		return true
	}
	return false
}

// Classify maps one fragment to zero or more blocks. Empty text yields no
// block; every other shape yields at least one.
func (c *Classifier) Classify(f model.Fragment) []model.Block {
	switch f.Kind {
	case model.FragText:
		if f.Text == "" {
			return nil
		}
		return []model.Block{model.TextBlock{Text: model.Truncate(f.Text, model.LimitText)}}

	case model.FragThinking:
		if strings.TrimSpace(f.Text) == "" {
			return nil
		}
		return []model.Block{model.ThinkingBlock{Thinking: model.Truncate(f.Text, model.LimitThinking)}}

	case model.FragToolUse:
		return c.classifyToolUse(f)

	case model.FragToolResult:
		return classifyToolResult(f)

	case model.FragImage:
		return []model.Block{model.ImageBlock{
			MediaType:   f.MediaType,
			Fingerprint: fingerprint(f.Data),
			SizeBytes:   len(f.Data),
		}}

	case model.FragCode:
		if f.Text == "" {
			return nil
		}
		return []model.Block{model.CodeBlock{
			Language: f.Language,
			Code:     model.Truncate(f.Text, model.LimitFileContent),
		}}
	}

	// Unknown shapes degrade to text rather than disappearing.
	text := f.Text
	if text == "" && len(f.Raw) > 0 {
		text = string(f.Raw)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []model.Block{model.TextBlock{Text: model.Truncate(text, model.LimitText)}}
}

func (c *Classifier) classifyToolUse(f model.Fragment) []model.Block {
	in := stringifyInput(f.Input)
	call := model.ToolCallBlock{
		ToolID:      f.ToolID,
		ToolName:    f.ToolName,
		Input:       in,
		Description: in["description"],
	}
	blocks := []model.Block{call}

	path := firstNonEmpty(in["file_path"], in["path"], in["notebook_path"])

	switch f.ToolName {
	case "Read":
		blocks = append(blocks, model.FileOperationBlock{Operation: model.FileRead, Path: path})

	case "Write":
		blocks = append(blocks, model.FileOperationBlock{
			Operation: model.FileWrite,
			Path:      path,
			Content:   model.Truncate(rawString(f.Input, "content"), model.LimitFileContent),
		})

	case "Edit":
		op := model.FileOperationBlock{Operation: model.FileEdit, Path: path}
		oldText, hasOld := f.Input["old_string"].(string)
		newText, hasNew := f.Input["new_string"].(string)
		if hasOld && hasNew {
			op.Diff = model.Truncate("- "+oldText+"\n+ "+newText, model.LimitFileContent)
		}
		blocks = append(blocks, op)

	case "Delete":
		blocks = append(blocks, model.FileOperationBlock{Operation: model.FileDelete, Path: path})

	case "Glob":
		blocks = append(blocks,
			model.FileOperationBlock{Operation: model.FileGlob, Path: in["path"], Pattern: in["pattern"]},
			model.SearchBlock{SearchType: model.SearchGlob, Pattern: in["pattern"], Path: in["path"]},
		)

	case "Grep":
		blocks = append(blocks, model.SearchBlock{SearchType: model.SearchGrep, Pattern: in["pattern"], Path: in["path"]})

	case "Bash":
		cmd := in["command"]
		blocks = append(blocks, model.CommandBlock{
			Command:     cmd,
			Description: in["description"],
			Cwd:         in["cwd"],
			Background:  in["run_in_background"] == "true",
		})
		if g, ok := c.rules.ParseGit(cmd); ok {
			blocks = append(blocks, g)
		}

	case "WebFetch":
		blocks = append(blocks, model.SearchBlock{SearchType: model.SearchWebFetch, Pattern: in["url"], URL: in["url"]})

	case "WebSearch":
		blocks = append(blocks, model.SearchBlock{SearchType: model.SearchWebSearch, Pattern: in["query"]})

	case "EnterPlanMode":
		blocks = append(blocks, model.ConversationControlBlock{ControlType: model.ControlPlanEnter})

	case "ExitPlanMode":
		blocks = append(blocks, model.ConversationControlBlock{ControlType: model.ControlPlanExit})

	case "Skill":
		blocks = append(blocks, model.ConversationControlBlock{
			ControlType: model.ControlSlashCommand,
			Name:        firstNonEmpty(in["skill"], in["command"], in["name"]),
			Args:        in["args"],
		})
	}
	return blocks
}

func classifyToolResult(f model.Fragment) []model.Block {
	out := model.Truncate(f.Output, model.LimitOutput)
	res := model.ToolResultBlock{ToolID: f.ToolID, Success: !f.IsError}
	if !f.IsError {
		res.Output = out
		return []model.Block{res}
	}
	res.Error = out
	return []model.Block{res, model.ErrorBlock{ErrorType: "tool_error", Message: out, ToolID: f.ToolID}}
}

// stringifyInput flattens tool input values to strings, capping each one.
func stringifyInput(input map[string]any) map[string]string {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case nil:
			continue
		case bool, float64, int, int64:
			s = fmt.Sprint(tv)
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				continue
			}
			s = string(b)
		}
		out[k] = model.Truncate(s, model.LimitToolInputField)
	}
	return out
}

func rawString(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

// fingerprint is a cheap content hash for spotting repeated images. It is
// not meant to resist collisions on purpose.
func fingerprint(data string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(data))
	return fmt.Sprintf("%016x", h.Sum64())
}
