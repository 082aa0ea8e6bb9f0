package model

import (
	"encoding/json"
	"fmt"
)

// Blocks is an ordered list of blocks that encodes as a JSON array of
// {"type": kind, ...fields} objects.
type Blocks []Block

// MarshalJSON encodes each block with its kind as the "type" field.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(bs))
	for _, b := range bs {
		raw, err := marshalBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the envelope form produced by MarshalJSON.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		b, err := decodeBlock(raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

func marshalBlock(b Block) (json.RawMessage, error) {
	fields, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(b.Kind())
	m["type"] = kind
	return json.Marshal(m)
}

func decodeBlock(raw json.RawMessage) (Block, error) {
	var head struct {
		Type BlockKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case KindText:
		return decodeAs[TextBlock](raw)
	case KindThinking:
		return decodeAs[ThinkingBlock](raw)
	case KindToolCall:
		return decodeAs[ToolCallBlock](raw)
	case KindToolResult:
		return decodeAs[ToolResultBlock](raw)
	case KindFileOperation:
		return decodeAs[FileOperationBlock](raw)
	case KindCommand:
		return decodeAs[CommandBlock](raw)
	case KindSearch:
		return decodeAs[SearchBlock](raw)
	case KindGit:
		return decodeAs[GitBlock](raw)
	case KindError:
		return decodeAs[ErrorBlock](raw)
	case KindImage:
		return decodeAs[ImageBlock](raw)
	case KindCode:
		return decodeAs[CodeBlock](raw)
	case KindSystemEvent:
		return decodeAs[SystemEventBlock](raw)
	case KindConversationControl:
		return decodeAs[ConversationControlBlock](raw)
	}
	return nil, fmt.Errorf("unknown block type %q", head.Type)
}

func decodeAs[T Block](raw json.RawMessage) (Block, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
