// Package source discovers agent transcript files and decodes their
// per-agent on-disk shapes into canonical model.Entry values.
package source

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"time"
)

// Transcript lines carrying inline images can run to several megabytes.
const (
	scanBufInitial = 256 * 1024
	scanBufMax     = 32 * 1024 * 1024
)

// scanLines calls fn for every non-blank line of a JSONL file with its
// 1-based line number. The slice passed to fn is only valid for the call.
func scanLines(path string, fn func(lineNo int, line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scanBufInitial), scanBufMax)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(lineNo, line)
	}
	return scanner.Err()
}

// typeKey is the byte sequence for a JSON key named "type" (with quotes).
var typeKey = []byte(`"type"`)

// extractTopLevelType finds the top-level "type" field in a JSONL line.
// Tracks brace depth and string boundaries so nested "type" keys are ignored.
// Early-exits once found, so lines of uninteresting types (progress,
// file-history-snapshot) are dropped without a full decode.
func extractTopLevelType(line []byte) string {
	depth := 0
	for i := 0; i < len(line); {
		switch line[i] {
		case '"':
			if depth == 1 && bytes.HasPrefix(line[i:], typeKey) {
				val, isKey := typeValue(line, i+len(typeKey))
				if isKey {
					return val
				}
				// "type" appeared as a value, not a key. Continue scanning.
			}
			i = skipJSONString(line, i)
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
		default:
			i++
		}
	}
	return ""
}

// typeValue checks whether pos follows a JSON key (expects : then value).
// isKey=false means "type" appeared as a value, not a key.
func typeValue(line []byte, pos int) (val string, isKey bool) {
	i := skipSpaces(line, pos)
	if i >= len(line) || line[i] != ':' {
		return "", false
	}
	i = skipSpaces(line, i+1)
	if i >= len(line) || line[i] != '"' {
		return "", true // key with non-string value (null, number, etc.)
	}
	i++

	end := bytes.IndexByte(line[i:], '"')
	if end < 0 || end > 40 {
		return "", true
	}
	return string(line[i : i+end]), true
}

// skipJSONString advances past a JSON string starting at the opening quote.
//
//nolint:gosec // manual bounds checking throughout
func skipJSONString(line []byte, i int) int {
	i++ // skip opening quote
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipSpaces(line []byte, i int) int {
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return i
}

// parseTime accepts the RFC 3339 timestamps every agent writes. A bad or
// missing value yields the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// millisTime converts a Unix millisecond timestamp.
func millisTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// fileTime is the fallback timestamp for formats that record none.
func fileTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime().UTC()
}

// stripTagged removes every <tag>...</tag> section from s.
func stripTagged(s, tag string) string {
	open, closing := "<"+tag+">", "</"+tag+">"
	for {
		start := strings.Index(s, open)
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], closing)
		if end < 0 {
			return s[:start]
		}
		s = s[:start] + s[start+end+len(closing):]
	}
}
