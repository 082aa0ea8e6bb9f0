package model

// Size limits applied when building blocks. They are fixed and not
// configurable per call.
const (
	LimitText           = 50_000
	LimitOutput         = 2_000
	LimitFileContent    = 10_000
	LimitThinking       = 20_000
	LimitSearchResult   = 5_000
	LimitToolInputField = 5_000
)

// TruncationMarker is appended to every truncated value.
const TruncationMarker = "... [truncated]"

// Truncate cuts s to at most limit bytes and appends TruncationMarker when
// anything was removed. The cut is moved back to a UTF-8 boundary, so the
// kept prefix may be a few bytes shorter than limit for multi-byte text.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
