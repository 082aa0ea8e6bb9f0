// Package classify maps raw transcript fragments onto the closed block
// taxonomy and recognizes git semantics inside shell commands.
package classify

import (
	"regexp"
	"strings"
)

// Rules holds the compiled patterns used by the classifier and the git
// sub-parser. It is built once per ingestion run by the caller and shared
// by reference; it is safe for concurrent use after construction.
type Rules struct {
	commitRE      *regexp.Regexp
	heredocStart  *regexp.Regexp
	prTitle       *regexp.Regexp
	echoPrefixes  []string
}

// NewRules compiles the pattern set.
func NewRules() *Rules {
	return &Rules{
		// -m "msg", -m 'msg', -am "msg", --message="msg"; single line only so
		// the heredoc form falls through to heredocStart.
		commitRE:      regexp.MustCompile(`(?:^|\s)(?:-[a-zA-Z]*m|--message)(?:\s+|=)(?:'([^'\n]*)'|"((?:[^"\\\n]|\\.)*)")`),
		heredocStart:  regexp.MustCompile(`<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`),
		prTitle:       regexp.MustCompile(`(?:^|\s)(?:--title|-t)(?:\s+|=)(?:"((?:[^"\\]|\\.)*)"|'([^']*)'|([^\s'"]+))`),
		echoPrefixes: []string{
			"<command-name>",
			"<command-message>",
			"<command-args>",
			"<local-command-stdout>",
			"<local-command-stderr>",
			"Caveat: The messages below were generated by the user while running local commands",
		},
	}
}

// IsCommandEcho reports whether text is an agent's echo of its own slash
// command rather than conversational content.
func (r *Rules) IsCommandEcho(text string) bool {
	t := strings.TrimLeft(text, " \t\r\n")
	for _, p := range r.echoPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}
