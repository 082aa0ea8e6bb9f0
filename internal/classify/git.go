package classify

import (
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

// gitSubcommands maps git subcommands onto the closed GitOp set. Anything
// else under git is GitOther.
var gitSubcommands = map[string]model.GitOp{
	"commit":   model.GitCommit,
	"push":     model.GitPush,
	"pull":     model.GitPull,
	"branch":   model.GitBranch,
	"checkout": model.GitCheckout,
	"switch":   model.GitCheckout,
	"diff":     model.GitDiff,
	"merge":    model.GitMerge,
	"rebase":   model.GitRebase,
	"status":   model.GitStatus,
}

// git global options that consume the following token.
var gitOptsWithArg = map[string]bool{"-C": true, "-c": true, "--git-dir": true, "--work-tree": true}

// ParseGit recognizes a git or `gh pr create` invocation in a shell command.
// Chained commands are scanned segment by segment and the first recognized
// segment wins. It only pattern-matches text and never fails: unrecognized
// syntax returns false.
func (r *Rules) ParseGit(command string) (model.GitBlock, bool) {
	for _, start := range segmentStarts(command) {
		rest := strings.TrimLeft(command[start:], " \t\r\n")
		seg := rest[:segmentEnd(rest)]
		args := splitArgs(seg)
		for len(args) > 0 && isEnvAssignment(args[0]) {
			args = args[1:]
		}
		if len(args) == 0 {
			continue
		}

		switch {
		case args[0] == "git":
			return r.parseGitArgs(args[1:], rest), true
		case len(args) >= 3 && args[0] == "gh" && args[1] == "pr" && args[2] == "create":
			g := model.GitBlock{Operation: model.GitPRCreate}
			if m := r.prTitle.FindStringSubmatch(seg); m != nil {
				g.PRTitle = firstNonEmpty(unescapeDouble(m[1]), m[2], m[3])
			}
			return g, true
		}
	}
	return model.GitBlock{}, false
}

// parseGitArgs interprets the tokens after "git". full is the command text
// from the git token to the end of the whole command, so heredoc bodies
// that span separators stay reachable.
func (r *Rules) parseGitArgs(args []string, full string) model.GitBlock {
	i := 0
	for i < len(args) && strings.HasPrefix(args[i], "-") {
		if gitOptsWithArg[args[i]] {
			i++
		}
		i++
	}
	if i >= len(args) {
		return model.GitBlock{Operation: model.GitOther}
	}

	sub := args[i]
	op, ok := gitSubcommands[sub]
	if !ok {
		return model.GitBlock{Operation: model.GitOther}
	}
	g := model.GitBlock{Operation: op}
	rest := positional(args[i+1:])

	switch op {
	case model.GitCommit:
		g.Message = r.commitMessage(full)
	case model.GitCheckout, model.GitBranch:
		if len(rest) > 0 {
			g.Branch = rest[len(rest)-1]
		}
	case model.GitPush, model.GitPull:
		if len(rest) >= 2 {
			g.Branch = rest[1]
			if idx := strings.LastIndex(g.Branch, ":"); idx >= 0 {
				g.Branch = g.Branch[idx+1:]
			}
		}
	}
	return g
}

// commitMessage extracts a commit message, trying the single-line quoted
// form first and the heredoc form second.
func (r *Rules) commitMessage(cmd string) string {
	if m := r.commitRE.FindStringSubmatch(cmd); m != nil {
		msg := m[1]
		if m[2] != "" {
			msg = unescapeDouble(m[2])
		}
		if !strings.HasPrefix(msg, "$(") {
			return msg
		}
	}

	loc := r.heredocStart.FindStringSubmatchIndex(cmd)
	if loc == nil {
		return ""
	}
	delim := cmd[loc[2]:loc[3]]
	nl := strings.IndexByte(cmd[loc[1]:], '\n')
	if nl < 0 {
		return ""
	}
	body := cmd[loc[1]+nl+1:]
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == delim {
			return strings.TrimSpace(strings.Join(lines[:i], "\n"))
		}
	}
	return ""
}

// positional drops flags and everything after a bare "--".
func positional(args []string) []string {
	var out []string
	for _, a := range args {
		if a == "--" {
			break
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// segmentStarts returns the byte offsets at which a new shell command may
// begin: the start of the string and after each unquoted &&, ||, ; | or
// newline.
func segmentStarts(s string) []int {
	starts := []int{0}
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '\\':
			i++
		case c == ';' || c == '\n' || c == '|' || c == '&':
			j := i + 1
			if (c == '|' || c == '&') && j < len(s) && s[j] == c {
				j++
			}
			starts = append(starts, j)
			i = j - 1
		}
	}
	return starts
}

// segmentEnd returns the length of the first command segment of s.
func segmentEnd(s string) int {
	starts := segmentStarts(s)
	if len(starts) < 2 {
		return len(s)
	}
	end := starts[1] - 1
	for end > 0 && (s[end-1] == '&' || s[end-1] == '|') && (s[end] == '&' || s[end] == '|') {
		end--
	}
	return end
}

// splitArgs performs a minimal shell-word split honoring quotes.
func splitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quote   byte
		inToken bool
	)
	flush := func() {
		if inToken {
			args = append(args, cur.String())
			cur.Reset()
			inToken = false
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c == '\\' && quote == '"' && i+1 < len(s) && strings.IndexByte("\"\\$`", s[i+1]) >= 0 {
				i++
				cur.WriteByte(s[i])
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inToken = true
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			flush()
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	flush()
	return args
}

func isEnvAssignment(tok string) bool {
	eq := strings.IndexByte(tok, '=')
	return eq > 0 && !strings.HasPrefix(tok, "-")
}

// unescapeDouble undoes the escapes the shell honors inside double quotes.
// Any other backslash is literal.
func unescapeDouble(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '$', '`':
				i++
			case '\n':
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
