package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/smriti/internal/model"
)

func TestParseGit(t *testing.T) {
	rules := NewRules()

	tests := []struct {
		name   string
		cmd    string
		want   model.GitBlock
		wantOK bool
	}{
		{"commit double quotes", `git commit -m "fix auth bug"`, model.GitBlock{Operation: model.GitCommit, Message: "fix auth bug"}, true},
		{"commit single quotes", `git commit -m 'tidy up'`, model.GitBlock{Operation: model.GitCommit, Message: "tidy up"}, true},
		{"commit -am", `git commit -am "wip"`, model.GitBlock{Operation: model.GitCommit, Message: "wip"}, true},
		{"commit escaped quote", `git commit -m "say \"hi\""`, model.GitBlock{Operation: model.GitCommit, Message: `say "hi"`}, true},
		{"commit literal backslash", `git commit -m "fix: handle \n in paths"`, model.GitBlock{Operation: model.GitCommit, Message: `fix: handle \n in paths`}, true},
		{"commit escaped dollar", `git commit -m "cost \$5 and C:\\tmp"`, model.GitBlock{Operation: model.GitCommit, Message: `cost $5 and C:\tmp`}, true},
		{"commit no message", `git commit --amend --no-edit`, model.GitBlock{Operation: model.GitCommit}, true},
		{
			"commit heredoc",
			"git commit -m \"$(cat <<'EOF'\n   Add login flow\n\n   Handles expired tokens.\n   EOF\n   )\"",
			model.GitBlock{Operation: model.GitCommit, Message: "Add login flow\n\n   Handles expired tokens."},
			true,
		},
		{"push remote branch", `git push origin main`, model.GitBlock{Operation: model.GitPush, Branch: "main"}, true},
		{"push with upstream flag", `git push -u origin feature/login`, model.GitBlock{Operation: model.GitPush, Branch: "feature/login"}, true},
		{"push refspec", `git push origin HEAD:release`, model.GitBlock{Operation: model.GitPush, Branch: "release"}, true},
		{"push bare", `git push`, model.GitBlock{Operation: model.GitPush}, true},
		{"checkout", `git checkout feature/x`, model.GitBlock{Operation: model.GitCheckout, Branch: "feature/x"}, true},
		{"checkout -b", `git checkout -b feature/y`, model.GitBlock{Operation: model.GitCheckout, Branch: "feature/y"}, true},
		{"switch", `git switch develop`, model.GitBlock{Operation: model.GitCheckout, Branch: "develop"}, true},
		{"branch delete", `git branch -D old-branch`, model.GitBlock{Operation: model.GitBranch, Branch: "old-branch"}, true},
		{"status", `git status --short`, model.GitBlock{Operation: model.GitStatus}, true},
		{"stash pop is other", `git stash pop`, model.GitBlock{Operation: model.GitOther}, true},
		{"global option", `git -C /repo diff HEAD~1`, model.GitBlock{Operation: model.GitDiff}, true},
		{"after cd", `cd /repo && git pull origin main`, model.GitBlock{Operation: model.GitPull, Branch: "main"}, true},
		{"env prefix", `GIT_EDITOR=true git rebase --continue`, model.GitBlock{Operation: model.GitRebase}, true},
		{"pr create", `gh pr create --title "Add login" --body "..."`, model.GitBlock{Operation: model.GitPRCreate, PRTitle: "Add login"}, true},
		{"pr create no title", `gh pr create --fill`, model.GitBlock{Operation: model.GitPRCreate}, true},
		{"not git", `go test ./...`, model.GitBlock{}, false},
		{"git in argument", `echo git push`, model.GitBlock{}, false},
		{"empty", ``, model.GitBlock{}, false},
		{"unbalanced quote", `git commit -m "oops`, model.GitBlock{Operation: model.GitCommit}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rules.ParseGit(tt.cmd)
			if ok != tt.wantOK {
				t.Fatalf("ParseGit(%q) ok = %v, want %v", tt.cmd, ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseGit(%q) mismatch (-want +got):\n%s", tt.cmd, diff)
			}
		})
	}
}

func TestIsCommandEcho(t *testing.T) {
	rules := NewRules()
	if !rules.IsCommandEcho("<command-name>/clear</command-name>") {
		t.Error("expected command-name echo to match")
	}
	if !rules.IsCommandEcho("  <local-command-stdout></local-command-stdout>") {
		t.Error("expected leading whitespace to be ignored")
	}
	if rules.IsCommandEcho("please run <command-name>") {
		t.Error("prefix must be at the start")
	}
}

// FuzzParseGit checks that arbitrary shell text never panics and that any
// match carries an operation from the closed set.
func FuzzParseGit(f *testing.F) {
	f.Add(`git commit -m "msg"`)
	f.Add("git commit -m \"$(cat <<'EOF'\nbody\nEOF\n)\"")
	f.Add(`gh pr create --title 'x'`)
	f.Add(`a && b || c; git push origin main`)
	f.Add(`git`)
	f.Add(`"unterminated`)
	f.Add(`\`)

	rules := NewRules()
	valid := map[model.GitOp]bool{}
	for _, op := range gitSubcommands {
		valid[op] = true
	}
	valid[model.GitOther] = true
	valid[model.GitPRCreate] = true

	f.Fuzz(func(t *testing.T, cmd string) {
		g, ok := rules.ParseGit(cmd)
		if ok && !valid[g.Operation] {
			t.Errorf("ParseGit(%q) produced operation %q", cmd, g.Operation)
		}
	})
}
