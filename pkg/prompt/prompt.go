// Package prompt renders the interactive prompt.
//
// The default prompt shows the user, the base name of the working directory
// and, inside a git work tree, the current branch with a dirty marker. The
// arrow before the input point is green after a successful command and red
// otherwise. Setting MINISH_PROMPT replaces the whole prompt with a fixed
// string.
package prompt

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// OverrideEnv names the environment variable that replaces the rendered
// prompt when set.
const OverrideEnv = "MINISH_PROMPT"

var (
	symbol   = color.New(color.FgCyan, color.Bold)
	userName = color.New(color.FgHiWhite, color.Bold)
	dirName  = color.New(color.FgGreen)
	gitLabel = color.New(color.FgMagenta)
	gitName  = color.New(color.FgYellow)
	arrowOK  = color.New(color.FgGreen, color.Bold)
	arrowErr = color.New(color.FgRed, color.Bold)
)

// Build renders the prompt for the next input line. lastStatus is the exit
// status of the previous command and selects the arrow color.
func Build(lastStatus int) string {
	if s := os.Getenv(OverrideEnv); s != "" {
		return s
	}

	arrow := arrowOK
	if lastStatus != 0 {
		arrow = arrowErr
	}

	var b strings.Builder
	b.WriteString(symbol.Sprint("λ"))
	b.WriteString(" ")
	b.WriteString(userName.Sprint(currentUser()))
	b.WriteString(" ")
	b.WriteString(dirName.Sprint(cwdBase()))
	b.WriteString(arrow.Sprint(" → "))
	if branch := gitBranch(); branch != "" {
		b.WriteString(symbol.Sprint("λ"))
		b.WriteString(" ")
		b.WriteString(gitLabel.Sprint("git"))
		b.WriteString(" ")
		b.WriteString(gitName.Sprint(branch))
		b.WriteString(arrow.Sprint(" → "))
	}
	return b.String()
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "user"
}

func cwdBase() string {
	wd, err := os.Getwd()
	if err != nil {
		return "?"
	}
	return filepath.Base(wd)
}

// gitBranch reports the current branch, with a trailing * when the work
// tree has uncommitted changes, or "" outside a git work tree.
func gitBranch() string {
	out, err := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" {
		return ""
	}
	if st, err := exec.Command("git", "status", "--porcelain").Output(); err == nil && len(st) > 0 {
		branch += "*"
	}
	return branch
}
