// Package builtin implements the commands the shell runs in-process.
//
// Builtins cover everything that must affect the shell's own state (cd,
// export, alias) plus a few conveniences. Job control commands are not here:
// jobs, fg and bg need the job table and live with the shell's main loop.
package builtin

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
)

// Env holds the shell state builtins mutate. Environment variables live in
// the process environment itself; only aliases need a home of their own.
type Env struct {
	Aliases map[string]string
}

func NewEnv() *Env {
	return &Env{Aliases: make(map[string]string)}
}

type fn func(ev *Env, args []string, out, errw io.Writer) int

var builtins = map[string]fn{
	"cd":      cd,
	"pwd":     pwd,
	"echo":    echo,
	"export":  export,
	"unset":   unset,
	"alias":   alias,
	"unalias": unalias,
	"source":  source,
	".":       source,
	"true":    func(*Env, []string, io.Writer, io.Writer) int { return 0 },
	"false":   func(*Env, []string, io.Writer, io.Writer) int { return 1 },
}

// Dispatch runs args as a builtin if one matches. The boolean reports
// whether the command was handled; the status is only meaningful when it
// was.
func Dispatch(ev *Env, args []string, out, errw io.Writer) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	f, ok := builtins[args[0]]
	if !ok {
		return false, 0
	}
	return true, f(ev, args, out, errw)
}

// TryAutoCd changes into args[0] if the line is a bare directory name, the
// way typing a path into some shells does.
func TryAutoCd(args []string) bool {
	if len(args) != 1 {
		return false
	}
	fi, err := os.Stat(args[0])
	if err != nil || !fi.IsDir() {
		return false
	}
	return os.Chdir(args[0]) == nil
}

func cd(ev *Env, args []string, out, errw io.Writer) int {
	target := ""
	if len(args) > 1 {
		target = args[1]
	} else {
		target = HomeDir()
	}
	if err := os.Chdir(target); err != nil {
		fmt.Fprintln(errw, "cd:", err)
		return 1
	}
	return 0
}

func pwd(ev *Env, args []string, out, errw io.Writer) int {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(errw, "pwd:", err)
		return 1
	}
	fmt.Fprintln(out, wd)
	return 0
}

func echo(ev *Env, args []string, out, errw io.Writer) int {
	fmt.Fprintln(out, strings.Join(args[1:], " "))
	return 0
}

func export(ev *Env, args []string, out, errw io.Writer) int {
	status := 0
	for _, arg := range args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			fmt.Fprintf(errw, "export: %s: not a NAME=value pair\n", arg)
			status = 1
			continue
		}
		os.Setenv(name, value)
	}
	return status
}

func unset(ev *Env, args []string, out, errw io.Writer) int {
	for _, name := range args[1:] {
		os.Unsetenv(name)
	}
	return 0
}

func alias(ev *Env, args []string, out, errw io.Writer) int {
	if len(args) == 1 {
		names := make([]string, 0, len(ev.Aliases))
		for name := range ev.Aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "alias %s='%s'\n", name, ev.Aliases[name])
		}
		return 0
	}
	status := 0
	for _, arg := range args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			if body, defined := ev.Aliases[arg]; defined {
				fmt.Fprintf(out, "alias %s='%s'\n", arg, body)
			} else {
				fmt.Fprintf(errw, "alias: %s: not found\n", arg)
				status = 1
			}
			continue
		}
		ev.Aliases[name] = unquote(value)
	}
	return status
}

func unalias(ev *Env, args []string, out, errw io.Writer) int {
	for _, name := range args[1:] {
		delete(ev.Aliases, name)
	}
	return 0
}

func source(ev *Env, args []string, out, errw io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(errw, "source: file name required")
		return 1
	}
	f, err := os.Open(args[1])
	if err != nil {
		fmt.Fprintln(errw, "source:", err)
		return 1
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		EvalRCLine(ev, scanner.Text(), out)
	}
	return 0
}

// HomeDir is the user's home directory, falling back to / when nothing can
// determine it.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if u, err := userCurrent(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return "/"
}

var userCurrent = user.Current

// RCName is the per-user startup file, read from the home directory.
const RCName = ".minishrc"

// LoadRC evaluates the startup file if one exists. A missing file is not an
// error.
func LoadRC(ev *Env, out io.Writer) {
	f, err := os.Open(filepath.Join(HomeDir(), RCName))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		EvalRCLine(ev, scanner.Text(), out)
	}
}

// EvalRCLine evaluates one startup-file directive. The rc language is
// deliberately tiny: comments, alias and export definitions, echo, and
// setprompt, which overrides the prompt via the environment.
func EvalRCLine(ev *Env, line string, out io.Writer) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch head {
	case "alias":
		if name, value, ok := strings.Cut(rest, "="); ok && name != "" {
			ev.Aliases[name] = unquote(value)
		}
	case "export":
		if name, value, ok := strings.Cut(rest, "="); ok && name != "" {
			os.Setenv(name, unquote(value))
		}
	case "echo":
		fmt.Fprintln(out, unquote(rest))
	case "setprompt":
		os.Setenv("MINISH_PROMPT", unquote(rest))
	}
}

// unquote strips one matching pair of surrounding single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
