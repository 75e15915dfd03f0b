// Package expand performs word expansion on scanned tokens.
//
// Expansions are applied to each word in a fixed order:
//
//  1. Tilde expansion
//  2. Command substitution
//  3. Parameter expansion
//  4. Pathname expansion (globbing)
//
// Only the last step can fan one word out into several; the others rewrite
// the word in place. This is a much smaller model than the POSIX one: there
// is no field splitting, the passes operate on the already-unquoted text, and
// text spliced in by an earlier pass is not rescanned by that same pass.
//
// No expansion here can fail a pipeline. Every step degrades to leaving the
// text alone (or to an empty substitution) on lookup misses and subprocess
// failures.
package expand

import (
	"errors"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
)

var userCurrent = user.Current

// Word fully expands one scanned word into zero or more final words.
func Word(w string) []string {
	return Glob(Params(CommandSubst(Tilde(w))))
}

// Words expands each word in ws and concatenates the results.
func Words(ws []string) []string {
	var out []string
	for _, w := range ws {
		out = append(out, Word(w)...)
	}
	return out
}

// Tilde replaces a leading ~ with the current user's home directory when the
// word is exactly "~" or starts with "~/". Other forms, including ~user, are
// left alone, as is everything when no home directory can be determined.
func Tilde(w string) string {
	if w != "~" && !strings.HasPrefix(w, "~/") {
		return w
	}
	home := os.Getenv("HOME")
	if home == "" {
		u, err := userCurrent()
		if err != nil {
			return w
		}
		home = u.HomeDir
	}
	return home + w[1:]
}

// runSubst runs the text inside a substitution span and captures its stdout.
// It is a variable so that tests can simulate spawn failure.
var runSubst = func(command string) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran but exited non-zero; whatever it wrote still
			// substitutes.
			return string(out), nil
		}
		return "", err
	}
	return string(out), nil
}

// CommandSubst replaces `...` and $(...) spans with the captured stdout of
// the enclosed command, run through the system command interpreter. The first
// matching closing delimiter wins; nested substitutions are not supported.
// Spliced output is not rescanned for further substitutions. A span whose
// subprocess cannot be spawned at all substitutes to the empty string.
func CommandSubst(w string) string {
	var sb strings.Builder
	for i := 0; i < len(w); {
		switch {
		case w[i] == '`':
			if j := strings.IndexByte(w[i+1:], '`'); j >= 0 {
				sb.WriteString(capture(w[i+1 : i+1+j]))
				i += j + 2
				continue
			}
		case w[i] == '$' && i+1 < len(w) && w[i+1] == '(':
			if j := strings.IndexByte(w[i+2:], ')'); j >= 0 {
				sb.WriteString(capture(w[i+2 : i+2+j]))
				i += j + 3
				continue
			}
		}
		sb.WriteByte(w[i])
		i++
	}
	return sb.String()
}

func capture(command string) string {
	out, err := runSubst(command)
	if err != nil {
		return ""
	}
	// Trailing newlines are removed, like in POSIX command substitution.
	// Carriage returns go with them for CRLF-producing commands.
	return strings.TrimRight(out, "\r\n")
}

// Params replaces $name and ${name} with the value of the named environment
// variable, or the empty string when unset. A name is a non-empty run of
// letters, digits and underscores. Malformed forms, such as a $ followed by
// neither a name nor a well-formed braced name, are left untouched. Expanded
// values are not rescanned.
func Params(w string) string {
	var sb strings.Builder
	for i := 0; i < len(w); {
		if w[i] != '$' || i+1 >= len(w) {
			sb.WriteByte(w[i])
			i++
			continue
		}
		if w[i+1] == '{' {
			if j := strings.IndexByte(w[i+2:], '}'); j >= 0 && isName(w[i+2:i+2+j]) {
				sb.WriteString(os.Getenv(w[i+2 : i+2+j]))
				i += j + 3
				continue
			}
			sb.WriteByte(w[i])
			i++
			continue
		}
		j := i + 1
		for j < len(w) && isNameByte(w[j]) {
			j++
		}
		if j == i+1 {
			sb.WriteByte(w[i])
			i++
			continue
		}
		sb.WriteString(os.Getenv(w[i+1 : j]))
		i = j
	}
	return sb.String()
}

// Glob interprets w as a pathname pattern. A pattern that matches one or more
// paths expands to them in sorted order; one that matches nothing (or is not
// a pattern at all) stays as a single literal word.
func Glob(w string) []string {
	if !strings.ContainsAny(w, "*?[") {
		return []string{w}
	}
	matches, err := filepath.Glob(w)
	if err != nil || len(matches) == 0 {
		// Bad patterns and misses both keep the literal word; a shell that
		// errors here would make unquoted [ unusable.
		return []string{w}
	}
	sort.Strings(matches)
	return matches
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i]) {
			return false
		}
	}
	return true
}

func isNameByte(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z'
}
