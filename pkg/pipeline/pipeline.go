// Package pipeline builds executable pipelines from raw input lines.
//
// A line is split into stages at unquoted | characters, each stage is scanned
// and expanded into its final argument vector, and redirection operators are
// pulled out of that vector. The package produces plain data; starting
// processes is the orchestrator's business.
package pipeline

import (
	"strings"
	"unicode"

	"github.com/elves/minish/pkg/expand"
	"github.com/elves/minish/pkg/scan"
)

// Redir is a stage's redirection record. A stage has at most one input and
// one output redirection; when an operator appears twice, the later
// occurrence wins.
type Redir struct {
	In     string
	Out    string
	Append bool
}

// Stage is one program invocation within a pipeline: the final argument
// vector after expansion, plus its redirections.
type Stage struct {
	Args  []string
	Redir Redir
}

// Pipeline is an ordered chain of at least one stage, run as one job.
type Pipeline struct {
	Stages     []Stage
	Background bool
}

// AliasFunc rewrites the argument vector of a pipeline's first stage. It is
// supplied by the builtin layer; the builder only knows when to call it.
type AliasFunc func([]string) []string

// Parse builds a pipeline from a raw input line. It returns nil when the
// line has no stages: blank lines, and degenerate ones like a lone |.
func Parse(line string, alias AliasFunc) *Pipeline {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	background := false
	if strings.HasSuffix(line, "&") && !endsQuoted(line) {
		background = true
		line = line[:len(line)-1]
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}

	var stages []Stage
	for _, text := range SplitStages(line) {
		words := expand.Words(scan.Strings(scan.Scan(text)))
		args, redir := extractRedirs(words)
		stages = append(stages, Stage{Args: args, Redir: redir})
	}
	if len(stages) == 0 {
		return nil
	}
	if alias != nil {
		stages[0].Args = alias(stages[0].Args)
	}
	return &Pipeline{Stages: stages, Background: background}
}

// SplitStages splits a line at | characters that are not inside a quote
// span. Quoting here is tracked by a per-character toggle, independently of
// the scanner; the two can disagree on pathologically nested quoting (a
// backslash-escaped quote, for example, still toggles this tracker). That
// coarseness is a known property of this splitter, not of the scanner.
func SplitStages(line string) []string {
	var parts []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		}
		if c == '|' && !inSingle && !inDouble {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteByte(c)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// endsQuoted reports whether the end of line falls inside a quote span,
// using the same coarse tracker as SplitStages.
func endsQuoted(line string) bool {
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"' && !inSingle:
			inDouble = !inDouble
		case line[i] == '\'' && !inDouble:
			inSingle = !inSingle
		}
	}
	return inSingle || inDouble
}

// extractRedirs removes <, > and >> operators (each takes the following word
// as its path) from the word list, leaving the program's argument vector. An
// operator with no following word is kept as a literal argument.
func extractRedirs(words []string) ([]string, Redir) {
	var args []string
	var r Redir
	for i := 0; i < len(words); i++ {
		switch {
		case words[i] == "<" && i+1 < len(words):
			r.In = words[i+1]
			i++
		case words[i] == ">" && i+1 < len(words):
			r.Out = words[i+1]
			r.Append = false
			i++
		case words[i] == ">>" && i+1 < len(words):
			r.Out = words[i+1]
			r.Append = true
			i++
		default:
			args = append(args, words[i])
		}
	}
	return args, r
}

// Text reconstructs a command string for job bookkeeping: expanded words
// joined by spaces, stages joined by pipes. Redirections are not included.
func (p *Pipeline) Text() string {
	texts := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		texts[i] = strings.Join(s.Args, " ")
	}
	return strings.Join(texts, " | ")
}
