package builtin

import "strings"

// maxAliasDepth bounds chained alias expansion so that mutually recursive
// definitions cannot loop.
const maxAliasDepth = 10

// Expand rewrites the head word of args through the alias table. Expansion
// iterates so that an alias may name another alias, stops as soon as an
// alias expands to itself, and gives up after maxAliasDepth rounds. Alias
// bodies are split on whitespace; they went through no quoting when defined.
func (ev *Env) Expand(args []string) []string {
	for depth := 0; depth < maxAliasDepth; depth++ {
		if len(args) == 0 {
			return args
		}
		body, ok := ev.Aliases[args[0]]
		if !ok {
			return args
		}
		head := strings.Fields(body)
		if len(head) == 0 {
			return args[1:]
		}
		expanded := append(head, args[1:]...)
		if head[0] == args[0] {
			return expanded
		}
		args = expanded
	}
	return args
}
