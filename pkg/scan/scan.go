// Package scan splits a command line into words, respecting single quotes,
// double quotes and backslash escapes.
//
// The dialect is deliberately small: quoting affects which bytes end up in a
// word, and nothing else. Quote delimiters are removed and escapes are
// resolved during scanning, so a Token carries no quoting information. The
// scanner has no error states; an unterminated quote simply runs to the end
// of the input.
package scan

// Token is one scanned word with quote delimiters removed and escapes
// applied.
type Token string

// isBlank reports whether c is ASCII whitespace. The scanner works on bytes,
// so only ASCII may delimit words; anything else would split multibyte
// characters on continuation bytes like 0xA0.
func isBlank(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

type state int

const (
	base state = iota
	inSingleQuote
	inDoubleQuote
)

// Scan splits line into tokens. Words are delimited by unquoted whitespace;
// empty words are dropped, so a line of pure whitespace scans to nothing, and
// so does a bare pair of quotes.
func Scan(line string) []Token {
	var tokens []Token
	var cur []byte

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, Token(cur))
			cur = nil
		}
	}

	st := base
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch st {
		case base:
			switch {
			case isBlank(c):
				flush()
			case c == '\'':
				st = inSingleQuote
			case c == '"':
				st = inDoubleQuote
			case c == '\\':
				// A trailing backslash at the end of input is dropped.
				if i+1 < len(line) {
					i++
					cur = append(cur, line[i])
				}
			default:
				cur = append(cur, c)
			}
		case inSingleQuote:
			// No escape processing of any kind inside single quotes.
			if c == '\'' {
				st = base
			} else {
				cur = append(cur, c)
			}
		case inDoubleQuote:
			switch {
			case c == '"':
				st = base
			case c == '\\' && i+1 < len(line):
				// Only these four characters can be escaped inside double
				// quotes; otherwise the backslash is literal and the next
				// character is processed normally.
				switch n := line[i+1]; n {
				case '"', '\\', '$', '`':
					cur = append(cur, n)
					i++
				default:
					cur = append(cur, '\\')
				}
			default:
				cur = append(cur, c)
			}
		}
	}
	flush()
	return tokens
}

// Strings converts a token list to plain strings.
func Strings(tokens []Token) []string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = string(t)
	}
	return words
}
