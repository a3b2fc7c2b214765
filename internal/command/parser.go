package command

import (
	"strings"
	"unicode"
)

// Sigil marks a message as a command when it is the first non-space character.
const Sigil = "/"

// Command is the parse result for a command message. Raw keeps the original
// text so handlers that need quote grouping can re-scan it.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// Parse classifies text as a command or free-form chat. The name is the
// first whitespace token after the sigil, lowercased; the remaining tokens
// become positional arguments. A bare sigil is not a command.
func Parse(text string) (*Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, Sigil) {
		return nil, false
	}

	fields := strings.Fields(trimmed[len(Sigil):])
	if len(fields) == 0 {
		return nil, false
	}

	return &Command{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
		Raw:  text,
	}, true
}

// Rest returns the raw text after the command name with outer space trimmed,
// quoting intact. Returns "" when the command had no arguments.
func (c *Command) Rest() string {
	t := strings.TrimSpace(c.Raw)
	t = strings.TrimPrefix(t, Sigil)
	i := strings.IndexFunc(t, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(t[i:])
}

// SplitQuoted tokenizes s on runs of whitespace, with double quotes grouping
// words into a single token. An unterminated quote swallows the remainder
// into the final token rather than failing.
func SplitQuoted(s string) []string {
	var tokens []string
	var cur strings.Builder
	pending := false
	inQuote := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			pending = true
		case unicode.IsSpace(r) && !inQuote:
			if pending {
				tokens = append(tokens, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
