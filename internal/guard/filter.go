package guard

import "strings"

// Filter screens text against configured term lists. It is a coarse
// substring gate, not a moderation system.
type Filter struct {
	prohibited []string
	protected  []string
}

// NewFilter builds a filter from the configured lists. Terms are matched
// case-insensitively; blank entries are dropped.
func NewFilter(prohibited, protected []string) *Filter {
	return &Filter{
		prohibited: normalizeTerms(prohibited),
		protected:  normalizeTerms(protected),
	}
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ContainsProhibitedTerm reports whether text contains any denylisted term.
// A match blocks all dispatch for the message.
func (f *Filter) ContainsProhibitedTerm(text string) bool {
	return matches(f.prohibited, text)
}

// TouchesProtectedClass reports whether text references a protected-class
// term. Checked by handlers that generate targeted content, never globally.
func (f *Filter) TouchesProtectedClass(text string) bool {
	return matches(f.protected, text)
}

func matches(terms []string, text string) bool {
	if len(terms) == 0 || text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
