package guard

import "strings"

// Gate decides whether a sender identity may run admin commands.
// Membership is tested on normalized identities, since the same number
// shows up formatted differently depending on the transport.
type Gate struct {
	allowed map[string]struct{}
}

// NewGate builds a gate from the configured allowlist. Entries without
// any digits are ignored.
func NewGate(allowlist []string) *Gate {
	g := &Gate{allowed: make(map[string]struct{}, len(allowlist))}
	for _, id := range allowlist {
		if n := NormalizeIdentity(id); n != "" {
			g.allowed[n] = struct{}{}
		}
	}
	return g
}

// NormalizeIdentity strips everything but digits, so "+1 (555) 000-1111"
// and "15550001111" compare equal.
func NormalizeIdentity(identity string) string {
	var b strings.Builder
	for _, r := range identity {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPrivileged reports whether the identity is on the allowlist.
func (g *Gate) IsPrivileged(identity string) bool {
	n := NormalizeIdentity(identity)
	if n == "" {
		return false
	}
	_, ok := g.allowed[n]
	return ok
}
