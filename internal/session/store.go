package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatrelay/pkg/models"
)

const (
	// DefaultMaxTurns is the number of user/assistant exchanges retained
	// per conversation when no cap is configured.
	DefaultMaxTurns = 16

	// DefaultTTL is the idle lifetime of a session when none is configured.
	DefaultTTL = 30 * time.Minute
)

// Config controls a Store. Clock exists so tests can drive time.
type Config struct {
	SystemPrompt string
	MaxTurns     int
	TTL          time.Duration
	Clock        func() time.Time
}

// Store owns all conversation sessions, keyed by the sender identity.
// Sessions are created lazily on first mutation and reaped by SweepExpired.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*state
	cfg      Config
}

type state struct {
	history  []models.Message
	media    *models.MediaDescriptor
	lastSeen time.Time
}

// NewStore creates an empty store. Zero config fields fall back to defaults.
func NewStore(cfg Config) *Store {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Store{
		sessions: make(map[string]*state),
		cfg:      cfg,
	}
}

// session returns the entry for identity, creating it if needed.
// Callers must hold the write lock.
func (st *Store) session(identity string) *state {
	s, ok := st.sessions[identity]
	if !ok {
		s = &state{
			history:  []models.Message{{Role: models.RoleSystem, Content: st.cfg.SystemPrompt}},
			lastSeen: st.cfg.Clock(),
		}
		st.sessions[identity] = s
	}
	return s
}

// AppendUser records a user message. Empty or whitespace-only text is ignored.
func (st *Store) AppendUser(identity, text string) {
	st.append(identity, models.RoleUser, text)
}

// AppendAssistant records an assistant reply. Empty or whitespace-only text is ignored.
func (st *Store) AppendAssistant(identity, text string) {
	st.append(identity, models.RoleAssistant, text)
}

func (st *Store) append(identity string, role models.Role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.session(identity)
	s.history = append(s.history, models.Message{Role: role, Content: text})
	s.lastSeen = st.cfg.Clock()

	// The preamble at index 0 never counts toward the cap. A turn is one
	// user/assistant exchange, so the cap allows twice MaxTurns messages;
	// the oldest messages are dropped one at a time, which can leave a
	// reply without the message that prompted it at the window edge.
	capacity := 2 * st.cfg.MaxTurns
	if overflow := len(s.history) - 1 - capacity; overflow > 0 {
		s.history = append(s.history[:1], s.history[1+overflow:]...)
	}
}

// Conversation returns a snapshot of the session history in replay order,
// starting with the system preamble. Unknown identities get a preamble-only
// snapshot without a session being created.
func (st *Store) Conversation(identity string) []models.Message {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[identity]
	if !ok {
		return []models.Message{{Role: models.RoleSystem, Content: st.cfg.SystemPrompt}}
	}

	out := make([]models.Message, len(s.history))
	copy(out, s.history)
	return out
}

// SetMedia overwrites the session's media pointer. Only the most recent
// attachment is retained; history is untouched.
func (st *Store) SetMedia(identity string, media models.MediaDescriptor) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.session(identity)
	s.media = &media
	s.lastSeen = st.cfg.Clock()
}

// LastMedia returns a copy of the most recent media pointer, or nil if the
// session has never seen an attachment.
func (st *Store) LastMedia(identity string) *models.MediaDescriptor {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[identity]
	if !ok || s.media == nil {
		return nil
	}
	m := *s.media
	return &m
}

// Reset collapses the history back to the system preamble and clears the
// media pointer. The session itself survives, so TTL eviction still applies.
func (st *Store) Reset(identity string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.session(identity)
	s.history = []models.Message{{Role: models.RoleSystem, Content: st.cfg.SystemPrompt}}
	s.media = nil
	s.lastSeen = st.cfg.Clock()
}

// ExportText renders the history as a transcript, one line per message,
// without the system preamble. Returns "" for an empty conversation.
func (st *Store) ExportText(identity string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[identity]
	if !ok {
		return ""
	}

	var b strings.Builder
	for _, m := range s.history {
		switch m.Role {
		case models.RoleUser:
			b.WriteString("User: ")
		case models.RoleAssistant:
			b.WriteString("Bot: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SweepExpired removes every session idle for longer than the TTL at the
// given instant and reports how many were removed. A session touched
// concurrently may survive until the next sweep, which is fine.
func (st *Store) SweepExpired(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for identity, s := range st.sessions {
		if now.Sub(s.lastSeen) > st.cfg.TTL {
			delete(st.sessions, identity)
			removed++
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Identities returns the live session keys in sorted order.
func (st *Store) Identities() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]string, 0, len(st.sessions))
	for identity := range st.sessions {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}
