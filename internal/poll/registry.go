package poll

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPoll flags malformed creation arguments.
	ErrInvalidPoll = errors.New("poll needs at least two options")
	// ErrPollNotFound flags an unknown poll identifier.
	ErrPollNotFound = errors.New("poll not found")
	// ErrInvalidOption flags a vote for an option index that does not exist.
	ErrInvalidOption = errors.New("option index out of range")
)

// Poll is an immutable snapshot handed to callers.
type Poll struct {
	ID       string
	Question string
	Options  []string
	Creator  string
}

// OptionCount pairs an option with its current number of votes,
// in option order.
type OptionCount struct {
	Option string
	Votes  int
}

type entry struct {
	question string
	options  []string
	votes    []map[string]struct{}
	creator  string
}

// Registry owns all live polls. Polls are never deleted; they last for the
// process lifetime, which is acceptable at chat-group cardinality.
type Registry struct {
	mu    sync.RWMutex
	polls map[string]*entry
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		polls: make(map[string]*entry),
		now:   time.Now,
	}
}

// newID builds a short identifier users can type back in a vote command.
// A time component plus a random fragment is plenty; polls are not a
// security boundary.
func (r *Registry) newID() string {
	return fmt.Sprintf("p%s-%s", r.now().Format("0405"), uuid.NewString()[:6])
}

// Create registers a new poll and returns its snapshot. At least two
// options are required.
func (r *Registry) Create(question string, options []string, creator string) (*Poll, error) {
	if len(options) < 2 {
		return nil, ErrInvalidPoll
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, taken := r.polls[id]; !taken {
			break
		}
		id = r.newID()
	}

	e := &entry{
		question: question,
		options:  append([]string(nil), options...),
		votes:    make([]map[string]struct{}, len(options)),
		creator:  creator,
	}
	for i := range e.votes {
		e.votes[i] = make(map[string]struct{})
	}
	r.polls[id] = e

	return snapshot(id, e), nil
}

// Vote records voter's choice of optionIndex and returns the updated tally.
// A voter holds at most one vote per poll; voting again moves the vote.
func (r *Registry) Vote(pollID, voter string, optionIndex int) ([]OptionCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.polls[pollID]
	if !ok {
		return nil, ErrPollNotFound
	}
	if optionIndex < 0 || optionIndex >= len(e.options) {
		return nil, ErrInvalidOption
	}

	// Retract any earlier vote before recording the new one.
	for _, set := range e.votes {
		delete(set, voter)
	}
	e.votes[optionIndex][voter] = struct{}{}

	return tally(e), nil
}

// Tally returns the current per-option counts without changing anything.
func (r *Registry) Tally(pollID string) ([]OptionCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.polls[pollID]
	if !ok {
		return nil, ErrPollNotFound
	}
	return tally(e), nil
}

// Get returns the snapshot for a poll.
func (r *Registry) Get(pollID string) (*Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.polls[pollID]
	if !ok {
		return nil, ErrPollNotFound
	}
	return snapshot(pollID, e), nil
}

// Count returns the number of live polls.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.polls)
}

func snapshot(id string, e *entry) *Poll {
	return &Poll{
		ID:       id,
		Question: e.question,
		Options:  append([]string(nil), e.options...),
		Creator:  e.creator,
	}
}

func tally(e *entry) []OptionCount {
	out := make([]OptionCount, len(e.options))
	for i, opt := range e.options {
		out[i] = OptionCount{Option: opt, Votes: len(e.votes[i])}
	}
	return out
}
