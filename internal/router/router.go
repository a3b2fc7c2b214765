package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatrelay/internal/command"
	"github.com/chatrelay/internal/guard"
	"github.com/chatrelay/internal/llm"
	"github.com/chatrelay/internal/poll"
	"github.com/chatrelay/internal/session"
	"github.com/chatrelay/pkg/models"
)

// Apology is the fixed reply for internal failures. Also used by the
// conversational fallback when the completion service is down.
const Apology = "Sorry, something went wrong on my end. Please try again in a moment."

const (
	filterWarning = "Let's keep things friendly here. I can't help with that."
	adminDenied   = "Sorry, that command is only available to admins."
)

// Sender delivers outbound messages. Send failures are logged and swallowed;
// they never travel back into the event-processing path.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendMenu(ctx context.Context, to string, menu models.Menu) error
}

// HandlerFunc runs one command for one sender.
type HandlerFunc func(ctx context.Context, sender string, cmd *command.Command) error

type entry struct {
	name        string
	usage       string
	description string
	adminOnly   bool
	inMenu      bool
	handler     HandlerFunc
}

// Deps wires the router to everything a handler may touch.
type Deps struct {
	Store  *session.Store
	Polls  *poll.Registry
	Filter *guard.Filter
	Gate   *guard.Gate
	LLM    llm.Client
	Sender Sender
}

// Router owns the command registry and drives each inbound message through
// filter, parse, authorization and dispatch.
type Router struct {
	deps      Deps
	registry  map[string]*entry
	order     []string
	startedAt time.Time
}

// New creates a router with the built-in command set registered.
func New(deps Deps) *Router {
	r := &Router{
		deps:      deps,
		registry:  make(map[string]*entry),
		startedAt: time.Now(),
	}

	r.register(&entry{name: "help", usage: "/help", description: "List available commands", inMenu: true, handler: r.handleHelp})
	r.register(&entry{name: "menu", usage: "/menu", description: "Show the command menu", handler: r.handleMenu})
	r.register(&entry{name: "reset", usage: "/reset", description: "Start our conversation over", inMenu: true, handler: r.handleReset})
	r.register(&entry{name: "export", usage: "/export", description: "Get a transcript of our chat", inMenu: true, handler: r.handleExport})
	r.register(&entry{name: "media", usage: "/media", description: "Show your last attachment", inMenu: true, handler: r.handleMedia})
	r.register(&entry{name: "poll", usage: `/poll "Question" Option1 Option2`, description: "Create a poll", handler: r.handlePoll})
	r.register(&entry{name: "vote", usage: "/vote <id> <number>", description: "Vote in a poll", handler: r.handleVote})
	r.register(&entry{name: "tally", usage: "/tally <id>", description: "Show poll results", handler: r.handleTally})
	r.register(&entry{name: "insult", usage: "/insult <name>", description: "A playful roast", handler: r.handleInsult})
	r.register(&entry{name: "compliment", usage: "/compliment <name>", description: "Brighten someone's day", handler: r.handleCompliment})
	r.register(&entry{name: "stats", usage: "/stats", description: "Service statistics", adminOnly: true, handler: r.handleStats})
	r.register(&entry{name: "broadcast", usage: "/broadcast <message>", description: "Message every active chat", adminOnly: true, handler: r.handleBroadcast})

	return r
}

func (r *Router) register(e *entry) {
	r.registry[e.name] = e
	r.order = append(r.order, e.name)
}

// Handle runs the command pipeline for one inbound message and reports
// whether the message was consumed. False means the caller should continue
// with the conversational fallback.
func (r *Router) Handle(ctx context.Context, sender, text string) bool {
	if r.deps.Filter.ContainsProhibitedTerm(text) {
		log.Warn().Str("sender", sender).Msg("Message rejected by term filter")
		r.reply(ctx, sender, filterWarning)
		return true
	}

	cmd, ok := command.Parse(text)
	if !ok {
		return false
	}

	e := r.registry[cmd.Name]
	if e == nil {
		// Interactive menu selections come back as "cmd:<id>" row ids.
		if id, found := strings.CutPrefix(cmd.Name, "cmd:"); found {
			e = r.registry[id]
		}
	}
	if e == nil {
		r.reply(ctx, sender, fmt.Sprintf("I don't know %q. Send /help to see what I can do.", "/"+cmd.Name))
		return true
	}

	if e.adminOnly && !r.deps.Gate.IsPrivileged(sender) {
		log.Warn().Str("sender", sender).Str("command", e.name).Msg("Admin command denied")
		r.reply(ctx, sender, adminDenied)
		return true
	}

	log.Debug().Str("sender", sender).Str("command", e.name).Msg("Dispatching command")
	r.dispatch(ctx, sender, e, cmd)
	return true
}

// dispatch invokes the handler behind a panic barrier. A fault inside a
// handler becomes a logged apology, never a crash or a half-open state.
func (r *Router) dispatch(ctx context.Context, sender string, e *entry, cmd *command.Command) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("command", e.name).
				Str("sender", sender).
				Msg("Handler panicked")
			r.reply(ctx, sender, Apology)
		}
	}()

	err := e.handler(ctx, sender, cmd)
	if err == nil {
		return
	}

	msg, expected := errorReply(err)
	if expected {
		log.Warn().Err(err).Str("command", e.name).Str("sender", sender).Msg("Command rejected")
	} else {
		log.Error().Err(err).Str("command", e.name).Str("sender", sender).Msg("Handler failed")
	}
	r.reply(ctx, sender, msg)
}

// errorReply maps an error to its user-facing reply. The bool reports
// whether the error is an expected, user-correctable outcome.
func errorReply(err error) (string, bool) {
	switch {
	case errors.Is(err, poll.ErrInvalidPoll):
		return "A poll needs a question and at least two options, like:\n/poll \"Lunch?\" Pizza Sushi", true
	case errors.Is(err, poll.ErrPollNotFound):
		return "I can't find that poll. Check the id and try again.", true
	case errors.Is(err, poll.ErrInvalidOption):
		return "That option number doesn't exist for this poll.", true
	case errors.Is(err, llm.ErrEmptyCompletion):
		return Apology, true
	default:
		return Apology, false
	}
}

// reply sends text back to the sender, logging delivery failures.
func (r *Router) reply(ctx context.Context, to, text string) {
	if err := r.deps.Sender.SendText(ctx, to, text); err != nil {
		log.Error().Err(err).Str("to", to).Msg("Failed to send reply")
	}
}
