package relay

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatrelay/internal/dispatch"
	"github.com/chatrelay/internal/llm"
	"github.com/chatrelay/internal/router"
	"github.com/chatrelay/internal/session"
	"github.com/chatrelay/pkg/models"
)

// DefaultTimeout bounds a single message's processing, completion call
// included.
const DefaultTimeout = 60 * time.Second

// CommandHandler consumes messages that turn out to be commands.
type CommandHandler interface {
	Handle(ctx context.Context, sender, text string) bool
}

// Deps wires the engine to its collaborators.
type Deps struct {
	Store      *session.Store
	Router     CommandHandler
	LLM        llm.Client
	Sender     router.Sender
	Dispatcher *dispatch.Dispatcher
	Timeout    time.Duration
}

// Engine turns accepted webhook messages into replies. Each message is
// queued on its sender's key, so one person's messages are processed in
// arrival order while different people proceed in parallel.
type Engine struct {
	store      *session.Store
	router     CommandHandler
	llm        llm.Client
	sender     router.Sender
	dispatcher *dispatch.Dispatcher
	timeout    time.Duration
}

// NewEngine creates an engine. A zero Timeout falls back to DefaultTimeout.
func NewEngine(deps Deps) *Engine {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		store:      deps.Store,
		router:     deps.Router,
		llm:        deps.LLM,
		sender:     deps.Sender,
		dispatcher: deps.Dispatcher,
		timeout:    timeout,
	}
}

// HandleInbound accepts a message for asynchronous processing. It returns
// immediately; the webhook must acknowledge before any reply is generated.
func (e *Engine) HandleInbound(msg models.InboundMessage) {
	if msg.From == "" {
		log.Warn().Str("message_id", msg.MessageID).Msg("Dropping inbound message without sender")
		return
	}
	if !e.dispatcher.Submit(msg.From, func() { e.process(msg) }) {
		log.Warn().Str("from", msg.From).Msg("Dropping message, dispatcher is stopped")
	}
}

// process runs one message end to end. It owns its own deadline because by
// the time it runs, the webhook request that carried the message is long
// gone.
func (e *Engine) process(msg models.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	log.Debug().
		Str("from", msg.From).
		Str("name", msg.ProfileName).
		Str("message_id", msg.MessageID).
		Msg("Processing inbound message")

	if msg.Media != nil {
		e.store.SetMedia(msg.From, *msg.Media)
		log.Debug().
			Str("from", msg.From).
			Str("media_id", msg.Media.MediaID).
			Str("mime_type", msg.Media.MimeType).
			Msg("Recorded attachment")
	}

	text := msg.Text
	if msg.Selection != "" {
		// A menu row selection behaves exactly like typing the command.
		text = "/" + msg.Selection
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	if e.router.Handle(ctx, msg.From, text) {
		return
	}

	e.chat(ctx, msg.From, text)
}

// chat is the conversational fallback: record the user turn, ask the model
// for a reply with the full history, commit the assistant turn, then send.
// The user turn stays recorded even when the completion fails, and a
// delivery failure never rolls the history back.
func (e *Engine) chat(ctx context.Context, identity, text string) {
	e.store.AppendUser(identity, text)

	reply, err := e.llm.GenerateReply(ctx, e.store.Conversation(identity))
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("Completion failed")
		e.send(ctx, identity, router.Apology)
		return
	}

	e.store.AppendAssistant(identity, reply)
	e.send(ctx, identity, reply)
}

func (e *Engine) send(ctx context.Context, to, body string) {
	if err := e.sender.SendText(ctx, to, body); err != nil {
		log.Error().Err(err).Str("to", to).Msg("Failed to deliver reply")
	}
}
