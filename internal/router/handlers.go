package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatrelay/internal/command"
	"github.com/chatrelay/internal/poll"
	"github.com/chatrelay/pkg/models"
)

func (r *Router) handleHelp(ctx context.Context, sender string, cmd *command.Command) error {
	privileged := r.deps.Gate.IsPrivileged(sender)

	var b strings.Builder
	b.WriteString("Here's what I can do:\n")
	for _, name := range r.order {
		e := r.registry[name]
		if e.adminOnly && !privileged {
			continue
		}
		fmt.Fprintf(&b, "%s - %s\n", e.usage, e.description)
	}
	b.WriteString("\nAnything else you send me, I answer as a chat assistant.")

	r.reply(ctx, sender, b.String())
	return nil
}

func (r *Router) handleMenu(ctx context.Context, sender string, cmd *command.Command) error {
	var rows []models.MenuRow
	for _, name := range r.order {
		e := r.registry[name]
		if !e.inMenu || e.adminOnly {
			continue
		}
		rows = append(rows, models.MenuRow{
			ID:          "cmd:" + e.name,
			Title:       "/" + e.name,
			Description: e.description,
		})
	}

	menu := models.Menu{
		Header:     "ChatRelay",
		Body:       "Pick a command to run, or just keep chatting.",
		ButtonText: "Commands",
		Sections: []models.MenuSection{
			{Title: "Commands", Rows: rows},
		},
	}

	if err := r.deps.Sender.SendMenu(ctx, sender, menu); err != nil {
		log.Error().Err(err).Str("to", sender).Msg("Failed to send menu")
	}
	return nil
}

func (r *Router) handleReset(ctx context.Context, sender string, cmd *command.Command) error {
	r.deps.Store.Reset(sender)
	r.reply(ctx, sender, "Okay, clean slate. What would you like to talk about?")
	return nil
}

func (r *Router) handleExport(ctx context.Context, sender string, cmd *command.Command) error {
	transcript := r.deps.Store.ExportText(sender)
	if transcript == "" {
		r.reply(ctx, sender, "We haven't chatted yet, so there's nothing to export.")
		return nil
	}
	r.reply(ctx, sender, "Here's our conversation so far:\n\n"+transcript)
	return nil
}

func (r *Router) handleMedia(ctx context.Context, sender string, cmd *command.Command) error {
	media := r.deps.Store.LastMedia(sender)
	if media == nil {
		r.reply(ctx, sender, "I haven't seen an attachment from you in this session.")
		return nil
	}

	name := media.Filename
	if name == "" {
		name = media.MediaID
	}
	r.reply(ctx, sender, fmt.Sprintf("Your last attachment: %s (%s)", name, media.MimeType))
	return nil
}

func (r *Router) handlePoll(ctx context.Context, sender string, cmd *command.Command) error {
	parts := command.SplitQuoted(cmd.Rest())
	if len(parts) < 3 {
		return poll.ErrInvalidPoll
	}

	question, options := parts[0], parts[1:]
	if strings.TrimSpace(question) == "" {
		return poll.ErrInvalidPoll
	}

	p, err := r.deps.Polls.Create(question, options, sender)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Poll %s created: %s\n", p.ID, p.Question)
	for i, opt := range p.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	fmt.Fprintf(&b, "Vote with /vote %s <number>", p.ID)

	r.reply(ctx, sender, b.String())
	return nil
}

func (r *Router) handleVote(ctx context.Context, sender string, cmd *command.Command) error {
	if len(cmd.Args) < 2 {
		r.reply(ctx, sender, "To vote: /vote <poll-id> <option-number>")
		return nil
	}

	choice, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return poll.ErrInvalidOption
	}

	// Users count options from 1, the registry from 0.
	counts, err := r.deps.Polls.Vote(cmd.Args[0], sender, choice-1)
	if err != nil {
		return err
	}

	r.reply(ctx, sender, "Vote counted!\n"+formatTally(counts))
	return nil
}

func (r *Router) handleTally(ctx context.Context, sender string, cmd *command.Command) error {
	if len(cmd.Args) < 1 {
		r.reply(ctx, sender, "Which poll? /tally <poll-id>")
		return nil
	}

	p, err := r.deps.Polls.Get(cmd.Args[0])
	if err != nil {
		return err
	}
	counts, err := r.deps.Polls.Tally(cmd.Args[0])
	if err != nil {
		return err
	}

	r.reply(ctx, sender, fmt.Sprintf("%s\n%s", p.Question, formatTally(counts)))
	return nil
}

func (r *Router) handleInsult(ctx context.Context, sender string, cmd *command.Command) error {
	return r.quip(ctx, sender, cmd, "insult")
}

func (r *Router) handleCompliment(ctx context.Context, sender string, cmd *command.Command) error {
	return r.quip(ctx, sender, cmd, "compliment")
}

// quip generates a one-shot playful line about a target. Insults check the
// target against the protected-class list first; compliments do not.
func (r *Router) quip(ctx context.Context, sender string, cmd *command.Command, kind string) error {
	target := strings.TrimSpace(strings.Join(cmd.Args, " "))
	if target == "" {
		r.reply(ctx, sender, fmt.Sprintf("Tell me who: /%s <name>", kind))
		return nil
	}

	if kind == "insult" && r.deps.Filter.TouchesProtectedClass(target) {
		log.Warn().Str("sender", sender).Msg("Insult target rejected by protected-class filter")
		r.reply(ctx, sender, "I don't make jokes about that. Pick a consenting friend instead.")
		return nil
	}

	messages := []models.Message{
		{Role: models.RoleSystem, Content: "You write short, playful, PG-13 one-liners for a group chat. Reply with a single sentence and nothing else."},
		{Role: models.RoleUser, Content: fmt.Sprintf("Write a playful %s aimed at %s.", kind, target)},
	}

	line, err := r.deps.LLM.GenerateReply(ctx, messages)
	if err != nil {
		return fmt.Errorf("generating %s: %w", kind, err)
	}

	r.reply(ctx, sender, line)
	return nil
}

func (r *Router) handleStats(ctx context.Context, sender string, cmd *command.Command) error {
	uptime := time.Since(r.startedAt).Round(time.Second)
	r.reply(ctx, sender, fmt.Sprintf(
		"Active sessions: %d\nPolls: %d\nUptime: %s",
		r.deps.Store.Count(), r.deps.Polls.Count(), uptime,
	))
	return nil
}

func (r *Router) handleBroadcast(ctx context.Context, sender string, cmd *command.Command) error {
	text := strings.TrimSpace(cmd.Rest())
	if text == "" {
		r.reply(ctx, sender, "Usage: /broadcast <message>")
		return nil
	}

	identities := r.deps.Store.Identities()
	sent := 0
	for _, id := range identities {
		if err := r.deps.Sender.SendText(ctx, id, text); err != nil {
			log.Error().Err(err).Str("to", id).Msg("Broadcast send failed")
			continue
		}
		sent++
	}

	log.Info().Int("sent", sent).Int("total", len(identities)).Str("sender", sender).Msg("Broadcast finished")
	r.reply(ctx, sender, fmt.Sprintf("Broadcast delivered to %d of %d active chats.", sent, len(identities)))
	return nil
}

func formatTally(counts []poll.OptionCount) string {
	var b strings.Builder
	for i, c := range counts {
		fmt.Fprintf(&b, "%d. %s: %d\n", i+1, c.Option, c.Votes)
	}
	return strings.TrimRight(b.String(), "\n")
}
