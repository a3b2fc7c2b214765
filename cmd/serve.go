package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/chatrelay/internal/api"
	"github.com/chatrelay/internal/config"
	"github.com/chatrelay/internal/dispatch"
	"github.com/chatrelay/internal/guard"
	"github.com/chatrelay/internal/llm"
	"github.com/chatrelay/internal/logging"
	"github.com/chatrelay/internal/poll"
	"github.com/chatrelay/internal/relay"
	"github.com/chatrelay/internal/retry"
	"github.com/chatrelay/internal/router"
	"github.com/chatrelay/internal/session"
	"github.com/chatrelay/internal/wa"
)

// ServeCommand returns the CLI command that runs the relay server.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook relay server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured webhook port",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

	store := session.NewStore(session.Config{
		SystemPrompt: cfg.Chat.SystemPrompt,
		MaxTurns:     cfg.Chat.MaxTurns,
		TTL:          cfg.SessionTTL(),
	})
	polls := poll.NewRegistry()
	filter := guard.NewFilter(cfg.Moderation.ProhibitedTerms, cfg.Moderation.ProtectedTerms)
	gate := guard.NewGate(cfg.Admin.Numbers)

	connector, err := llm.NewConnector(c.Context, llm.Options{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	retryCfg := retry.CompletionConfig()
	if cfg.AI.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.AI.MaxRetries
	}
	model := llm.NewResilientClient(connector, retryCfg)

	sender := wa.NewClient(wa.Config{
		BaseURL:           cfg.WhatsApp.BaseURL,
		PhoneNumberID:     cfg.WhatsApp.PhoneNumberID,
		AccessToken:       cfg.WhatsApp.AccessToken,
		RequestsPerSecond: cfg.WhatsApp.RequestsPerSecond,
		Burst:             cfg.WhatsApp.Burst,
	})

	commands := router.New(router.Deps{
		Store:  store,
		Polls:  polls,
		Filter: filter,
		Gate:   gate,
		LLM:    model,
		Sender: sender,
	})

	dispatcher := dispatch.NewDispatcher(8)
	engine := relay.NewEngine(relay.Deps{
		Store:      store,
		Router:     commands,
		LLM:        model,
		Sender:     sender,
		Dispatcher: dispatcher,
		Timeout:    cfg.CompletionTimeout(),
	})

	sweeper := session.NewSweeper(store, cfg.SweepInterval())
	sweeper.Start()

	server := api.NewServer(api.Config{
		Port:        cfg.Server.Port,
		VerifyToken: cfg.Server.VerifyToken,
		AppSecret:   cfg.Server.AppSecret,
	}, engine)

	log.Info().
		Str("provider", string(connector.GetProvider())).
		Str("model", connector.GetModel()).
		Msg("Starting ChatRelay")

	err = server.Start()

	// Intake has stopped; finish in-flight replies before exiting.
	dispatcher.Stop()
	sweeper.Stop()

	return err
}
