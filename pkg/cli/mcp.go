package cli

import (
	"context"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/service/mcp"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg    config
		userID model.UserID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User ID every tool call acts as",
			Value:       "005",
			Sources:     cli.EnvVars("DONNA_USER_ID"),
			Destination: (*string)(&userID),
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the note tools to MCP clients over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			session := model.SessionIdentity{UserID: userID, ThreadID: mcp.DefaultThreadID}
			if err := session.Validate(); err != nil {
				return err
			}

			ctx, flush, err := cfg.setup(ctx)
			if err != nil {
				return err
			}
			defer flush()

			prof, err := loadProfile(cfg.profilePath)
			if err != nil {
				return err
			}
			gemini, err := cfg.newGemini(ctx, prof.Breaker)
			if err != nil {
				return err
			}

			b, err := cfg.newBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			tools, err := cfg.newNoteTools(ctx, b, gemini)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(tools, session, mcp.WithImplementation(c.Root().Name, c.Root().Version))
			if err != nil {
				return err
			}

			logging.From(ctx).Info("serving note tools over stdio", "user_id", userID)
			return server.Run(ctx)
		},
	}
}
