package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// notesCommand inspects a user's notes through the same tools the notes
// agent uses, so ownership rules apply here too.
func notesCommand() *cli.Command {
	return &cli.Command{
		Name:  "notes",
		Usage: "Inspect and manage stored notes",
		Commands: []*cli.Command{
			notesListCommand(),
			notesSearchCommand(),
			notesDeleteCommand(),
		},
	}
}

// noteToolCall runs one note tool for session and prints its output
func noteToolCall(ctx context.Context, cfg *config, session model.SessionIdentity, needEmbedding bool, c *cli.Command, fc genai.FunctionCall) error {
	if err := session.Validate(); err != nil {
		return err
	}

	ctx, flush, err := cfg.setup(ctx)
	if err != nil {
		return err
	}
	defer flush()

	b, err := cfg.newBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	var embedder interfaces.Embedder
	if needEmbedding {
		prof, err := loadProfile(cfg.profilePath)
		if err != nil {
			return err
		}
		if embedder, err = cfg.newGemini(ctx, prof.Breaker); err != nil {
			return err
		}
	}

	tools, err := cfg.newNoteTools(ctx, b, embedder)
	if err != nil {
		return err
	}
	registry, err := tool.New(tools...)
	if err != nil {
		return err
	}

	output, err := registry.Execute(ctx, tool.Env{Session: session}, fc)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.Root().Writer, "%s\n", output)
	return nil
}

func notesFlags(cfg *config, session *model.SessionIdentity) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, sessionFlags(session)...)
	flags = append(flags, loggingFlags(cfg)...)
	flags = append(flags, backendFlags(cfg)...)
	flags = append(flags, agentFlags(cfg)...)
	return flags
}

func notesListCommand() *cli.Command {
	var (
		cfg     config
		session model.SessionIdentity
	)

	return &cli.Command{
		Name:  "list",
		Usage: "List all notes of a user, oldest first",
		Flags: notesFlags(&cfg, &session),
		Action: func(ctx context.Context, c *cli.Command) error {
			return noteToolCall(ctx, &cfg, session, false, c, genai.FunctionCall{
				Name: "get_all_notes",
				Args: map[string]any{},
			})
		},
	}
}

func notesSearchCommand() *cli.Command {
	var (
		cfg     config
		session model.SessionIdentity
		limit   int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of notes to return",
			Value:       3,
			Destination: &limit,
		},
	}
	flags = append(flags, notesFlags(&cfg, &session)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search a user's notes by similarity",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("query is required")
			}
			return noteToolCall(ctx, &cfg, session, true, c, genai.FunctionCall{
				Name: "read_note",
				Args: map[string]any{
					"query": c.Args().Get(0),
					"k":     limit,
				},
			})
		},
	}
}

func notesDeleteCommand() *cli.Command {
	var (
		cfg     config
		session model.SessionIdentity
	)

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a note owned by the user",
		ArgsUsage: "<note-id>",
		Flags:     notesFlags(&cfg, &session),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("note-id is required")
			}
			return noteToolCall(ctx, &cfg, session, false, c, genai.FunctionCall{
				Name: "delete_note",
				Args: map[string]any{"note_id": c.Args().Get(0)},
			})
		},
	}
}
