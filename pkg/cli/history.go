package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/donna/pkg/agent/notes"
	"github.com/m-mizutani/donna/pkg/agent/supervisor"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg       config
		session   model.SessionIdentity
		agentName string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent whose thread to show (supervisor, notes)",
			Value:       supervisor.Name,
			Destination: &agentName,
		},
	}
	flags = append(flags, sessionFlags(&session)...)
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "Show the checkpointed conversation of a thread",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
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

			var (
				store interfaces.CheckpointStore
				key   model.ThreadKey
			)
			switch agentName {
			case supervisor.Name:
				store, key = b.supervisorCheckpoints, model.SupervisorThread(session)
			case notes.Name:
				store, key = b.notesCheckpoints, model.NotesThread(session)
			default:
				return goerr.New("unknown agent", goerr.V("agent", agentName),
					goerr.V("supported", []string{supervisor.Name, notes.Name}))
			}

			cp, err := store.Load(ctx, key)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if cp == nil {
				fmt.Fprintf(w, "No conversation history found for %s\n", key)
				return nil
			}
			printCheckpoint(w, cp)
			return nil
		},
	}
}

func printCheckpoint(w io.Writer, cp *model.Checkpoint) {
	fmt.Fprintf(w, "thread %s  version %d  turns %d  updated %s\n",
		cp.Key(), cp.Version, cp.Turns, cp.UpdatedAt.Format("2006-01-02 15:04:05"))

	for _, msg := range cp.Messages {
		switch {
		case msg.ToolResult != nil:
			status := "ok"
			if msg.ToolResult.IsError {
				status = "error"
			}
			fmt.Fprintf(w, "[%s] %s (%s): %s\n", msg.Role, msg.ToolResult.Name, status, oneLine(msg.ToolResult.Text))
		case len(msg.ToolCalls) > 0:
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(w, "[%s] call %s %v\n", msg.Role, call.Name, call.Args)
			}
			if msg.Text != "" {
				fmt.Fprintf(w, "[%s] %s\n", msg.Role, oneLine(msg.Text))
			}
		default:
			fmt.Fprintf(w, "[%s] %s\n", msg.Role, oneLine(msg.Text))
		}
	}
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}
