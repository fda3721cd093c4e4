package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

var exitWords = map[string]bool{
	"quit": true,
	"exit": true,
	"bye":  true,
}

// lineReader is the part of readline.Instance the chat loop uses
type lineReader interface {
	Readline() (string, error)
}

// indicator is shown while a turn is running
type indicator interface {
	Start()
	Stop()
}

type sendFunc func(ctx context.Context, text string) (string, error)

func chatCommand() *cli.Command {
	var (
		cfg     config
		session model.SessionIdentity
	)

	var flags []cli.Flag
	flags = append(flags, sessionFlags(&session)...)
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to Donna interactively",
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

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
				return goerr.Wrap(err, "failed to create data directory", goerr.V("path", cfg.dataDir))
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "You: ",
				HistoryFile:     filepath.Join(cfg.dataDir, "chat_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			sp.Suffix = " Donna is thinking..."

			send := func(ctx context.Context, text string) (string, error) {
				reply, err := rt.service.Send(ctx, session, text)
				if err != nil {
					return "", err
				}
				return reply.Final.Text, nil
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat with Donna as %s (thread %s). Type 'quit', 'exit' or 'bye' to leave.\n", session.UserID, session.ThreadID)
			return chatLoop(ctx, rl, sp, send, w)
		},
	}
}

// chatLoop reads user lines until an exit word or EOF. A failed turn is
// reported and the conversation continues.
func chatLoop(ctx context.Context, rl lineReader, progress indicator, send sendFunc, w io.Writer) error {
	logger := logging.From(ctx)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if exitWords[strings.ToLower(text)] {
			break
		}

		progress.Start()
		reply, err := send(ctx, text)
		progress.Stop()

		if err != nil {
			logger.Error("turn failed", "error", err, "kind", model.KindOf(err))
			fmt.Fprintf(w, "Donna: Sorry, something went wrong (%s).\n", model.KindOf(err))
			continue
		}
		fmt.Fprintf(w, "Donna: %s\n", reply)
	}

	fmt.Fprintf(w, "Goodbye!\n")
	return nil
}
