package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
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
		Name:      "ask",
		Usage:     "Send a single message to Donna and print the reply",
		ArgsUsage: "<message>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("message is required")
			}
			message := strings.Join(c.Args().Slice(), " ")

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

			reply, err := rt.service.Send(ctx, session, message)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", reply.Final.Text)
			return nil
		},
	}
}
