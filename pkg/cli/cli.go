package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Version is set at build time
var Version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// .env is optional; variables already in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Default().Warn("failed to load .env", "error", err)
	}

	cmd := &cli.Command{
		Name:    "donna",
		Usage:   "Personal assistant that keeps notes for you",
		Version: Version,
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			notesCommand(),
			historyCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err, "kind", model.KindOf(err))
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
