package cli

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type scriptedReader struct {
	lines []string
	errs  []error
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line, err := r.lines[0], r.errs[0]
	r.lines, r.errs = r.lines[1:], r.errs[1:]
	return line, err
}

func lines(ls ...string) *scriptedReader {
	return &scriptedReader{lines: ls, errs: make([]error, len(ls))}
}

type countingIndicator struct{ starts, stops int }

func (c *countingIndicator) Start() { c.starts++ }
func (c *countingIndicator) Stop()  { c.stops++ }

func echoSend(sent *[]string) sendFunc {
	return func(ctx context.Context, text string) (string, error) {
		*sent = append(*sent, text)
		return "echo " + text, nil
	}
}

func TestChatLoop(t *testing.T) {
	t.Run("exit words end the session", func(t *testing.T) {
		for _, word := range []string{"quit", "exit", "bye", "  BYE "} {
			var sent []string
			var out bytes.Buffer
			progress := &countingIndicator{}

			err := chatLoop(context.Background(), lines("hello", "", word, "never sent"), progress, echoSend(&sent), &out)
			gt.NoError(t, err)
			gt.A(t, sent).Length(1)
			gt.Equal(t, sent[0], "hello")
			gt.Equal(t, progress.starts, 1)
			gt.Equal(t, progress.stops, 1)
			gt.S(t, out.String()).Contains("Donna: echo hello")
			gt.S(t, out.String()).Contains("Goodbye!")
		}
	})

	t.Run("eof ends the session", func(t *testing.T) {
		var sent []string
		var out bytes.Buffer
		err := chatLoop(context.Background(), lines("one", "two"), &countingIndicator{}, echoSend(&sent), &out)
		gt.NoError(t, err)
		gt.A(t, sent).Length(2)
	})

	t.Run("interrupt on empty line ends the session", func(t *testing.T) {
		var sent []string
		reader := &scriptedReader{
			lines: []string{"partial", "", "never"},
			errs:  []error{readline.ErrInterrupt, readline.ErrInterrupt, nil},
		}
		err := chatLoop(context.Background(), reader, &countingIndicator{}, echoSend(&sent), io.Discard)
		gt.NoError(t, err)
		gt.A(t, sent).Length(0)
	})

	t.Run("failed turn keeps the session", func(t *testing.T) {
		var out bytes.Buffer
		calls := 0
		send := func(ctx context.Context, text string) (string, error) {
			calls++
			if calls == 1 {
				return "", goerr.New("gateway down", goerr.T(model.ErrTagModelUnavailable))
			}
			return "ok", nil
		}

		err := chatLoop(context.Background(), lines("first", "second"), &countingIndicator{}, send, &out)
		gt.NoError(t, err)
		gt.Equal(t, calls, 2)
		gt.S(t, out.String()).Contains("model_unavailable")
		gt.S(t, out.String()).Contains("Donna: ok")
	})
}
