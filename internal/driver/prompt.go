package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrQuit is returned when the operator asks to stop. It unwinds every loop
// and is not a failure.
var ErrQuit = errors.New("quit requested")

const quitToken = "q"

// PromptFunc asks the operator a question and returns the raw answer.
type PromptFunc func(ctx context.Context, message string) (string, error)

type line struct {
	text string
	err  error
}

// TerminalPrompt reads answers line by line from in. End of input counts as
// quit; a cancelled ctx stops waiting for the operator.
func TerminalPrompt(in io.Reader, out io.Writer) PromptFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, message string) (string, error) {
		fmt.Fprint(out, message)
		lines := make(chan line, 1)
		go func() {
			text, err := reader.ReadString('\n')
			lines <- line{text: text, err: err}
		}()

		var l line
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case l = <-lines:
		}
		if l.err != nil {
			if !errors.Is(l.err, io.EOF) {
				return "", l.err
			}
			if strings.TrimSpace(l.text) == "" {
				return "", ErrQuit
			}
		}
		return strings.TrimSpace(l.text), nil
	}
}

// ask normalizes the answer and turns the quit token into ErrQuit.
func ask(ctx context.Context, prompt PromptFunc, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer, err := prompt(ctx, message)
	if err != nil {
		return "", err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == quitToken {
		return "", ErrQuit
	}
	return answer, nil
}
