package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/polzovatel/connect-clicker/internal/config"
	"github.com/polzovatel/connect-clicker/internal/driver"
)

// errAborted marks a run stopped by a fault (navigation, rollback, stuck modal).
var errAborted = errors.New("run aborted")

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCmd(in, out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if code := exitCode(err); code != 0 {
		fmt.Fprintln(errOut, "Error:", err)
		return code
	}
	return 0
}

// exitCode maps a run result to the process status: 0 for completion, quit
// or interrupt, 2 for invalid arguments, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil,
		errors.Is(err, driver.ErrQuit),
		errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, config.ErrInvalid):
		return 2
	default:
		return 1
	}
}
