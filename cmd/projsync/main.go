package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"projsync/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	return runContext(context.Background(), args, in, out, errOut)
}

func runContext(ctx context.Context, args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		return handleError(err, errOut)
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, version.Get().Line("projsync"))
		return exitCodeSuccess
	}

	if cfg.Command == commandInit {
		return runInit(cfg, out, errOut)
	}

	application, err := newApp(cfg, in, out, errOut)
	if err != nil {
		return handleError(err, errOut)
	}
	code := application.dispatch(ctx)
	if err := application.close(); err != nil {
		fmt.Fprintln(errOut, err)
		if code == exitCodeSuccess {
			code = exitCodeFailed
		}
	}
	return code
}

func handleError(err error, errOut io.Writer) int {
	var cliErr *cliError
	if errors.As(err, &cliErr) {
		fmt.Fprintln(errOut, cliErr.Message)
		return cliErr.Code
	}
	fmt.Fprintln(errOut, err)
	return exitCodeUsage
}
