package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"nkinnov/internal/config"
	"nkinnov/internal/landscape"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if args == nil {
		args = []string{}
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func reportError(w io.Writer, err error) {
	p := newPrinter(w, w)
	var cfgErr *config.ConfigurationError
	var structErr *landscape.StructureError
	switch {
	case errors.As(err, &cfgErr):
		p.failure("invalid case file", err.Error(), "Run `nkinnovctl validate <case-file>` after fixing the reported field.")
	case errors.As(err, &structErr):
		p.failure("invalid dependency matrix", err.Error(), "Each row needs a 1 on the diagonal and exactly K+1 entries marked x.")
	case errors.Is(err, context.Canceled):
		p.failure("interrupted", err.Error(), "")
	default:
		p.failure("nkinnovctl failed", err.Error(), "")
	}
}
