package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/crimson-sun/vidstat/internal/app"
	"github.com/crimson-sun/vidstat/internal/config"
	"github.com/crimson-sun/vidstat/internal/logging"
)

const usage = `usage: vidstat [flags] <command> [args]

commands:
  ingest [--entity name]...     fetch media snapshots and new events/visitors
  transform                     rebuild warehouse tables from raw blobs
  watermark get <entity>        print the stored watermark

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	flags := pflag.NewFlagSet("vidstat", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	logLevel := flags.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	jsonLogs := flags.Bool("json-logs", logging.InLambda(), "emit JSON logs on stderr")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	logging.Init(*jsonLogs, logging.ParseLevel(*logLevel))

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(stderr, "\nreceived %v, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "vidstat: %v\n", err)
		return 1
	}

	cmd, rest := flags.Arg(0), flags.Args()[1:]
	switch cmd {
	case "ingest":
		err = ingest(ctx, a, rest, stdout, stderr)
	case "transform":
		err = transform(ctx, a, stdout)
	case "watermark":
		err = watermarkCmd(ctx, a, rest, stdout)
	default:
		flags.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "vidstat %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func ingest(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("ingest", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	entities := flags.StringSlice("entity", nil, "incremental entity to fetch (repeatable); default all")
	if err := flags.Parse(args); err != nil {
		return err
	}

	result, err := a.Ingest(ctx, *entities...)
	if encErr := writeJSON(stdout, struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}{result.Status, result.Timestamp}); encErr != nil {
		return encErr
	}
	return err
}

func transform(ctx context.Context, a *app.App, stdout io.Writer) error {
	report, err := a.Transform(ctx)
	if err != nil {
		return err
	}
	return writeJSON(stdout, report)
}

func watermarkCmd(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("expected get")
	}
	switch args[0] {
	case "get":
		if len(args) != 2 {
			return errors.New("usage: watermark get <entity>")
		}
		ts, found, err := a.Watermark.Get(ctx, args[1])
		if err != nil {
			return err
		}
		return writeJSON(stdout, map[string]any{"entity": args[1], "watermark": ts, "found": found})
	default:
		return fmt.Errorf("unknown watermark command %q", args[0])
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
