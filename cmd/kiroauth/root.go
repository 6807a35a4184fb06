package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waabox/kiroauth/internal/auth"
	"github.com/waabox/kiroauth/internal/config"
)

// Exit codes for scripting.
const (
	exitOK            = 0
	exitError         = 1
	exitReloginNeeded = 2
	exitLoginFailed   = 3
)

// loginFailedError marks errors from the interactive login flow.
type loginFailedError struct {
	err error
}

func (e *loginFailedError) Error() string {
	return "login failed: " + e.err.Error()
}

func (e *loginFailedError) Unwrap() error {
	return e.err
}

type rootOptions struct {
	configPath string
	verbose    bool

	cfg config.Config
	log zerolog.Logger
}

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, auth.ErrRefreshTokenExpired) {
		return exitReloginNeeded
	}
	var loginErr *loginFailedError
	if errors.As(err, &loginErr) {
		return exitLoginFailed
	}
	return exitError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "kiroauth",
		Short: "Log in to Kiro and manage its OAuth tokens",
		Long: `kiroauth signs in to the Kiro auth service through your browser
(PKCE authorization code flow) and prints the resulting tokens as JSON.
It can also exchange a refresh token for a fresh access token.

Tokens are written to stdout and never stored.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}
			opts.log = zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}).
				Level(level).
				With().Timestamp().Logger()
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate(`{{printf "kiroauth version %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "path to the config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests and responses")

	root.AddCommand(
		newLoginCmd(opts),
		newRefreshCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads and validates the config file. Only commands that talk to
// the auth service call it, so `config init --force` can replace a broken file.
func (o *rootOptions) loadConfig() error {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	o.cfg = cfg
	return nil
}

// newClient builds the auth service client from the loaded config.
// A failure here is a configuration error and aborts the command.
func (o *rootOptions) newClient(log zerolog.Logger) (*auth.Client, error) {
	c, err := auth.NewClient(o.cfg.Endpoint, auth.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("building auth service client: %w", err)
	}
	return c, nil
}
