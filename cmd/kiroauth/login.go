package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/waabox/kiroauth/internal/auth"
	"github.com/waabox/kiroauth/internal/callback"
	"github.com/waabox/kiroauth/internal/pkce"
	"github.com/waabox/kiroauth/internal/tui"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		provider       string
		port           int
		invitationCode string
		noTUI          bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser and print the tokens",
		Long: `Sign in to Kiro through the default browser.

A local server on 127.0.0.1 receives the redirect, then the authorization
code is exchanged for tokens, which are printed to stdout as JSON.

Examples:
  kiroauth login                         # Google account
  kiroauth login --provider Github       # GitHub account
  kiroauth login --port 3128 > token.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfig(); err != nil {
				return err
			}
			if provider == "" {
				provider = opts.cfg.ProviderOrDefault()
			}
			if !cmd.Flags().Changed("port") {
				port = opts.cfg.CallbackPort
			}
			if invitationCode == "" {
				invitationCode = opts.cfg.InvitationCode
			}

			interactive := !noTUI && !opts.verbose && isTerminal(cmd.ErrOrStderr())

			clientLog := opts.log
			if interactive {
				// The progress view owns the terminal.
				clientLog = zerolog.Nop()
			}
			client, err := opts.newClient(clientLog)
			if err != nil {
				return err
			}

			flow := loginFlow{
				client:         client,
				server:         callback.NewServer(port),
				provider:       provider,
				invitationCode: invitationCode,
			}

			var token auth.SocialToken
			if interactive {
				token, err = runInteractiveLogin(cmd.Context(), flow, cmd.ErrOrStderr())
			} else {
				flow.report = logReporter(opts.log, cmd.ErrOrStderr())
				token, err = flow.run(cmd.Context())
			}
			if err != nil {
				return err
			}
			return writeToken(cmd.OutOrStdout(), provider, token, time.Now())
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "identity provider: Google or Github (default from config, else Google)")
	cmd.Flags().IntVar(&port, "port", 0, "callback port on 127.0.0.1 (0 picks a free port)")
	cmd.Flags().StringVar(&invitationCode, "invitation-code", "", "invitation code sent with the token exchange")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "print progress as log lines instead of the interactive view")
	return cmd
}

// loginFlow runs one browser login from PKCE generation to token exchange.
type loginFlow struct {
	client         *auth.Client
	server         *callback.Server
	provider       string
	invitationCode string
	report         func(tea.Msg)
}

func (f loginFlow) run(ctx context.Context) (auth.SocialToken, error) {
	report := f.report
	if report == nil {
		report = func(tea.Msg) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	challenge := pkce.Generate()

	redirectURI, err := f.server.Start(ctx)
	if err != nil {
		return auth.SocialToken{}, &loginFailedError{err: err}
	}
	defer f.server.Stop()

	report(tui.StepMsg{Step: tui.StepOpeningBrowser})
	if err := f.client.Login(f.provider, redirectURI, challenge.Challenge, challenge.State); err != nil {
		return auth.SocialToken{}, &loginFailedError{err: err}
	}

	report(tui.StepMsg{
		Step:   tui.StepWaitingForRedirect,
		Detail: f.client.LoginURL(f.provider, redirectURI, challenge.Challenge, challenge.State),
	})
	waitCtx, waitCancel := context.WithTimeout(ctx, callback.Timeout)
	defer waitCancel()
	result, err := f.server.Wait(waitCtx)
	if err != nil {
		return auth.SocialToken{}, &loginFailedError{err: fmt.Errorf("waiting for authorization: %w", err)}
	}
	if err := result.Err(); err != nil {
		return auth.SocialToken{}, &loginFailedError{err: err}
	}
	if result.State != challenge.State {
		return auth.SocialToken{}, &loginFailedError{err: errors.New("state mismatch in authorization redirect")}
	}
	if result.Code == "" {
		return auth.SocialToken{}, &loginFailedError{err: errors.New("authorization redirect carried no code")}
	}

	report(tui.StepMsg{Step: tui.StepExchangingCode})
	req := auth.TokenExchangeRequest{
		Code:         result.Code,
		CodeVerifier: challenge.Verifier,
		RedirectURI:  redirectURI,
	}
	if f.invitationCode != "" {
		req.InvitationCode = &f.invitationCode
	}
	token, err := auth.CreateToken[auth.SocialToken](ctx, f.client, req)
	if err != nil {
		return auth.SocialToken{}, &loginFailedError{err: err}
	}
	return token, nil
}

// runInteractiveLogin runs the flow next to the progress view. Quitting the
// view cancels the flow.
func runInteractiveLogin(ctx context.Context, flow loginFlow, out io.Writer) (auth.SocialToken, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewLoginModel(flow.provider, time.Now())
	model.Cancel = cancel
	program := tea.NewProgram(model, tea.WithOutput(out))
	flow.report = program.Send

	var token auth.SocialToken
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tok, err := flow.run(gctx)
		program.Send(tui.LoginDoneMsg{Token: tok, Err: err})
		token = tok
		return err
	})
	g.Go(func() error {
		final, err := program.Run()
		if err != nil {
			cancel()
			return fmt.Errorf("running progress view: %w", err)
		}
		if m, ok := final.(tui.LoginModel); ok && m.Err() != nil {
			cancel()
			return m.Err()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return auth.SocialToken{}, err
	}
	return token, nil
}

// logReporter prints flow progress when the interactive view is off.
// Prompts go to stderr so stdout stays clean for the token JSON.
func logReporter(log zerolog.Logger, stderr io.Writer) func(tea.Msg) {
	return func(msg tea.Msg) {
		step, ok := msg.(tui.StepMsg)
		if !ok {
			return
		}
		switch step.Step {
		case tui.StepOpeningBrowser:
			log.Info().Msg("opening browser")
		case tui.StepWaitingForRedirect:
			fmt.Fprintf(stderr, "If the browser did not open, visit:\n  %s\n", step.Detail)
			log.Info().Msg("waiting for authorization")
		case tui.StepExchangingCode:
			log.Info().Msg("exchanging authorization code")
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
