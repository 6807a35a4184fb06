package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/waabox/kiroauth/internal/auth"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "refresh [refresh-token]",
		Short: "Exchange a refresh token for new tokens",
		Long: `Exchange a refresh token for a new access token and print the result as JSON.

Exits with code 2 when the refresh token is expired or invalid; run
"kiroauth login" again in that case.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refreshToken, err := readRefreshToken(args, fromStdin, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if err := opts.loadConfig(); err != nil {
				return err
			}
			client, err := opts.newClient(opts.log)
			if err != nil {
				return err
			}

			token, err := auth.RefreshToken[auth.SocialToken](cmd.Context(), client, refreshToken)
			if errors.Is(err, auth.ErrRefreshTokenExpired) {
				return fmt.Errorf("%w: run `kiroauth login` again", err)
			}
			if err != nil {
				return err
			}
			return writeToken(cmd.OutOrStdout(), "", token, time.Now())
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the refresh token from stdin")
	return cmd
}

func readRefreshToken(args []string, fromStdin bool, in io.Reader) (string, error) {
	switch {
	case fromStdin && len(args) > 0:
		return "", errors.New("pass the refresh token either as an argument or with --stdin, not both")
	case fromStdin:
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading refresh token: %w", err)
		}
		token := strings.TrimSpace(line)
		if token == "" {
			return "", errors.New("no refresh token on stdin")
		}
		return token, nil
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		return strings.TrimSpace(args[0]), nil
	default:
		return "", errors.New("refresh token required")
	}
}

// tokenOutput is the JSON printed for a token.
type tokenOutput struct {
	auth.SocialToken
	Provider  string `json:"provider,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func writeToken(w io.Writer, provider string, token auth.SocialToken, now time.Time) error {
	out := tokenOutput{SocialToken: token, Provider: provider}
	if exp := token.ExpiresAt(now); !exp.IsZero() {
		out.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
