package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	authclient "github.com/versini-org/auth-client"
	"github.com/versini-org/auth-client/middleware"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newLoginCmd(opts *options) *cobra.Command {
	var (
		username string
		password string
		grant    string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session tokens",
		Long: `Log in with the PASSWORD grant or the CODE grant (PKCE). The password is read
from --password, then AUTHCLIENT_PASSWORD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if password == "" {
				password = os.Getenv("AUTHCLIENT_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("username and password are required")
			}

			m, done, err := opts.session(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			user, err := m.LoginWithResult(ctx, username, password, authclient.GrantType(strings.ToUpper(grant)))
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			return printResult(cmd.OutOrStdout(), opts.jsonOut, user, fmt.Sprintf("logged in as %s (%s)", user.Username, user.UserID))
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (overrides AUTHCLIENT_PASSWORD)")
	cmd.Flags().StringVar(&grant, "grant", string(authclient.GrantCode), "grant type: PASSWORD or CODE")
	return cmd
}

func newTokenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it when needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			m, done, err := opts.session(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			token, err := m.AccessToken(ctx)
			if err != nil {
				return fmt.Errorf("no access token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

type whoamiOutput struct {
	Phase        string `json:"phase"`
	UserID       string `json:"userId,omitempty"`
	Username     string `json:"username,omitempty"`
	LogoutReason string `json:"logoutReason,omitempty"`
	Remote       string `json:"remote,omitempty"`
}

func newWhoamiCmd(opts *options) *cobra.Command {
	var checkRemote bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the restored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			m, done, err := opts.session(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			out := describeSession(m.State())
			if checkRemote && m.State().Authenticated() {
				name, err := remoteWhoami(ctx, middleware.NewClient(m), opts.serverURL)
				if err != nil {
					return err
				}
				out.Remote = name
			}

			human := out.Phase
			if out.Username != "" {
				human = fmt.Sprintf("%s as %s (%s)", out.Phase, out.Username, out.UserID)
			}
			if out.LogoutReason != "" {
				human += ": " + out.LogoutReason
			}
			if out.Remote != "" {
				human += "; server sees " + out.Remote
			}
			return printResult(cmd.OutOrStdout(), opts.jsonOut, out, human)
		},
	}
	cmd.Flags().BoolVar(&checkRemote, "remote", false, "also ask the server who the access token belongs to")
	return cmd
}

func describeSession(s authclient.Session) whoamiOutput {
	out := whoamiOutput{Phase: s.Phase.String(), LogoutReason: s.LogoutReason}
	if s.User != nil {
		out.UserID = s.User.UserID
		out.Username = s.User.Username
	}
	return out
}

func remoteWhoami(ctx context.Context, client *http.Client, serverURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+mePath, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server answered %s", resp.Status)
	}
	var body meResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return "", err
	}
	return body.Username, nil
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and notify the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			m, done, err := opts.session(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			m.Logout(ctx)
			return printResult(cmd.OutOrStdout(), opts.jsonOut, describeSession(m.State()), "logged out")
		},
	}
}

func printResult(w io.Writer, asJSON bool, v any, human string) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, human)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
