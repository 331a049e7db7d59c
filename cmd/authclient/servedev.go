package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/versini-org/auth-client/jwt"
	"github.com/versini-org/auth-client/middleware"
	"github.com/versini-org/auth-client/remote/devserver"
)

const mePath = "/me"

type meResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type devUser struct {
	username, password, userID string
}

// parseDevUser reads "username:password:userID".
func parseDevUser(raw string) (devUser, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return devUser{}, fmt.Errorf("invalid user %q, want username:password:userID", raw)
	}
	return devUser{username: parts[0], password: parts[1], userID: parts[2]}, nil
}

func newServeDevCmd(opts *options) *cobra.Command {
	var (
		addr      string
		users     []string
		accessTTL time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run an in-memory authentication service for local development",
		Long: `serve-dev answers the preauth, token, refresh and logout endpoints with HS256
tokens signed by AUTHCLIENT_JWT_SECRET, plus a bearer-protected /me endpoint.
State is lost on exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			handler, err := newDevHandler(opts, users, accessTTL, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			fmt.Fprintf(cmd.OutOrStdout(), "dev auth service listening on %s\n", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringArrayVar(&users, "user", []string{"alice:password:u1"}, "user as username:password:userID (repeatable)")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 5*time.Minute, "access token lifetime")
	return cmd
}

func newDevHandler(opts *options, users []string, accessTTL time.Duration, logs io.Writer) (http.Handler, error) {
	secret := []byte(opts.jwtSecret)
	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{SigningMethod: jwt.MethodHS256, PrivateKey: secret})
	if err != nil {
		return nil, err
	}
	verifier, err := jwt.NewVerifier(jwt.Config{SigningMethod: jwt.MethodHS256, Key: secret})
	if err != nil {
		return nil, err
	}

	dev, err := devserver.New(devserver.Config{
		Issuer:    issuer,
		AccessTTL: accessTTL,
		Logger:    opts.logger(logs),
	})
	if err != nil {
		return nil, err
	}
	for _, raw := range users {
		u, err := parseDevUser(raw)
		if err != nil {
			return nil, err
		}
		dev.AddUser(u.username, u.password, u.userID)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.With(middleware.Guard(verifier)).Get(mePath, func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.ClaimsFromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(meResponse{UserID: claims.UserID(), Username: claims.Username})
	})
	r.Mount("/", dev.Routes())
	return r, nil
}
