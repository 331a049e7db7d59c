package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	authclient "github.com/versini-org/auth-client"
	"github.com/versini-org/auth-client/remote"
	"github.com/versini-org/auth-client/store"
	"github.com/versini-org/auth-client/store/keyringstore"
	"github.com/versini-org/auth-client/store/redisstore"
	"github.com/versini-org/auth-client/store/sqlitestore"
)

const (
	defaultServerURL = "http://127.0.0.1:8787"
	defaultClientID  = "authclient-cli"
	// defaultDevSecret is shared by serve-dev and the CLI so they work together
	// out of the box. Never use it outside development.
	defaultDevSecret = "authclient-development-secret-0123456789"
)

// options holds global settings. Flags win over environment variables, which
// win over defaults.
type options struct {
	envFile   string
	serverURL string
	clientID  string
	storeKind string
	storePath string
	redisAddr string
	jwtSecret string
	verbose   bool
	jsonOut   bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "authclient",
		Short: "Manage a client authentication session from the command line",
		Long: `authclient logs in against an authentication service, keeps the resulting
tokens in a local store and hands out fresh access tokens.

Environment Variables:
  AUTHCLIENT_SERVER_URL  Authentication service base URL (default: ` + defaultServerURL + `)
  AUTHCLIENT_CLIENT_ID   Client identifier (default: ` + defaultClientID + `)
  AUTHCLIENT_STORE       Token store: sqlite, keyring or redis (default: sqlite)
  AUTHCLIENT_STORE_PATH  SQLite database path
  AUTHCLIENT_REDIS_ADDR  Redis address for the redis store
  AUTHCLIENT_JWT_SECRET  HS256 secret used to verify tokens`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.loadEnv()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load when present")
	flags.StringVar(&opts.serverURL, "server", "", "authentication service base URL (overrides AUTHCLIENT_SERVER_URL)")
	flags.StringVar(&opts.clientID, "client-id", "", "client identifier (overrides AUTHCLIENT_CLIENT_ID)")
	flags.StringVar(&opts.storeKind, "store", "", "token store: sqlite, keyring or redis (overrides AUTHCLIENT_STORE)")
	flags.StringVar(&opts.storePath, "store-path", "", "SQLite database path (overrides AUTHCLIENT_STORE_PATH)")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "Redis address (overrides AUTHCLIENT_REDIS_ADDR)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log session transitions to stderr")
	flags.BoolVar(&opts.jsonOut, "json", false, "output JSON instead of human-readable text")

	root.AddCommand(
		newLoginCmd(opts),
		newTokenCmd(opts),
		newWhoamiCmd(opts),
		newLogoutCmd(opts),
		newServeDevCmd(opts),
		newStressCmd(opts),
	)
	return root
}

// loadEnv reads the dotenv file, if any, and fills unset options from the
// environment. Variables already set in the process environment are kept.
func (o *options) loadEnv() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	o.serverURL = firstNonEmpty(o.serverURL, os.Getenv("AUTHCLIENT_SERVER_URL"), defaultServerURL)
	o.clientID = firstNonEmpty(o.clientID, os.Getenv("AUTHCLIENT_CLIENT_ID"), defaultClientID)
	o.storeKind = strings.ToLower(firstNonEmpty(o.storeKind, os.Getenv("AUTHCLIENT_STORE"), "sqlite"))
	o.storePath = firstNonEmpty(o.storePath, os.Getenv("AUTHCLIENT_STORE_PATH"), defaultStorePath())
	o.redisAddr = firstNonEmpty(o.redisAddr, os.Getenv("AUTHCLIENT_REDIS_ADDR"), "127.0.0.1:6379")
	o.jwtSecret = firstNonEmpty(o.jwtSecret, os.Getenv("AUTHCLIENT_JWT_SECRET"), defaultDevSecret)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authclient.db"
	}
	return filepath.Join(dir, "authclient", "tokens.db")
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openBackend opens the configured token store. The returned func releases it.
func (o *options) openBackend(ctx context.Context) (store.Backend, func(), error) {
	switch o.storeKind {
	case "sqlite":
		if dir := filepath.Dir(o.storePath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		b, err := sqlitestore.Open(ctx, o.storePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case "keyring":
		return keyringstore.New(keyringstore.DefaultService), func() {}, nil
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{o.redisAddr}})
		b := redisstore.New(client, 0)
		if _, err := b.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return b, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want sqlite, keyring or redis)", o.storeKind)
	}
}

func (o *options) config() authclient.Config {
	cfg := authclient.DefaultConfig()
	cfg.ClientID = o.clientID
	cfg.SessionExpiration = "24h"
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.VerifyKey = []byte(o.jwtSecret)
	return cfg
}

// session builds and bootstraps a Manager. The returned func closes it and the
// backend.
func (o *options) session(ctx context.Context, stderr io.Writer) (*authclient.Manager, func(), error) {
	backend, closeBackend, err := o.openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := remote.NewHTTPClient(o.serverURL)
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	m, err := authclient.New().
		WithConfig(o.config()).
		WithStore(backend).
		WithService(svc).
		WithLogger(o.logger(stderr)).
		Build()
	if err != nil {
		closeBackend()
		return nil, nil, err
	}

	m.Bootstrap(ctx)
	return m, func() {
		m.Close()
		closeBackend()
	}, nil
}
