package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	authclient "github.com/versini-org/auth-client"
	"github.com/versini-org/auth-client/jwt"
	promexport "github.com/versini-org/auth-client/metrics/export/prometheus"
	"github.com/versini-org/auth-client/remote/devserver"
	"github.com/versini-org/auth-client/store"
	"github.com/versini-org/auth-client/store/redisstore"
)

type stressConfig struct {
	callers     int
	rounds      int
	redisAddr   string
	clientID    string
	secret      string
	showMetrics bool
}

type stressReport struct {
	Rounds       int           `json:"rounds"`
	Calls        int           `json:"calls"`
	Failures     int64         `json:"failures"`
	Mismatches   int64         `json:"mismatches"`
	RefreshCalls int64         `json:"refreshCalls"`
	Total        time.Duration `json:"total"`
	P50          time.Duration `json:"p50"`
	P95          time.Duration `json:"p95"`
	P99          time.Duration `json:"p99"`
}

func newStressCmd(opts *options) *cobra.Command {
	cfg := stressConfig{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer GetAccessToken concurrently and check a single refresh per expiry",
		Long: `stress runs an in-process authentication service and a Redis token store
(embedded miniredis unless --redis-addr is set). Each round expires the access
token and lets --callers goroutines ask for one at once. Every round must cost
exactly one refresh call and hand every caller the same token.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg.clientID = opts.clientID
			cfg.secret = opts.jwtSecret
			if cfg.callers <= 0 || cfg.rounds <= 0 {
				return fmt.Errorf("callers and rounds must be > 0")
			}

			report, err := runStress(ctx, cfg, opts.logger(cmd.ErrOrStderr()), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), opts.jsonOut, report, report.String()); err != nil {
				return err
			}
			if report.Failures > 0 || report.Mismatches > 0 || report.RefreshCalls != int64(report.Rounds) {
				return fmt.Errorf("stress check failed: %d refresh calls for %d rounds, %d failures, %d mismatches",
					report.RefreshCalls, report.Rounds, report.Failures, report.Mismatches)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.callers, "callers", 256, "concurrent GetAccessToken callers per round")
	cmd.Flags().IntVar(&cfg.rounds, "rounds", 20, "number of forced expiries")
	cmd.Flags().StringVar(&cfg.redisAddr, "stress-redis-addr", "", "Redis address; empty starts an embedded miniredis")
	cmd.Flags().BoolVar(&cfg.showMetrics, "metrics", false, "print the Manager metrics in Prometheus text format")
	return cmd
}

func runStress(ctx context.Context, cfg stressConfig, logger *slog.Logger, out io.Writer) (stressReport, error) {
	var (
		client  redis.UniversalClient
		cleanup func()
	)
	if cfg.redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return stressReport{}, fmt.Errorf("start miniredis: %w", err)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.redisAddr}})
		cleanup = func() { _ = client.Close() }
	}
	defer cleanup()

	secret := []byte(cfg.secret)
	issuer, err := jwt.NewIssuer(jwt.IssuerConfig{SigningMethod: jwt.MethodHS256, PrivateKey: secret})
	if err != nil {
		return stressReport{}, err
	}
	dev, err := devserver.New(devserver.Config{Issuer: issuer, Logger: logger})
	if err != nil {
		return stressReport{}, err
	}
	dev.AddUser("stress", "stress-password", "stress-user")

	backend := redisstore.New(client, 0)
	mcfg := authclient.DefaultConfig()
	mcfg.ClientID = cfg.clientID
	mcfg.JWT.SigningMethod = "hs256"
	mcfg.JWT.VerifyKey = secret

	m, err := authclient.New().
		WithConfig(mcfg).
		WithStore(backend).
		WithService(dev).
		WithLogger(logger).
		Build()
	if err != nil {
		return stressReport{}, err
	}
	defer m.Close()

	tokens, err := store.New(backend, mcfg.Store.Prefix, mcfg.ClientID)
	if err != nil {
		return stressReport{}, err
	}

	m.Bootstrap(ctx)
	if _, err := m.LoginWithResult(ctx, "stress", "stress-password", authclient.GrantPassword); err != nil {
		return stressReport{}, fmt.Errorf("login: %w", err)
	}

	var (
		failures   int64
		mismatches int64
		latencies  = make([]time.Duration, 0, cfg.callers*cfg.rounds)
		mu         sync.Mutex
	)
	start := time.Now()
	for round := 0; round < cfg.rounds; round++ {
		if err := tokens.Set(ctx, store.FieldAccessToken, "expired"); err != nil {
			return stressReport{}, fmt.Errorf("expire access token: %w", err)
		}

		results := make([]string, cfg.callers)
		var wg sync.WaitGroup
		for c := 0; c < cfg.callers; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				t0 := time.Now()
				results[c] = m.GetAccessToken(ctx)
				d := time.Since(t0)
				if results[c] == "" {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}(c)
		}
		wg.Wait()

		for _, tok := range results[1:] {
			if tok != results[0] {
				atomic.AddInt64(&mismatches, 1)
			}
		}
		if atomic.LoadInt64(&failures) > 0 {
			logger.Warn("authclient: stress round lost the session", "round", round)
			break
		}
	}
	total := time.Since(start)

	if cfg.showMetrics {
		if err := writeMetrics(out, m); err != nil {
			return stressReport{}, err
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return stressReport{
		Rounds:       cfg.rounds,
		Calls:        len(latencies),
		Failures:     failures,
		Mismatches:   mismatches,
		RefreshCalls: dev.Calls().Refresh,
		Total:        total,
		P50:          percentile(latencies, 50),
		P95:          percentile(latencies, 95),
		P99:          percentile(latencies, 99),
	}, nil
}

func writeMetrics(w io.Writer, m *authclient.Manager) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(promexport.NewCollector(m)); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func (r stressReport) String() string {
	return fmt.Sprintf("rounds=%d calls=%d refreshes=%d failures=%d mismatches=%d total=%s p50=%s p95=%s p99=%s",
		r.Rounds,
		r.Calls,
		r.RefreshCalls,
		r.Failures,
		r.Mismatches,
		r.Total.Round(time.Millisecond),
		r.P50.Round(time.Microsecond),
		r.P95.Round(time.Microsecond),
		r.P99.Round(time.Microsecond),
	)
}
