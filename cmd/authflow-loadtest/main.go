// Command authflow-loadtest measures ValidateAccess and Refresh throughput
// against Redis (or an embedded miniredis) with an in-memory user store.
package main

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/password"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const loadtestPassword = "loadtest-password-1"

type options struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "authflow-loadtest",
		Short:        "Load test token validation and refresh",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("users, concurrency, and ops must be > 0")
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.users, "users", 200, "number of users to log in")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 100000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	engine, users, err := buildEngine(client, opts.users)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Printf("logging in %d users...\n", len(users))
	startSeed := time.Now()
	sessions := make([]*authflow.LoginResult, len(users))
	for i, identifier := range users {
		res, err := engine.Login(ctx, identifier, loadtestPassword)
		if err != nil {
			return fmt.Errorf("login %s: %w", identifier, err)
		}
		sessions[i] = res
	}
	fmt.Printf("logged in in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, err := engine.ValidateAccess(ctx, sessions[r.IntN(len(sessions))].AccessToken)
		return err
	})
	refreshStats := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, err := engine.Refresh(ctx, sessions[r.IntN(len(sessions))].RefreshToken)
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	return nil
}

func buildEngine(client redis.UniversalClient, n int) (*authflow.Engine, []string, error) {
	cfg := authflow.DefaultConfig()
	for _, key := range []*authflow.SigningKey{&cfg.JWT.Access, &cfg.JWT.Refresh, &cfg.JWT.Reset} {
		key.Secret = make([]byte, 32)
		if _, err := crand.Read(key.Secret); err != nil {
			return nil, nil, err
		}
	}
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.MaxLoginAttempts = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	hasher, err := password.NewArgon2(password.Config{
		Memory: cfg.Password.Memory, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		return nil, nil, err
	}
	hash, err := hasher.Hash(loadtestPassword)
	if err != nil {
		return nil, nil, err
	}

	store := &userStore{byID: make(map[string]authflow.UserRecord, n), byIdentifier: make(map[string]string, n)}
	identifiers := make([]string, n)
	for i := range n {
		rec := authflow.UserRecord{
			UserID:       fmt.Sprintf("u-%d", i),
			Identifier:   fmt.Sprintf("user%d@loadtest.local", i),
			PasswordHash: hash,
			Role:         "member",
		}
		store.byID[rec.UserID] = rec
		store.byIdentifier[rec.Identifier] = rec.UserID
		identifiers[i] = rec.Identifier
	}

	engine, err := authflow.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(store).
		WithNotifier(authflow.NotifierFunc(func(context.Context, authflow.ResetNotice) error { return nil })).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, identifiers, nil
}

// userStore is a read-mostly provider; the load test never writes hashes.
type userStore struct {
	mu           sync.RWMutex
	byID         map[string]authflow.UserRecord
	byIdentifier map[string]string
}

func (s *userStore) GetUserByIdentifier(_ context.Context, identifier string) (authflow.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdentifier[identifier]
	if !ok {
		return authflow.UserRecord{}, authflow.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *userStore) GetUserByID(_ context.Context, userID string) (authflow.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[userID]
	if !ok {
		return authflow.UserRecord{}, authflow.ErrUserNotFound
	}
	return rec, nil
}

func (s *userStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[userID]
	if !ok {
		return authflow.ErrUserNotFound
	}
	rec.PasswordHash = newHash
	s.byID[userID] = rec
	return nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				t0 := time.Now()
				if err := op(r); err != nil {
					atomic.AddInt64(&failures, 1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
