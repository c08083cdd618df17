package usage

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"ccsentinel/internal/claudecli"
	"ccsentinel/internal/logger"
	"ccsentinel/internal/models"
)

// Strategy selects the fetch source. The transition from StrategyAPIPreferred
// to StrategyCLIOnly is one-way for the lifetime of the process: once the API
// fails for a non-auth reason it is never retried.
type Strategy int32

const (
	StrategyAPIPreferred Strategy = iota
	StrategyCLIOnly
)

func (s Strategy) String() string {
	if s == StrategyCLIOnly {
		return "cli-only"
	}
	return "api-preferred"
}

// Config holds configuration for the usage fetcher.
type Config struct {
	Endpoint      string
	ClaudeCommand string
	HTTPTimeout   time.Duration
	CLITimeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:    defaultEndpoint,
		HTTPTimeout: 30 * time.Second,
		CLITimeout:  10 * time.Second,
	}
}

// Service produces usage snapshots for accounts.
type Service struct {
	httpClient *http.Client
	runner     commandRunner
	invocation claudecli.Invocation
	endpoint   string
	cliTimeout time.Duration
	strategy   atomic.Int32
}

// New creates a usage fetcher.
func New(cfg Config) *Service {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.CLITimeout == 0 {
		cfg.CLITimeout = 10 * time.Second
	}

	return &Service{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		runner:     execRunner{},
		invocation: claudecli.Resolve(cfg.ClaudeCommand),
		endpoint:   cfg.Endpoint,
		cliTimeout: cfg.CLITimeout,
	}
}

// Strategy returns the current fetch strategy.
func (s *Service) Strategy() Strategy {
	return Strategy(s.strategy.Load())
}

func (s *Service) disableAPI(reason error) {
	if s.strategy.CompareAndSwap(int32(StrategyAPIPreferred), int32(StrategyCLIOnly)) {
		logger.Warn("disabling usage API for this process, falling back to CLI", "error", reason)
	}
}

// Fetch produces a usage snapshot for the account. The API is tried first
// when a credential is present and the strategy still allows it; any
// non-auth API failure permanently flips the strategy to CLI-only. An auth
// failure (401/403) propagates as *AuthError and never falls back. When
// both strategies come up empty the result is (nil, nil).
func (s *Service) Fetch(ctx context.Context, account *models.Account, token string) (*models.UsageSnapshot, error) {
	if token != "" && s.Strategy() == StrategyAPIPreferred {
		snap, err := s.fetchFromAPI(ctx, account, token)
		if err == nil {
			return snap, nil
		}
		if authErr, ok := err.(*AuthError); ok {
			return nil, authErr
		}
		s.disableAPI(err)
	}

	return s.fetchFromCLI(ctx, account), nil
}
