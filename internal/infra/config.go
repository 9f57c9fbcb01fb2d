package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"crest_go/pkg/bps"
)

// Config holds every setting of the RFQ node. Sensitive values may be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	RFQ struct {
		// WindowMS is the fixed quote-collection window. It is a tunable
		// parameter, not a physical constant.
		WindowMS      int `yaml:"window_ms"`
		MaxCandidates int `yaml:"max_candidates"`
		Weights       struct {
			Price       float64 `yaml:"price"`
			Reliability float64 `yaml:"reliability"`
			Latency     float64 `yaml:"latency"`
		} `yaml:"weights"`
	} `yaml:"rfq"`

	Settlement struct {
		ChainID           uint64 `yaml:"chain_id"`
		VerifyingContract string `yaml:"verifying_contract"`
		FeeBps            uint64 `yaml:"fee_bps"`
	} `yaml:"settlement"`

	Auth struct {
		SharedSecret string `yaml:"shared_secret"`
	} `yaml:"auth"`

	Makers []MakerConfig `yaml:"makers"`

	Connection struct {
		PingIntervalSec       int     `yaml:"ping_interval_sec"`
		ReadTimeoutSec        int     `yaml:"read_timeout_sec"`
		UnstableAfterMissed   int     `yaml:"unstable_after_missed"`
		DisconnectAfterMissed int     `yaml:"disconnect_after_missed"`
		MaxReconnectAttempts  int     `yaml:"max_reconnect_attempts"`
		RequestBurst          int     `yaml:"request_burst"`
		RequestPerSec         float64 `yaml:"request_per_sec"`
	} `yaml:"connection"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// MakerConfig identifies one market maker endpoint the node dials.
type MakerConfig struct {
	ID    string `yaml:"id"`
	WSURL string `yaml:"ws_url"`
}

// LoadConfig reads and parses the yaml config, applies environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.RFQ.WindowMS <= 0 {
		return fmt.Errorf("rfq window must be positive, got %d", c.RFQ.WindowMS)
	}
	if c.RFQ.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive, got %d", c.RFQ.MaxCandidates)
	}

	w := c.RFQ.Weights
	sum := w.Price + w.Reliability + w.Latency
	if w.Price <= 0 || w.Reliability < 0 || w.Latency < 0 || sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must be non-negative and sum to 1, got %v/%v/%v", w.Price, w.Reliability, w.Latency)
	}

	if !bps.ValidRate(c.Settlement.FeeBps) {
		return fmt.Errorf("fee %d bps exceeds the %d bps cap", c.Settlement.FeeBps, bps.MaxFeeBps)
	}
	if vc := c.Settlement.VerifyingContract; vc != "" && !common.IsHexAddress(vc) {
		return fmt.Errorf("invalid verifying contract address %q", vc)
	}

	for _, m := range c.Makers {
		if m.ID == "" {
			return fmt.Errorf("maker with empty id")
		}
		if !strings.HasPrefix(m.WSURL, "ws://") && !strings.HasPrefix(m.WSURL, "wss://") {
			return fmt.Errorf("invalid maker WS URL for %s: %s", m.ID, m.WSURL)
		}
	}

	if c.Connection.PingIntervalSec <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.Connection.DisconnectAfterMissed <= c.Connection.UnstableAfterMissed {
		return fmt.Errorf("disconnect threshold must exceed unstable threshold")
	}
	if c.Connection.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("max reconnect attempts must be positive")
	}

	return nil
}

// overrideWithEnv applies environment variables over file values. Secrets
// belong in the environment, not in the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.Auth.SharedSecret != "" {
		fmt.Println("⚠️  SECURITY WARNING: auth secret found in config file.")
		fmt.Println("   Recommendation: set CREST_AUTH_SECRET instead.")
	}
	if secret := os.Getenv("CREST_AUTH_SECRET"); secret != "" {
		cfg.Auth.SharedSecret = secret
	}
}
