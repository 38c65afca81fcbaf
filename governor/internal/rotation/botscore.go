// Package rotation decides when a browser identity is burnt and hands out a
// replacement.
//
// The bot score comes from the Fingerprint Server API. It is an optional
// signal: without an API key or a request id the checker reports 0 and the
// governor never rotates.
package rotation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sm36384/Phoenix/connectivity"
	"github.com/Sm36384/Phoenix/guard"
)

// Threshold is the score above which an identity is rotated.
const Threshold = 10

// BreakerService is the breaker name used for bot-score calls.
const BreakerService = "botscore"

const (
	BaseUS = "https://api.fpjs.io"
	BaseEU = "https://eu.api.fpjs.io"
)

// Score is the outcome of one bot-score check.
type Score struct {
	Pct          int             `json:"score_pct"`
	ShouldRotate bool            `json:"should_rotate"`
	Label        string          `json:"label,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ScoreFor maps a bot classification label to 0-100.
func ScoreFor(label string) int {
	switch label {
	case "":
		return 0
	case "notDetected":
		return 0
	case "good":
		return 5
	case "bad":
		return 100
	case "bot":
		return 90
	default:
		return 50
	}
}

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	APIKey  string        `yaml:"-"`
	Region  string        `yaml:"region"` // "eu" or anything else for US
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Checker queries the bot-score API.
type Checker struct {
	apiKey   string
	base     string
	timeout  time.Duration
	client   *http.Client
	breakers *connectivity.Registry
	logger   *slog.Logger
}

// NewChecker creates a checker. A nil registry gets a private one.
func NewChecker(cfg CheckerConfig, breakers *connectivity.Registry, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if breakers == nil {
		breakers = connectivity.NewRegistry(logger)
	}
	base := cfg.BaseURL
	if base == "" {
		base = BaseUS
		if strings.EqualFold(cfg.Region, "eu") {
			base = BaseEU
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Checker{
		apiKey:   cfg.APIKey,
		base:     strings.TrimRight(base, "/"),
		timeout:  cfg.Timeout,
		client:   &http.Client{},
		breakers: breakers,
		logger:   logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Checker) Enabled() bool { return c != nil && c.apiKey != "" }

type eventResponse struct {
	Products struct {
		Botd struct {
			Data struct {
				Bot struct {
					Result string `json:"result"`
				} `json:"bot"`
			} `json:"data"`
		} `json:"botd"`
	} `json:"products"`
}

// Check scores requestID. It never fails: a missing key or request id
// yields score 0, and call failures yield score 0 with Error set.
func (c *Checker) Check(ctx context.Context, requestID string) Score {
	if !c.Enabled() {
		return Score{}
	}
	if requestID == "" {
		c.logger.Debug("rotation: no request id, skipping bot score")
		return Score{Error: "no request id"}
	}

	var raw []byte
	err := c.breakers.Do(ctx, BreakerService, c.timeout, func(ctx context.Context) error {
		var err error
		raw, err = c.fetch(ctx, requestID)
		return err
	})
	if err != nil {
		c.logger.Warn("rotation: bot score unavailable", "error", err)
		return Score{Error: err.Error()}
	}

	var ev eventResponse
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Score{Raw: raw, Error: fmt.Sprintf("decode: %v", err)}
	}
	label := ev.Products.Botd.Data.Bot.Result
	pct := ScoreFor(label)
	return Score{Pct: pct, ShouldRotate: pct > Threshold, Label: label, Raw: raw}
}

func (c *Checker) fetch(ctx context.Context, requestID string) ([]byte, error) {
	u := c.base + "/events/" + url.PathEscape(requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Auth-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := guard.ReadAtMost(resp.Body, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from bot score: %s", resp.StatusCode, truncate(string(body), 512))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
