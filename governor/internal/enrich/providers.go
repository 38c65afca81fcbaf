package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	PhantomBusterBase = "https://api.phantombuster.com/api/v2"
	ProxycurlBase     = "https://nubela.co/proxycurl/api/v2"
)

// PhantomBusterConfig configures the PhantomBuster provider.
type PhantomBusterConfig struct {
	APIKey       string        `yaml:"-"`
	AgentID      string        `yaml:"agent_id"`
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// PhantomBuster launches a LinkedIn search agent and polls its container
// until the agent finishes.
type PhantomBuster struct {
	cfg    PhantomBusterConfig
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPhantomBuster returns nil when no API key or agent id is configured.
func NewPhantomBuster(cfg PhantomBusterConfig) *PhantomBuster {
	if cfg.APIKey == "" || cfg.AgentID == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = PhantomBusterBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 120 * time.Second
	}
	return &PhantomBuster{cfg: cfg, client: &http.Client{}, sleep: sleepCtx}
}

func (p *PhantomBuster) Name() string { return "phantombuster" }

type phantomProfile struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	LinkedinURL string `json:"linkedinUrl"`
	URL         string `json:"url"`
}

func (p *PhantomBuster) Lookup(ctx context.Context, name, company string) (*Profile, error) {
	containerID, err := p.launch(ctx, name, company)
	if err != nil {
		return nil, err
	}

	for waited := time.Duration(0); waited < p.cfg.MaxWait; waited += p.cfg.PollInterval {
		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			return nil, err
		}
		var c struct {
			Status string `json:"status"`
			Output string `json:"output"`
		}
		if err := p.getJSON(ctx, "/containers/fetch?id="+url.QueryEscape(containerID), &c); err != nil {
			return nil, err
		}
		if c.Status == "running" {
			continue
		}
		if c.Status != "finished" {
			return nil, fmt.Errorf("phantombuster: container %s status %q", containerID, c.Status)
		}
		return parsePhantomOutput(c.Output), nil
	}
	return nil, fmt.Errorf("phantombuster: container %s still running after %s", containerID, p.cfg.MaxWait)
}

func (p *PhantomBuster) launch(ctx context.Context, name, company string) (string, error) {
	body, err := json.Marshal(map[string]string{"partnerName": name, "company": company})
	if err != nil {
		return "", err
	}
	u := p.cfg.BaseURL + "/agents/launch?id=" + url.QueryEscape(p.cfg.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Phantombuster-Key", p.cfg.APIKey)

	var out struct {
		ContainerID string `json:"containerId"`
	}
	if err := doJSON(p.client, req, &out); err != nil {
		return "", fmt.Errorf("phantombuster: launch: %w", err)
	}
	if out.ContainerID == "" {
		return "", fmt.Errorf("phantombuster: launch returned no container id")
	}
	return out.ContainerID, nil
}

func (p *PhantomBuster) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Phantombuster-Key", p.cfg.APIKey)
	if err := doJSON(p.client, req, v); err != nil {
		return fmt.Errorf("phantombuster: %w", err)
	}
	return nil
}

// parsePhantomOutput accepts a JSON array or a single object. Unparseable
// output is no match.
func parsePhantomOutput(output string) *Profile {
	if output == "" {
		return nil
	}
	var list []phantomProfile
	if err := json.Unmarshal([]byte(output), &list); err != nil {
		var one phantomProfile
		if err := json.Unmarshal([]byte(output), &one); err != nil {
			return nil
		}
		list = []phantomProfile{one}
	}
	if len(list) == 0 {
		return nil
	}
	first := list[0]
	u := first.LinkedinURL
	if u == "" {
		u = first.URL
	}
	if u == "" {
		return nil
	}
	return &Profile{URL: u, Name: first.Name, Title: first.Title, Company: first.Company}
}

// ProxycurlConfig configures the Proxycurl provider.
type ProxycurlConfig struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`
}

// Proxycurl resolves a person through the profile resolve endpoint.
type Proxycurl struct {
	cfg    ProxycurlConfig
	client *http.Client
}

// NewProxycurl returns nil when no API key is configured.
func NewProxycurl(cfg ProxycurlConfig) *Proxycurl {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ProxycurlBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Proxycurl{cfg: cfg, client: &http.Client{}}
}

func (p *Proxycurl) Name() string { return "proxycurl" }

func (p *Proxycurl) Lookup(ctx context.Context, name, company string) (*Profile, error) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	q := url.Values{}
	q.Set("first_name", first)
	if last != "" {
		q.Set("last_name", last)
	}
	q.Set("company_domain", company)

	u := p.cfg.BaseURL + "/linkedin/profile/resolve?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	var out struct {
		URL      string `json:"url"`
		Linkedin string `json:"linkedin_url"`
		FullName string `json:"full_name"`
		Headline string `json:"headline"`
	}
	if err := doJSON(p.client, req, &out); err != nil {
		return nil, fmt.Errorf("proxycurl: %w", err)
	}
	profileURL := out.Linkedin
	if profileURL == "" {
		profileURL = out.URL
	}
	if profileURL == "" {
		return nil, nil
	}
	return &Profile{URL: profileURL, Name: out.FullName, Title: out.Headline, Company: company}, nil
}

func doJSON(client *http.Client, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, req.URL.Path, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
