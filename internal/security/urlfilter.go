package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrHostBlocked is returned when a tool server URL is refused by the
// host policy.
var ErrHostBlocked = errors.New("tool server host blocked")

// HostPolicyConfig restricts which hosts remote tool servers may live on.
type HostPolicyConfig struct {
	// AllowHosts, when non-empty, is the exhaustive list of permitted hosts.
	// Subdomains match: "firecrawl.dev" also allows "mcp.firecrawl.dev".
	AllowHosts []string `yaml:"allow_hosts"`

	// DenyHosts always wins over AllowHosts.
	DenyHosts []string `yaml:"deny_hosts"`
}

// HostPolicy checks remote tool server URLs. An empty policy allows every
// http(s) URL.
type HostPolicy struct {
	allow []string
	deny  []string
}

// NewHostPolicy creates a policy from the given config.
func NewHostPolicy(cfg HostPolicyConfig) *HostPolicy {
	return &HostPolicy{allow: normalizeHosts(cfg.AllowHosts), deny: normalizeHosts(cfg.DenyHosts)}
}

func normalizeHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Check returns nil when rawURL may be contacted.
func (p *HostPolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrHostBlocked, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrHostBlocked, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrHostBlocked)
	}
	for _, d := range p.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s (denied)", ErrHostBlocked, host)
		}
	}
	if len(p.allow) == 0 {
		return nil
	}
	for _, a := range p.allow {
		if matchDomain(host, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (not in allow list)", ErrHostBlocked, host)
}

// matchDomain reports whether host equals domain or is a subdomain of it.
func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
