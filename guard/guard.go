// Package guard validates operator-supplied identifiers and scrape target
// URLs before they reach the browser, the store or a URL path.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxIdentifier is the longest accepted source id.
const MaxIdentifier = 128

var (
	// ErrUnsafeScheme rejects anything but http and https.
	ErrUnsafeScheme = errors.New("guard: only http and https targets are allowed")
	// ErrPrivateTarget rejects literal loopback, link-local and private IPs.
	ErrPrivateTarget = errors.New("guard: target is a private or loopback address")
)

// TargetURL checks that raw is an absolute http(s) URL with a host that is
// not a literal private address. Hostnames are not resolved: the browser
// goes through the hub proxy, which does its own resolution.
func TargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("guard: URL %q has no host", raw)
	}
	if ip := net.ParseIP(host); ip != nil && isPrivate(ip) {
		return ErrPrivateTarget
	}
	return nil
}

// Identifier accepts ASCII letters, digits, '_', '-' and '.'.
func Identifier(s string) error {
	if s == "" {
		return errors.New("guard: identifier must not be empty")
	}
	if len(s) > MaxIdentifier {
		return fmt.Errorf("guard: identifier too long (max %d)", MaxIdentifier)
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("guard: invalid character %q in identifier %q", r, s)
		}
	}
	return nil
}

// ReadAtMost reads r fully but fails once more than maxBytes arrive.
func ReadAtMost(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("guard: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}

var privateNets = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "100.64.0.0/10", "fc00::/7"} {
		_, n, _ := net.ParseCIDR(cidr)
		out = append(out, n)
	}
	return out
}()

func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
