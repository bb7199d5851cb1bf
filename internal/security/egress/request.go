package egress

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var defaultPorts = map[string]uint16{
	"http":  80,
	"https": 443,
}

// ValidationRequest is the classified form of one outbound call.
type ValidationRequest struct {
	Method string
	RawURL string
	Scheme string
	Host   string
	Port   uint16
	// ExplicitPort is true when the URL carried its own port.
	ExplicitPort bool
	// Literal is true when Host looks like an IP address rather than a name.
	Literal bool
}

// ParseRequest classifies rawURL. A missing host is not an error here so that
// scheme checks can run first (file:///etc/passwd is an unsupported scheme,
// not a malformed url).
func ParseRequest(method, rawURL string) (*ValidationRequest, error) {
	method = normalizeMethod(method)

	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, ErrEmptyURL
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	req := &ValidationRequest{
		Method: method,
		RawURL: trimmed,
		Scheme: strings.ToLower(u.Scheme),
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	req.Host = host

	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrMalformedURL, p)
		}
		req.Port = uint16(port)
		req.ExplicitPort = true
	} else {
		req.Port = defaultPorts[req.Scheme]
	}

	req.Literal = isLiteralHost(host)
	return req, nil
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

// Address returns host:port as it would be dialed.
func (r *ValidationRequest) Address() string {
	if r == nil {
		return ""
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

func normalizeHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", nil
	}
	if isASCII(host) {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	return ascii, nil
}

// isLiteralHost reports whether host is an address literal. Anything made only
// of digits, dots, colons, dashes and brackets is treated as a literal even if
// it does not parse; such values skip name resolution.
func isLiteralHost(host string) bool {
	if host == "" {
		return false
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	for _, c := range host {
		switch {
		case c >= '0' && c <= '9':
		case c == '.', c == ':', c == '-', c == '[', c == ']':
		default:
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
