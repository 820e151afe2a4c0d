package fetch

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/types"
)

// config holds internal HTTP client configuration
type config struct {
	userAgent       string
	headers         []string
	cookiesFile     string
	timeout         time.Duration
	maxConnsPerHost int
}

// Option is a functional option for Client configuration
type Option func(*config)

// WithUserAgent sets the User-Agent header for all requests
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = ua
	}
}

// WithHeaders adds extra request headers given as "Key: Value" strings
func WithHeaders(headers []string) Option {
	return func(c *config) {
		c.headers = headers
	}
}

// WithCookiesFile loads cookies from a Netscape cookies.txt file
func WithCookiesFile(path string) Option {
	return func(c *config) {
		c.cookiesFile = path
	}
}

// WithTimeout sets the connect and response-header timeout
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxConnsPerHost caps concurrent connections to one source host
func WithMaxConnsPerHost(n int) Option {
	return func(c *config) {
		c.maxConnsPerHost = n
	}
}

// Client is the one outward HTTP collaborator: it probes sources and
// issues the ranged requests of a transfer.
type Client struct {
	hc        *http.Client
	userAgent string
	headers   http.Header
}

// New creates an HTTP client for download traffic
func New(opts ...Option) (*Client, error) {
	cfg := &config{
		timeout:         30 * time.Second,
		maxConnsPerHost: 8,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	headers := make(http.Header)
	for _, raw := range cfg.headers {
		key, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, goerr.New("invalid header, expected \"Key: Value\"",
				goerr.T(types.TagEnvironment), goerr.V("header", raw))
		}
		headers.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.timeout,
		}).DialContext,
		MaxConnsPerHost:       cfg.maxConnsPerHost,
		MaxIdleConnsPerHost:   cfg.maxConnsPerHost,
		ResponseHeaderTimeout: cfg.timeout,
		ForceAttemptHTTP2:     true,
	}

	hc := &http.Client{Transport: transport}

	if cfg.cookiesFile != "" {
		jar, err := loadCookies(cfg.cookiesFile)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	return &Client{
		hc:        hc,
		userAgent: cfg.userAgent,
		headers:   headers,
	}, nil
}

// NewRequest builds a GET request carrying the configured identity
// headers. Range and If-Range are up to the caller.
func (x *Client) NewRequest(ctx context.Context, rawurl string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.T(types.TagTransfer), goerr.V("url", rawurl))
	}
	x.decorate(req)
	return req, nil
}

// Do executes a request
func (x *Client) Do(req *http.Request) (*http.Response, error) {
	return x.hc.Do(req)
}

func (x *Client) decorate(req *http.Request) {
	if x.userAgent != "" {
		req.Header.Set("User-Agent", x.userAgent)
	}
	for key, values := range x.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
}
