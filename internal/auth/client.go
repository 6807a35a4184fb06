package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/waabox/kiroauth/internal/browser"
)

// DefaultEndpoint is the base URL of the Kiro desktop auth service.
const DefaultEndpoint = "https://prod.us-east-1.auth.desktop.kiro.dev"

// DefaultUserAgent identifies this client to the auth service.
const DefaultUserAgent = "KiroBatchLoginCLI/1.0.0"

const (
	requestTimeout = 60 * time.Second
	connectTimeout = 30 * time.Second

	maxAttempts       = 3
	defaultRetryDelay = 2000 * time.Millisecond
)

// Client talks to the auth service. It holds no mutable state after
// construction and is safe for concurrent use.
type Client struct {
	endpoint    string
	userAgent   string
	client      *http.Client
	openBrowser func(string) error
	retryDelay  time.Duration
	sleep       func(context.Context, time.Duration) error
	log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport. Pass a client with a stub
// RoundTripper in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithBrowser replaces the function used by Login to open the authorization URL.
func WithBrowser(open func(string) error) Option {
	return func(c *Client) { c.openBrowser = open }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryDelay overrides the fixed delay between attempts. Zero disables the delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// NewClient creates a Client for the given service endpoint.
// Pass an empty endpoint to use DefaultEndpoint. Pass a test server URL in tests.
// An endpoint that is not an absolute http(s) URL is a configuration error.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing auth service endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("auth service endpoint must be an absolute http(s) URL, got %q", endpoint)
	}

	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		userAgent:   DefaultUserAgent,
		client:      newHTTPClient(),
		openBrowser: browser.Open,
		retryDelay:  defaultRetryDelay,
		sleep:       sleepContext,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClient builds the shared transport. Proxy settings come from
// HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	}
}

// Endpoint returns the service base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) loginURL() string {
	return c.endpoint + "/login"
}

func (c *Client) createTokenURL() string {
	return c.endpoint + "/oauth/token"
}

func (c *Client) refreshTokenURL() string {
	return c.endpoint + "/refreshToken"
}

// LoginURL builds the browser authorization URL.
// Only redirectURI is percent-encoded. provider, codeChallenge and state are
// inserted as given and must already be URL-safe.
func (c *Client) LoginURL(provider, redirectURI, codeChallenge, state string) string {
	loginURL := fmt.Sprintf(
		"%s?idp=%s&redirect_uri=%s&code_challenge=%s&code_challenge_method=S256&state=%s",
		c.loginURL(),
		provider,
		percentEncode(redirectURI),
		codeChallenge,
		state,
	)
	return strings.TrimSpace(loginURL)
}

// Login opens the user's browser at the authorization page. It makes no request
// to the auth service itself; the authorization code arrives later on redirectURI.
// Errors from the browser launcher are returned unchanged.
func (c *Client) Login(provider, redirectURI, codeChallenge, state string) error {
	c.log.Info().
		Str("provider", provider).
		Str("redirect_uri", redirectURI).
		Str("code_challenge", codeChallenge).
		Str("state", state).
		Msg("opening browser for login")

	return c.openBrowser(c.LoginURL(provider, redirectURI, codeChallenge, state))
}

// percentEncode escapes everything except RFC 3986 unreserved characters.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
