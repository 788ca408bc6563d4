// Package eproc talks to the eProc portal over plain HTTP: Keycloak login,
// the open-deadline dashboard, case pages and document downloads.
package eproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
)

const (
	DefaultBaseURL   = "https://eproc1g.tjrs.jus.br"
	DefaultLoginPath = "/eproc/externo_controlador.php?acao=SSO%2Flogin"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var (
	ErrLoginFailed     = errors.New("eproc login failed")
	ErrListingNotFound = errors.New("open deadline listing link not found")
)

// Config holds the portal connection settings.
type Config struct {
	BaseURL    string
	LoginPath  string
	Username   string
	Password   string
	TOTPSecret string
	UserAgent  string
	Timeout    time.Duration
	// ProxyURL may carry credentials as userinfo.
	ProxyURL          string
	RequestsPerSecond float64
	Burst             int
	Location          *time.Location
}

// DefaultConfig returns the TJRS first-instance settings without credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		LoginPath:         DefaultLoginPath,
		UserAgent:         DefaultUserAgent,
		Timeout:           2 * time.Minute,
		RequestsPerSecond: 2,
		Burst:             1,
	}
}

// Client is an HTTP session against the portal. It is not safe for concurrent use.
type Client struct {
	http    *resty.Client
	base    *url.URL
	cfg     Config
	loc     *time.Location
	logger  *logging.Logger
	now     func() time.Time
	landing string
}

// NewClient builds an unauthenticated client.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = logging.Default()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := resty.New().
		SetCookieJar(jar).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Language", "pt-BR,pt;q=0.9").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(15))
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.ProxyURL != "" {
		client.SetProxy(cfg.ProxyURL)
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return limiter.Wait(r.Context())
		})
	}

	loc := cfg.Location
	if loc == nil {
		loc = PortalLocation()
	}

	return &Client{
		http:   client,
		base:   base,
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}, nil
}

// PortalLocation is the portal's wall-clock zone.
func PortalLocation() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// resolve turns a portal href into an absolute URL. Bare relative links
// live under /eproc/, as the portal's own pages assume.
func (c *Client) resolve(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return c.base.String() + href
	}
	return c.base.String() + "/eproc/" + strings.TrimPrefix(href, "./")
}

func (c *Client) get(ctx context.Context, target string) (*resty.Response, error) {
	res, err := c.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	return res, nil
}

// getPage fetches target and parses it, requiring a 2xx answer.
func (c *Client) getPage(ctx context.Context, target string) (*goquery.Document, *resty.Response, error) {
	res, err := c.get(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	if res.IsError() {
		return nil, res, fmt.Errorf("GET %s: status %d", target, res.StatusCode())
	}
	doc, err := parseHTML(res)
	if err != nil {
		return nil, res, err
	}
	return doc, res, nil
}

// parseHTML decodes the body with its declared charset; the portal serves ISO-8859-1.
func parseHTML(res *resty.Response) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(res.Body()), res.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode page charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		doc.Url = res.RawResponse.Request.URL
	}
	return doc, nil
}

// finalURL is the URL after redirects.
func finalURL(res *resty.Response) *url.URL {
	if res == nil || res.RawResponse == nil || res.RawResponse.Request == nil {
		return nil
	}
	return res.RawResponse.Request.URL
}

func (c *Client) onPortal(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Host, c.base.Host)
}

// Close drops pooled connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}
