package parceiros

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/transport"
)

const (
	PageSize        = 10
	maxPageWorkers  = 10
	defaultTokenTTL = 50 * time.Minute
)

// Client reads pendências from the Parceiros API on behalf of one mesa.
type Client struct {
	api    *transport.Client
	login  *transport.Client
	source *loginSource
	logger *slog.Logger

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

func NewClient(ctx context.Context, cfg config.Config, mesa string, logger *slog.Logger) (*Client, error) {
	username, password, err := cfg.PartnerCredentials(mesa)
	if err != nil {
		return nil, err
	}
	return newClient(ctx, cfg, username, password, http.DefaultTransport, logger), nil
}

func newClient(ctx context.Context, cfg config.Config, username, password string, base http.RoundTripper, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "parceiros")
	timeout := time.Duration(cfg.ParceirosTimeoutMs) * time.Millisecond
	ttl := time.Duration(cfg.ParceirosTokenTTLMin) * time.Minute
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	limiter := transport.NewAdaptiveLimiter(0, 5*time.Second)

	c := &Client{logger: logger}
	c.login = &transport.Client{
		HTTP:    &http.Client{Timeout: timeout, Transport: base},
		BaseURL: cfg.ParceirosBaseURL,
		Policy:  transport.DefaultRetryPolicy(),
		Limiter: limiter,
		Logger:  logger,
	}
	c.source = &loginSource{ctx: ctx, api: c.login, username: username, password: password, ttl: ttl}
	c.tokens = oauth2.ReuseTokenSource(nil, c.source)
	c.api = &transport.Client{
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: tokenSourceFunc(c.token), Base: base},
		},
		BaseURL: cfg.ParceirosBaseURL,
		Policy:  transport.DefaultRetryPolicy(),
		Limiter: limiter,
		Logger:  logger,
	}
	return c
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func (c *Client) token() (*oauth2.Token, error) {
	c.mu.Lock()
	src := c.tokens
	c.mu.Unlock()
	return src.Token()
}

// resetToken drops the cached token so the next request logs in again.
func (c *Client) resetToken() {
	c.mu.Lock()
	c.tokens = oauth2.ReuseTokenSource(nil, c.source)
	c.mu.Unlock()
}

// Authenticate forces a login so that bad credentials surface before any
// work starts.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.token(); err != nil {
		return err
	}
	c.logger.Info("parceiros authentication succeeded")
	return nil
}

type Page struct {
	Leads      []internal.Lead
	TotalPages int
	TotalItems int
}

func (c *Client) LeadsByCNJ(ctx context.Context, cnj string) ([]internal.Lead, error) {
	q := url.Values{}
	q.Set("cnj", cnj)
	q.Set("tamanho_pagina", strconv.Itoa(PageSize))
	page, err := c.get(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("leads by cnj %s: %w", cnj, err)
	}
	c.logger.Debug("leads found for cnj", "cnj", cnj, "count", len(page.Leads))
	return page.Leads, nil
}

// LeadExists reports whether the partner platform knows cnj.
func (c *Client) LeadExists(ctx context.Context, cnj string) (bool, error) {
	leads, err := c.LeadsByCNJ(ctx, cnj)
	if err != nil {
		return false, err
	}
	return len(leads) > 0, nil
}

func (c *Client) Page(ctx context.Context, number int) (Page, error) {
	q := url.Values{}
	q.Set("numero_pagina", strconv.Itoa(number))
	q.Set("tamanho_pagina", strconv.Itoa(PageSize))
	page, err := c.get(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("page %d: %w", number, err)
	}
	return page, nil
}

// AllLeads reads page 1 for the page count and fetches the remaining pages
// concurrently. Pages that fail are logged and skipped.
func (c *Client) AllLeads(ctx context.Context) ([]internal.Lead, error) {
	first, err := c.Page(ctx, 1)
	if err != nil {
		return nil, err
	}
	if first.TotalPages <= 0 {
		return nil, errors.New("partner API did not report total_paginas")
	}
	c.logger.Info("fetching partner leads", "pages", first.TotalPages, "items", first.TotalItems)

	pages := make([][]internal.Lead, first.TotalPages+1)
	pages[1] = first.Leads

	var failedMu sync.Mutex
	failed := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(min(maxPageWorkers, first.TotalPages))
	for n := 2; n <= first.TotalPages; n++ {
		g.Go(func() error {
			page, err := c.Page(gCtx, n)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				c.logger.Error("partner page failed", "page", n, "error", err)
				failedMu.Lock()
				failed++
				failedMu.Unlock()
				return nil
			}
			if len(page.Leads) == 0 {
				c.logger.Warn("partner page empty", "page", n)
			}
			pages[n] = page.Leads
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []internal.Lead
	for _, p := range pages {
		all = append(all, p...)
	}
	c.logger.Info("partner leads fetched", "leads", len(all), "failed_pages", failed)
	return all, nil
}

func (c *Client) get(ctx context.Context, q url.Values) (Page, error) {
	req := transport.Request{Method: http.MethodGet, Endpoint: "pendencia", RawQuery: q.Encode()}
	body, err := c.api.Do(ctx, req)
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.logger.Warn("partner token rejected, logging in again")
		c.resetToken()
		body, err = c.api.Do(ctx, req)
	}
	if err != nil {
		return Page{}, err
	}
	page, err := decodePage(body)
	if err != nil {
		return Page{}, &transport.APIError{Status: http.StatusOK, Method: req.Method, Endpoint: req.Endpoint, Body: "malformed response: " + err.Error()}
	}
	return page, nil
}
