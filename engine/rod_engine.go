package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/models"
)

// Page retirement thresholds.
const (
	pageMaxErrScore = 3.0
	pageMaxUses     = 50
	pageMaxAge      = 50 * time.Minute
)

// Browser owns one headless Chromium and a bounded pool of reusable tabs.
// It is safe for concurrent use.
type Browser struct {
	browser      *rod.Browser
	pool         rod.Pool[rod.Page]
	blockedTypes []string

	mu     sync.Mutex
	health map[*rod.Page]*pageHealth
}

// pageHealth scores a pooled tab: failures add 1, successes subtract 0.5.
type pageHealth struct {
	errScore float64
	uses     int
	created  time.Time
}

func (h *pageHealth) retire() bool {
	return h.errScore >= pageMaxErrScore || h.uses >= pageMaxUses || time.Since(h.created) >= pageMaxAge
}

// LaunchBrowser starts Chromium and initialises the page pool.
func LaunchBrowser(cfg config.BrowserConfig, blockedTypes []string) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	slog.Info("page pool created", "maxPages", maxPages)

	return &Browser{
		browser:      browser,
		pool:         rod.NewPagePool(maxPages),
		blockedTypes: blockedTypes,
		health:       make(map[*rod.Page]*pageHealth),
	}, nil
}

// Close drains the page pool and kills the browser process.
func (b *Browser) Close() {
	b.pool.Cleanup(func(p *rod.Page) { _ = p.Close() })
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}

// Engine returns a browser tier. The stealth tier injects evasion scripts
// before every navigation.
func (b *Browser) Engine(stealthMode bool) *RodEngine {
	name := "browser"
	if stealthMode {
		name = "browser-stealth"
	}
	return &RodEngine{browser: b, stealth: stealthMode, name: name}
}

// RodEngine renders pages in the shared browser.
type RodEngine struct {
	browser *Browser
	stealth bool
	name    string
}

func (e *RodEngine) Name() string { return e.name }

// Fetch navigates a pooled tab to req.URL and returns the rendered HTML.
//
// Stealth scripts, extra headers and request hijacking must be installed
// before Navigate; they only affect navigations that start afterwards.
func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	page, err := e.browser.acquire()
	if err != nil {
		return nil, err
	}
	success := false
	defer func() { e.browser.release(page, success) }()

	if e.stealth || req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	headers := map[string]string{"User-Agent": chromeUA}
	if u, parseErr := url.Parse(req.URL); parseErr == nil {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)

	if router := setupHijack(page, e.browser.blockedTypes); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, e.name+": navigation failed")
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	statusCode := 0
	if res, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = res.Value.Int()
	}

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, e.name+": failed to read page HTML")
	}

	if blocked, bt := DetectBlock(statusCode, nil, []byte(rawHTML)); blocked {
		return nil, &BlockedError{URL: req.URL, Engine: e.name, Block: bt, StatusCode: statusCode}
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}
	success = true
	return &FetchResult{
		HTML:       rawHTML,
		Title:      evalStringOrEmpty(p, `() => document.title`),
		StatusCode: statusCode,
		FinalURL:   finalURL,
		EngineName: e.name,
	}, nil
}

func (b *Browser) acquire() (*rod.Page, error) {
	page, err := b.pool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		b.pool.Put(nil)
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	b.mu.Lock()
	if _, ok := b.health[page]; !ok {
		b.health[page] = &pageHealth{created: time.Now()}
	}
	b.mu.Unlock()
	return page, nil
}

// release blanks the tab and returns it to the pool, or closes it when its
// health score says it should be retired.
func (b *Browser) release(page *rod.Page, success bool) {
	b.mu.Lock()
	h := b.health[page]
	h.uses++
	if success {
		h.errScore = max(0, h.errScore-0.5)
	} else {
		h.errScore++
	}
	retire := h.retire()
	if retire {
		delete(b.health, page)
	}
	b.mu.Unlock()

	if retire {
		slog.Debug("retiring browser page", "uses", h.uses, "errScore", h.errScore)
		_ = page.Close()
		b.pool.Put(nil)
		return
	}
	if err := page.Navigate("about:blank"); err != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
	}
	b.pool.Put(page)
}

var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// setupHijack blocks the configured resource types. Returns nil when there
// is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

func categorizeError(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return &TransientError{Err: fmt.Errorf("%s: %w", msg, err)}
	}
}
