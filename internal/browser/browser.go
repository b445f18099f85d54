// Package browser manages the shared headless Chrome instance used for
// page rendering. Research crawls hit modern sites that are useless
// without JavaScript, so both web search and content fetching render
// pages through a real browser instead of plain HTTP.
//
// One Session is acquired per process and released at the CLI boundary;
// everything downstream borrows it through the Renderer interface.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultPageLoadTimeout bounds how long one page may take to render.
const DefaultPageLoadTimeout = 10 * time.Second

// Renderer renders a URL into its title and post-JavaScript HTML.
// Session implements it; tests substitute fakes.
type Renderer interface {
	// RenderPage navigates to url, waits for the page to load, and
	// returns the document title and full rendered HTML.
	RenderPage(ctx context.Context, url string) (title, html string, err error)
}

// Session owns one Chrome instance and hands out rendered pages.
// It is safe for sequential use; the crawl pipeline is single-threaded
// by design (politeness delays serialize fetches anyway).
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
	headless bool
	logger   *slog.Logger
}

// Option configures a Session before launch.
type Option func(*Session)

// WithPageLoadTimeout sets the per-page render timeout.
// Non-positive values are ignored.
func WithPageLoadTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHeadless controls whether Chrome runs without a visible window.
// Disabling this is only useful when debugging page rendering.
func WithHeadless(headless bool) Option {
	return func(s *Session) {
		s.headless = headless
	}
}

// WithLogger sets the logger for navigation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New launches a Chrome instance and connects to it.
// The caller owns the Session and must Close it to release the browser
// process, including on error paths.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		timeout:  DefaultPageLoadTimeout,
		headless: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.launcher = launcher.New().Headless(s.headless)
	controlURL, err := s.launcher.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		s.launcher.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.browser = browser

	s.logger.Debug("browser session started", "headless", s.headless)
	return s, nil
}

// RenderPage opens a fresh tab, navigates to url, waits for the load
// event, and returns the title and rendered HTML. The tab is always
// closed, so repeated calls do not accumulate open pages.
func (s *Session) RenderPage(ctx context.Context, url string) (string, string, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", "", fmt.Errorf("failed to open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(s.timeout)

	if err := page.Navigate(url); err != nil {
		return "", "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", "", fmt.Errorf("page load timed out for %s: %w", url, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("failed to read page HTML: %w", err)
	}

	var title string
	if info, err := page.Info(); err == nil {
		title = info.Title
	}

	return title, html, nil
}

// Close disconnects from Chrome and kills the browser process.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	s.logger.Debug("browser session closed")
	return err
}
