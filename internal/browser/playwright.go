package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

const (
	defaultNavTimeout = 30 * time.Second
	headlessEnv       = "CLICKER_HEADLESS"

	// ChannelChromium is the bundled Playwright Chromium build.
	ChannelChromium = "chromium"
)

// Launcher owns the playwright driver lifecycle.
type Launcher struct {
	pw       *playwright.Playwright
	headless bool
	logger   zerolog.Logger
}

func NewLauncher(logger zerolog.Logger) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Launcher{
		pw:       pw,
		headless: parseBoolEnv(headlessEnv, false),
		logger:   logger,
	}, nil
}

func (l *Launcher) Close() error {
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

// PersistentOptions configures a persistent-profile launch.
type PersistentOptions struct {
	UserDataDir string
	Channel     string
}

// LaunchAttempt is one channel/profile combination tried during launch.
type LaunchAttempt struct {
	Channel string
	Profile string
}

func (a LaunchAttempt) String() string {
	return fmt.Sprintf("channel=%s, profile=%s", a.Channel, a.Profile)
}

// LaunchError reports every configuration tried before giving up.
type LaunchError struct {
	Attempted []LaunchAttempt
	Err       error
}

func (e *LaunchError) Error() string {
	parts := make([]string, 0, len(e.Attempted))
	for _, a := range e.Attempted {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("failed to launch browser in persistent mode. Attempted: %s. "+
		"Close all Chrome/Edge windows and try again, or choose a different --user-data-dir",
		strings.Join(parts, "; "))
}

func (e *LaunchError) Unwrap() error { return e.Err }

// LaunchPlan lists the channel/profile combinations in the order they are
// tried: the configured profile before its "_fresh" sibling, and the
// configured channel before the bundled chromium.
func LaunchPlan(opts PersistentOptions) []LaunchAttempt {
	channels := []string{opts.Channel}
	if opts.Channel != ChannelChromium {
		channels = append(channels, ChannelChromium)
	}
	dir := filepath.Clean(opts.UserDataDir)
	profiles := []string{dir, filepath.Join(filepath.Dir(dir), filepath.Base(dir)+"_fresh")}

	plan := make([]LaunchAttempt, 0, len(channels)*len(profiles))
	for _, profile := range profiles {
		for _, ch := range channels {
			plan = append(plan, LaunchAttempt{Channel: ch, Profile: profile})
		}
	}
	return plan
}

// LaunchPersistent starts a headed persistent context, falling back through LaunchPlan.
func (l *Launcher) LaunchPersistent(ctx context.Context, opts PersistentOptions) (Session, error) {
	if opts.Channel == "" {
		opts.Channel = ChannelChromium
	}
	var (
		attempted []LaunchAttempt
		lastErr   error
	)
	for _, attempt := range LaunchPlan(opts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(attempt.Profile, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(l.headless),
		}
		if attempt.Channel != ChannelChromium {
			launchOpts.Channel = playwright.String(attempt.Channel)
		}
		bctx, err := l.pw.Chromium.LaunchPersistentContext(attempt.Profile, launchOpts)
		if err != nil {
			attempted = append(attempted, attempt)
			lastErr = err
			l.logger.Warn().Err(err).
				Str("channel", attempt.Channel).
				Str("profile", attempt.Profile).
				Msg("launch failed")
			continue
		}
		if attempt.Profile != filepath.Clean(opts.UserDataDir) {
			l.logger.Warn().Str("profile", attempt.Profile).Msg("using fallback profile directory")
		}
		if attempt.Channel != opts.Channel {
			l.logger.Warn().
				Str("from", opts.Channel).
				Str("to", attempt.Channel).
				Msg("fell back to another browser channel")
		}
		return &persistentSession{context: bctx, logger: l.logger}, nil
	}
	return nil, &LaunchError{Attempted: attempted, Err: lastErr}
}

// Attach connects to an already running browser over CDP.
func (l *Launcher) Attach(ctx context.Context, cdpURL string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := l.pw.Chromium.ConnectOverCDP(cdpURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CDP at %s: %w", cdpURL, wrap(err))
	}
	return &cdpSession{browser: b}, nil
}

type persistentSession struct {
	context playwright.BrowserContext
	logger  zerolog.Logger
}

func (s *persistentSession) Pages() []Page {
	return wrapPages(s.context.Pages())
}

func (s *persistentSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", wrap(err))
	}
	return newPage(p), nil
}

func (s *persistentSession) Close() error {
	err := s.context.Close()
	if err != nil && errors.Is(err, playwright.ErrTargetClosed) {
		s.logger.Info().Msg("browser context was already closed")
		return nil
	}
	return wrap(err)
}

// cdpSession borrows a browser the user started; closing it only drops our
// connection and leaves the browser running.
type cdpSession struct {
	browser playwright.Browser
}

func (s *cdpSession) Pages() []Page {
	var out []Page
	for _, c := range s.browser.Contexts() {
		out = append(out, wrapPages(c.Pages())...)
	}
	return out
}

func (s *cdpSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contexts := s.browser.Contexts()
	if len(contexts) == 0 {
		p, err := s.browser.NewPage()
		if err != nil {
			return nil, fmt.Errorf("new page: %w", wrap(err))
		}
		return newPage(p), nil
	}
	p, err := contexts[0].NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", wrap(err))
	}
	return newPage(p), nil
}

func (s *cdpSession) Close() error { return nil }

func wrapPages(pages []playwright.Page) []Page {
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, newPage(p))
	}
	return out
}

type page struct {
	page playwright.Page
}

func newPage(p playwright.Page) *page {
	p.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &page{page: p}
}

func (p *page) URL() string    { return p.page.URL() }
func (p *page) IsClosed() bool { return p.page.IsClosed() }
func (p *page) Now() time.Time { return time.Now() }

func (p *page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(timeout),
	})
	return wrap(err)
}

func (p *page) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: millis(timeout),
	}))
}

func (p *page) Count(ctx context.Context, sel Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.locate(sel).Count()
	return n, wrap(err)
}

func (p *page) Element(sel Selector, index int) Element {
	return &element{loc: p.locate(sel).Nth(index)}
}

func (p *page) Wheel(ctx context.Context, dx, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(p.page.Mouse().Wheel(dx, dy))
}

func (p *page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return wrap(err)
}

func (p *page) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *page) locate(sel Selector) playwright.Locator {
	if sel.Scope != nil {
		return within(p.locate(*sel.Scope).First(), sel)
	}
	switch {
	case sel.Role != "":
		opts := playwright.PageGetByRoleOptions{}
		if sel.Name != "" {
			opts.Name = sel.Name
			opts.Exact = playwright.Bool(true)
		}
		return p.page.GetByRole(playwright.AriaRole(sel.Role), opts)
	case sel.Pattern != nil:
		return p.page.GetByText(sel.Pattern)
	case sel.Text != "":
		return p.page.GetByText(sel.Text, playwright.PageGetByTextOptions{Exact: playwright.Bool(false)})
	default:
		return p.page.Locator(sel.CSS)
	}
}

func within(parent playwright.Locator, sel Selector) playwright.Locator {
	switch {
	case sel.Role != "":
		opts := playwright.LocatorGetByRoleOptions{}
		if sel.Name != "" {
			opts.Name = sel.Name
			opts.Exact = playwright.Bool(true)
		}
		return parent.GetByRole(playwright.AriaRole(sel.Role), opts)
	case sel.Pattern != nil:
		return parent.GetByText(sel.Pattern)
	case sel.Text != "":
		return parent.GetByText(sel.Text, playwright.LocatorGetByTextOptions{Exact: playwright.Bool(false)})
	default:
		return parent.Locator(sel.CSS)
	}
}

type element struct {
	loc playwright.Locator
}

func (e *element) Attr(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.loc.GetAttribute(name)
	return v, wrap(err)
}

func (e *element) SetAttr(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.loc.Evaluate(`(el, kv) => el.setAttribute(kv[0], kv[1])`, []string{name, value})
	return wrap(err)
}

func (e *element) ScrollIntoView(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: millis(timeout),
	}))
}

func (e *element) Click(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)}))
}

func (e *element) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	}))
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("playwright: %w: %w", ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("playwright: %w: %w", ErrPageClosed, err)
	}
	return fmt.Errorf("playwright: %w", err)
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
