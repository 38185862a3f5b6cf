package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/config"
	"github.com/polzovatel/connect-clicker/internal/confirm"
	"github.com/polzovatel/connect-clicker/internal/pagestate"
	"github.com/polzovatel/connect-clicker/internal/paginate"
)

const (
	startSettle         = 1500 * time.Millisecond
	uiChangeInterval    = 500 * time.Millisecond
	screenshotPerm      = 0o755
	screenshotStampBase = "20060102_150405"
)

// Interactive asks the operator before every click.
type Interactive struct {
	cfg    config.Config
	prompt PromptFunc
	out    io.Writer
	logger zerolog.Logger
	nav    *paginate.Navigator
	pacer  Pacer
}

func NewInteractive(cfg config.Config, prompt PromptFunc, out io.Writer, logger zerolog.Logger) *Interactive {
	return &Interactive{
		cfg:    cfg,
		prompt: prompt,
		out:    out,
		logger: logger,
		nav:    newNavigator(cfg, logger),
		pacer:  Pacer{Min: cfg.MinDelay, Max: cfg.MaxDelay},
	}
}

// WithPacer replaces the delay source.
func (d *Interactive) WithPacer(p Pacer) *Interactive {
	d.pacer = p
	return d
}

// Run selects the working page and loops until the operator stops, the page
// closes or a navigation fails. ErrQuit is returned when the operator quits.
func (d *Interactive) Run(ctx context.Context, session browser.Session) (RunState, error) {
	var st RunState
	page, err := d.startPage(ctx, session)
	if err != nil {
		return st, err
	}
	if err := os.MkdirAll(d.cfg.ScreenshotDir, screenshotPerm); err != nil {
		return st, fmt.Errorf("create screenshot dir: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if page.IsClosed() {
			d.logger.Warn().Msg("active page was closed, ending run")
			st.stop("page closed")
			return st, nil
		}
		st.Pages++
		if err := d.pauseIfBlocked(ctx, page); err != nil {
			return st, err
		}

		count := pagestate.CountControls(ctx, page, d.cfg.ButtonLabel)
		d.logger.Info().Int("count", count).Str("url", page.URL()).Msg("controls on page")
		fmt.Fprintf(d.out, "Found %d '%s' button(s) on this page.\n", count, d.cfg.ButtonLabel)

		for count > 0 {
			if _, err := ask(ctx, d.prompt, fmt.Sprintf("Press Enter to click ONE '%s' button, or type 'q' to quit: ", d.cfg.ButtonLabel)); err != nil {
				return st, err
			}
			if page.IsClosed() {
				d.logger.Warn().Msg("page was closed by user, ending run")
				st.stop("page closed")
				return st, nil
			}
			if err := d.pauseIfBlocked(ctx, page); err != nil {
				return st, err
			}

			clicked, err := d.clickOne(ctx, page)
			if err != nil {
				if ctx.Err() != nil {
					return st, ctx.Err()
				}
				if errors.Is(err, browser.ErrPageClosed) {
					st.stop("page closed")
					return st, nil
				}
				d.logger.Error().Err(err).Msg("click failed")
				if _, err := ask(ctx, d.prompt, "Click timed out. Press Enter to retry or 'q' to quit: "); err != nil {
					return st, err
				}
				count = pagestate.CountControls(ctx, page, d.cfg.ButtonLabel)
				continue
			}
			if !clicked {
				d.logger.Info().Str("label", d.cfg.ButtonLabel).Msg("no controls remain after re-query")
				break
			}
			st.Clicks++
			count = pagestate.CountControls(ctx, page, d.cfg.ButtonLabel)
			d.logger.Info().Int("remaining", count).Int("clicks", st.Clicks).Msg("remaining controls after click")
		}

		answer, err := ask(ctx, d.prompt, fmt.Sprintf("No more '%s' buttons. Go to next page? (y/n): ", d.cfg.ButtonLabel))
		if err != nil {
			return st, err
		}
		if answer != "y" {
			d.logger.Info().Msg("operator ended run after current page")
			st.stop("operator ended run")
			return st, nil
		}

		next, cursor, err := paginate.NextURL(page.URL())
		if err != nil {
			return st, fmt.Errorf("next page url: %w", err)
		}
		d.logger.Info().Int("cursor", cursor).Str("url", next).Msg("navigating to next page")
		if err := d.nav.Goto(ctx, page, next); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			st.Landed, st.HasLanded = paginate.Cursor(page.URL())
			st.abort("navigation failed")
			d.logger.Error().Err(err).Str("url", next).Msg("could not open next page")
			return st, nil
		}
		st.Landed, st.HasLanded = paginate.Cursor(page.URL())
		if err := page.Wait(ctx, startSettle); err != nil {
			return st, err
		}
	}
}

func (d *Interactive) startPage(ctx context.Context, session browser.Session) (browser.Page, error) {
	if d.cfg.UseOpenPage {
		page, err := SelectOpenPage(ctx, session, d.prompt, d.out)
		if err != nil {
			return nil, err
		}
		d.logger.Info().Str("url", page.URL()).Msg("using selected open page")
		return page, nil
	}
	page, err := FirstPage(ctx, session)
	if err != nil {
		return nil, err
	}
	d.logger.Info().Str("url", d.cfg.StartURL).Msg("opening start url")
	if err := d.nav.Goto(ctx, page, d.cfg.StartURL); err != nil {
		return nil, fmt.Errorf("open start url: %w", err)
	}
	if err := page.Wait(ctx, startSettle); err != nil {
		return nil, err
	}
	return page, nil
}

// pauseIfBlocked holds the run while a site error or verification wall is
// visible, until the operator resolves it by hand.
func (d *Interactive) pauseIfBlocked(ctx context.Context, page browser.Page) error {
	if pagestate.SiteErrorDetected(ctx, page) {
		d.logger.Warn().Str("url", page.URL()).Msg("site error page detected")
		if _, err := ask(ctx, d.prompt, "Site error page detected. Refresh or navigate manually, then press Enter to continue (or 'q' to quit): "); err != nil {
			d.logger.Info().Msg("operator quit during error-page recovery")
			return err
		}
	}
	if pagestate.CaptchaDetected(ctx, page) {
		d.logger.Warn().Str("url", page.URL()).Msg("possible verification wall detected")
		if _, err := ask(ctx, d.prompt, "Verification/CAPTCHA may be present. Solve it manually, then press Enter to continue (or 'q' to quit): "); err != nil {
			d.logger.Info().Msg("operator quit during verification pause")
			return err
		}
	}
	return nil
}

// clickOne clicks the first control, captures a screenshot and waits for the
// page to react. It reports false when no control is left.
func (d *Interactive) clickOne(ctx context.Context, page browser.Page) (bool, error) {
	target := pagestate.Controls(d.cfg.ButtonLabel)
	done := pagestate.Controls(d.cfg.ConnectedLabel)
	before := pagestate.CountControls(ctx, page, d.cfg.ButtonLabel)
	if before == 0 {
		return false, nil
	}
	doneBefore := pagestate.CountControls(ctx, page, d.cfg.ConnectedLabel)

	outcome, err := confirm.ClickAndConfirm(ctx, page, page.Element(target, 0),
		confirm.Any(confirm.CountBelow(page, target, before), confirm.CountAbove(page, done, doneBefore)),
		confirm.Options{
			Interval: uiChangeInterval,
			Timeout:  d.cfg.Timeout,
			AfterClick: func(ctx context.Context) error {
				path := screenshotPath(d.cfg.ScreenshotDir, page.Now())
				if err := page.Screenshot(ctx, path); err != nil {
					d.logger.Warn().Err(err).Msg("screenshot failed")
					return nil
				}
				d.logger.Info().Str("label", d.cfg.ButtonLabel).Str("screenshot", path).Msg("clicked one control")
				return nil
			},
		})
	if err != nil {
		return false, err
	}
	if outcome == confirm.Changed {
		d.logger.Info().Msg("post-click change detected")
	} else {
		d.logger.Warn().Dur("timeout", d.cfg.Timeout).Msg("no post-click change detected")
	}

	delay, err := d.pacer.Pause(ctx, page)
	if err != nil {
		return true, err
	}
	d.logger.Info().Dur("delay", delay).Msg("paused before continuing")
	return true, nil
}

func screenshotPath(dir string, now time.Time) string {
	name := fmt.Sprintf("click_%s_%06d.png", now.Format(screenshotStampBase), now.Nanosecond()/1000)
	return filepath.Join(dir, name)
}

func newNavigator(cfg config.Config, logger zerolog.Logger) *paginate.Navigator {
	policy := paginate.DefaultRetryPolicy
	if cfg.NavRetries > 0 {
		policy.MaxAttempts = cfg.NavRetries
	}
	return &paginate.Navigator{
		Policy:  policy,
		Timeout: cfg.NavTimeout,
		Logger:  logger.With().Str("comp", "paginate").Logger(),
	}
}
