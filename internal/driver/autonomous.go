package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/config"
	"github.com/polzovatel/connect-clicker/internal/confirm"
	"github.com/polzovatel/connect-clicker/internal/pagestate"
	"github.com/polzovatel/connect-clicker/internal/paginate"
	"github.com/polzovatel/connect-clicker/internal/snapshot"
)

const (
	settleScrollStep   = 900
	settleScrollPause  = 250 * time.Millisecond
	settlePollInterval = 400 * time.Millisecond
	countConfirmWait   = 6 * time.Second
	countConfirmPoll   = 400 * time.Millisecond
	// maxModalRetries bounds how often one control is retried after its click
	// was blocked by a dialog that could be closed.
	maxModalRetries = 3
)

const interceptedMarker = "intercepts pointer events"

// Autonomous clicks every control on a page without asking, then paginates.
type Autonomous struct {
	cfg    config.Config
	out    io.Writer
	logger zerolog.Logger
	nav    *paginate.Navigator
	modal  pagestate.ModalWorkflow
	pacer  Pacer
	skips  *SkipRegistry
}

func NewAutonomous(cfg config.Config, out io.Writer, logger zerolog.Logger) *Autonomous {
	return &Autonomous{
		cfg:    cfg,
		out:    out,
		logger: logger,
		nav:    newNavigator(cfg, logger),
		modal: pagestate.ModalWorkflow{
			SubmitLabel: cfg.SubmitLabel,
			Timeout:     cfg.ModalTimeout,
			Logger:      logger.With().Str("comp", "modal").Logger(),
		},
		pacer: Pacer{Min: cfg.MinDelay, Max: cfg.MaxDelay},
		skips: NewSkipRegistry(),
	}
}

// WithPacer replaces the delay source.
func (d *Autonomous) WithPacer(p Pacer) *Autonomous {
	d.pacer = p
	return d
}

// Run processes pages starting at page until no further page can be reached
// or a limit is hit. Faults that stop the run are reported through
// RunState.Aborted; the error is reserved for cancellation.
func (d *Autonomous) Run(ctx context.Context, page browser.Page) (RunState, error) {
	var st RunState
	fmt.Fprintf(d.out, "Using tab: %s\n", displayURL(page.URL()))
	fmt.Fprintf(d.out, "Clicking buttons named exactly '%s' with %s-%s delay.\n", d.cfg.ButtonLabel, d.cfg.MinDelay, d.cfg.MaxDelay)
	if d.cfg.MaxClicks == 0 && d.cfg.MaxPages == 0 {
		fmt.Fprintln(d.out, "No max-clicks/max-pages limit is set (unlimited run).")
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if page.IsClosed() {
			fmt.Fprintln(d.out, "Active page was closed.")
			st.stop("page closed")
			return st, nil
		}

		cursor, hasCursor := paginate.Cursor(page.URL())
		if st.HasConfirmed && hasCursor && cursor < st.LastConfirmed {
			want := st.LastConfirmed + 1
			fmt.Fprintf(d.out, "Detected page rollback (current=%d, expected>=%d). Trying recovery URL page=%d.\n", cursor, want, want)
			d.logger.Warn().Int("cursor", cursor).Int("last_confirmed", st.LastConfirmed).Msg("page rollback detected")
			landed, err := d.nav.Recover(ctx, page, st.LastConfirmed)
			if err != nil {
				if ctx.Err() != nil {
					return st, ctx.Err()
				}
				st.Landed, st.HasLanded = paginate.Cursor(page.URL())
				fmt.Fprintf(d.out, "Rollback recovery failed. Current URL: %s. Stopping to avoid bad pagination.\n", page.URL())
				d.logger.Error().Err(err).Str("url", page.URL()).Msg("rollback recovery failed")
				st.abort("rollback unrecovered")
				return st, nil
			}
			cursor, hasCursor = landed, true
		}

		st.Pages++
		d.skips.Reset(cursor, hasCursor)
		label := "unknown"
		if hasCursor {
			label = fmt.Sprint(cursor)
		}
		fmt.Fprintf(d.out, "\nProcessing loop #%d, URL page=%s: %s\n", st.Pages, label, displayURL(page.URL()))
		d.logger.Info().Int("loop", st.Pages).Str("cursor", label).Str("url", page.URL()).Msg("processing page")

		stop, err := d.processPage(ctx, page, &st)
		if err != nil {
			return st, err
		}
		if stop {
			return st, nil
		}

		if hasCursor {
			st.Confirm(cursor)
		}
		if d.cfg.MaxPages > 0 && st.Pages >= d.cfg.MaxPages {
			fmt.Fprintf(d.out, "Reached max pages: %d.\n", d.cfg.MaxPages)
			st.stop("max pages reached")
			return st, nil
		}
		if d.cfg.NoAutoNextPage {
			fmt.Fprintln(d.out, "Auto next page is disabled. Stopping.")
			st.stop("auto next page disabled")
			return st, nil
		}

		expected := 0
		if hasCursor {
			expected = cursor + 1
		}
		res, err := d.nav.Next(ctx, page, expected)
		st.Landed, st.HasLanded = res.Landed, res.HasLanded
		if err != nil {
			if errors.Is(err, browser.ErrPageClosed) {
				st.stop("page closed")
				return st, nil
			}
			return st, err
		}
		if !res.Moved {
			fmt.Fprintf(d.out, "Could not confirm forward move to next page. Expected page=%s, landed page=%s, current URL=%s. Stopping.\n",
				optional(res.Expected, res.HasExpected), optional(res.Landed, res.HasLanded), page.URL())
			d.logger.Error().Int("expected", res.Expected).Int("landed", res.Landed).Str("url", page.URL()).Msg("navigation failed")
			st.abort("navigation failed")
			return st, nil
		}
		fmt.Fprintf(d.out, "Moved to next page: %s (page=%s)\n", page.URL(), optional(res.Landed, res.HasLanded))
		if _, err := d.pacer.Pause(ctx, page); err != nil {
			return st, err
		}
	}
}

// processPage clicks controls until none is left unskipped. It reports true
// when the whole run must stop.
func (d *Autonomous) processPage(ctx context.Context, page browser.Page, st *RunState) (bool, error) {
	pageClicks := 0
	modalRetries := map[string]int{}

	for {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if page.IsClosed() {
			fmt.Fprintln(d.out, "Active page was closed.")
			st.stop("page closed")
			return true, nil
		}

		switch status := d.modal.Resolve(ctx, page); {
		case status == pagestate.Clear:
		case status == pagestate.StillOpen:
			fmt.Fprintln(d.out, "A modal is still open and could not be closed. Stopping.")
			st.abort("modal still open")
			return true, nil
		default:
			if status.Failed() {
				st.Skipped++
				fmt.Fprintf(d.out, "Resolved previous modal with status '%s'. Continuing.\n", status)
			} else {
				fmt.Fprintln(d.out, "Closed lingering modal without sending. Continuing.")
			}
			d.logger.Info().Str("status", string(status)).Msg("lingering modal resolved")
			if err := d.pause(ctx, page); err != nil {
				return true, err
			}
			continue
		}

		set, err := d.collect(ctx, page)
		if err != nil {
			return d.pageGone(err, st)
		}
		if set.Len() == 0 {
			if d.discover(ctx, page) == 0 {
				fmt.Fprintln(d.out, "No more matching buttons on this page (after settle check).")
				return false, nil
			}
			if set, err = d.collect(ctx, page); err != nil {
				return d.pageGone(err, st)
			}
		}

		ctrl, ok := set.First(d.skips.Has)
		if !ok {
			fmt.Fprintf(d.out, "All remaining %s buttons on this page are skipped due to prior errors.\n", d.cfg.ButtonLabel)
			return false, nil
		}

		if err := confirm.Click(ctx, ctrl.Element, confirm.Options{}); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if errors.Is(err, browser.ErrPageClosed) {
				return d.pageGone(err, st)
			}
			if d.blockedByModal(ctx, page, err) && modalRetries[ctrl.ID] < maxModalRetries {
				if closed, cerr := pagestate.CloseModal(ctx, page); cerr == nil && closed {
					modalRetries[ctrl.ID]++
					fmt.Fprintln(d.out, "Click blocked by modal. Closed modal and continuing.")
					if err := d.pause(ctx, page); err != nil {
						return true, err
					}
					continue
				}
			}
			d.skip(st, ctrl.ID)
			d.logger.Warn().Err(err).Str("id", ctrl.ID).Msg("click failed, skipping control")
			fmt.Fprintln(d.out, "Click failed for this profile. Skipping and continuing.")
			if err := d.pause(ctx, page); err != nil {
				return true, err
			}
			continue
		}

		status := d.modal.Submit(ctx, page)
		if status.Failed() {
			d.skip(st, ctrl.ID)
			d.logger.Warn().Str("status", string(status)).Str("id", ctrl.ID).Msg("modal action failed")
			if status == pagestate.Blocked {
				fmt.Fprintln(d.out, "Profile returned modal error. Skipping and continuing.")
			} else {
				fmt.Fprintf(d.out, "Modal action failed (%s). Skipping profile and continuing.\n", status)
			}
			if err := d.pause(ctx, page); err != nil {
				return true, err
			}
			continue
		}
		if status == pagestate.Sent {
			fmt.Fprintf(d.out, "Clicked modal submit: %s.\n", d.modal.SubmitLabel)
		}

		changed, err := confirm.Until(ctx, page, countConfirmPoll, countConfirmWait,
			confirm.CountBelow(page, pagestate.Controls(d.cfg.ButtonLabel), set.Len()))
		if err != nil && ctx.Err() != nil {
			return true, ctx.Err()
		}

		st.Clicks++
		pageClicks++
		fmt.Fprintf(d.out, "Clicked %d total (page clicks: %d, remaining before click: %d).\n", st.Clicks, pageClicks, set.Len())
		d.logger.Info().
			Int("clicks", st.Clicks).
			Int("page_clicks", pageClicks).
			Int("count", set.Len()).
			Bool("count_dropped", changed).
			Str("modal", string(status)).
			Msg("control clicked")

		if d.cfg.MaxClicks > 0 && st.Clicks >= d.cfg.MaxClicks {
			fmt.Fprintf(d.out, "Reached max clicks: %d.\n", d.cfg.MaxClicks)
			st.stop("max clicks reached")
			return true, nil
		}
		if err := d.pause(ctx, page); err != nil {
			return true, err
		}
	}
}

func (d *Autonomous) collect(ctx context.Context, page browser.Page) (snapshot.Set, error) {
	set, err := snapshot.Collect(ctx, page, d.cfg.ButtonLabel)
	if err != nil && !errors.Is(err, browser.ErrPageClosed) && ctx.Err() == nil {
		// a control vanished while being tagged; treat the page as empty for now
		d.logger.Debug().Err(err).Msg("collect controls")
		return snapshot.Set{Label: d.cfg.ButtonLabel, URL: page.URL()}, nil
	}
	return set, err
}

// discover re-polls for controls while scrolling, for up to the page settle
// time, so lazily rendered lists are not mistaken for empty pages.
func (d *Autonomous) discover(ctx context.Context, page browser.Page) int {
	deadline := page.Now().Add(d.cfg.PageSettle)
	for page.Now().Before(deadline) {
		if ctx.Err() != nil || page.IsClosed() {
			return 0
		}
		if n := pagestate.CountControls(ctx, page, d.cfg.ButtonLabel); n > 0 {
			return n
		}
		if err := page.Wheel(ctx, 0, settleScrollStep); err == nil {
			_ = page.Wait(ctx, settleScrollPause)
			_ = page.Wheel(ctx, 0, -settleScrollStep)
		}
		if err := page.Wait(ctx, settlePollInterval); err != nil {
			return 0
		}
	}
	return 0
}

func (d *Autonomous) blockedByModal(ctx context.Context, page browser.Page, err error) bool {
	if !browser.IsTimeout(err) {
		return true
	}
	return strings.Contains(err.Error(), interceptedMarker) || pagestate.DialogOpen(ctx, page)
}

func (d *Autonomous) skip(st *RunState, id string) {
	d.skips.Add(id)
	st.Skipped++
	d.logger.Debug().
		Str("id", id).
		Str("cursor", optional(d.skips.Cursor())).
		Int("page_skips", d.skips.Len()).
		Msg("control skipped")
}

func (d *Autonomous) pause(ctx context.Context, page browser.Page) error {
	_, err := d.pacer.Pause(ctx, page)
	return err
}

func (d *Autonomous) pageGone(err error, st *RunState) (bool, error) {
	if errors.Is(err, browser.ErrPageClosed) {
		fmt.Fprintln(d.out, "Active page was closed.")
		st.stop("page closed")
		return true, nil
	}
	return true, err
}

func optional(n int, ok bool) string {
	if !ok {
		return "unknown"
	}
	return fmt.Sprint(n)
}
