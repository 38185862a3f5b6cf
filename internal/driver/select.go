package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

// ErrNoPages is returned when an attached browser has no open tabs.
var ErrNoPages = errors.New("no open tabs found in the connected browser")

// SelectOpenPage lets the operator choose one of the open tabs. With no tabs
// open a blank page is created and the operator navigates by hand.
func SelectOpenPage(ctx context.Context, session browser.Session, prompt PromptFunc, out io.Writer) (browser.Page, error) {
	pages := browser.OpenPages(session)
	if len(pages) == 0 {
		page, err := session.NewPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		if _, err := ask(ctx, prompt, "No open tabs found. Navigate manually in the opened browser, then press Enter to continue (or 'q' to quit): "); err != nil {
			return nil, err
		}
		return page, nil
	}

	fmt.Fprintln(out, "Open tabs:")
	for i, p := range pages {
		fmt.Fprintf(out, "  %d. %s\n", i+1, displayURL(p.URL()))
	}
	for {
		choice, err := ask(ctx, prompt, "Select tab number to use, or press Enter to use tab 1 (q to quit): ")
		if err != nil {
			return nil, err
		}
		if choice == "" {
			return pages[0], nil
		}
		if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(pages) {
			return pages[n-1], nil
		}
		fmt.Fprintln(out, "Invalid selection. Try again.")
	}
}

// FirstPage returns the first open tab, or a new one.
func FirstPage(ctx context.Context, session browser.Session) (browser.Page, error) {
	if pages := browser.OpenPages(session); len(pages) > 0 {
		return pages[0], nil
	}
	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

// AttachedPage picks the working tab of an attached browser.
func AttachedPage(session browser.Session, urlContains string) (browser.Page, error) {
	page := browser.PickPage(browser.OpenPages(session), urlContains)
	if page == nil {
		return nil, ErrNoPages
	}
	return page, nil
}

func displayURL(u string) string {
	if u == "" {
		return "(blank)"
	}
	return u
}
