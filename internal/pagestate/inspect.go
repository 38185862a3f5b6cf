// Package pagestate classifies the page before a click: verification walls,
// site error banners, open dialogs and dialog errors.
package pagestate

import (
	"context"
	"regexp"
	"time"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

// SiteErrorText is the banner the site shows when a page fails to render.
const SiteErrorText = "Something unexpected happened"

var (
	// CaptchaSelectors are structural hints of a verification wall.
	CaptchaSelectors = []string{
		"iframe[title*='captcha' i]",
		"iframe[src*='captcha' i]",
		"[id*='captcha' i]",
		"[class*='captcha' i]",
	}

	verifyPattern = regexp.MustCompile(`(?i)verify|verification|captcha`)

	// ModalErrorTexts mark a dialog that will not accept the action.
	ModalErrorTexts = []string{
		"Cannot read properties of undefined",
		"Something went wrong",
		"error",
	}

	// CloseSelectors find close-styled controls inside a dialog.
	CloseSelectors = []string{
		"button[aria-label*='close' i]",
		"button[title*='close' i]",
		"button[class*='close' i]",
	}

	// Dialog is any element with the dialog role.
	Dialog = browser.Role("dialog", "")
)

const (
	cancelLabel       = "Cancel"
	closeClickTimeout = 5 * time.Second
)

// Controls selects buttons with the exact accessible name label.
func Controls(label string) browser.Selector {
	return browser.Role("button", label)
}

// CountControls counts buttons named label; query errors count as zero.
func CountControls(ctx context.Context, page browser.Page, label string) int {
	n, err := page.Count(ctx, Controls(label))
	if err != nil {
		return 0
	}
	return n
}

// CaptchaDetected reports a probable verification wall. Detection is
// heuristic; a wall that matches none of the hints goes unnoticed.
func CaptchaDetected(ctx context.Context, page browser.Page) bool {
	for _, css := range CaptchaSelectors {
		if n, err := page.Count(ctx, browser.CSS(css)); err == nil && n > 0 {
			return true
		}
	}
	n, err := page.Count(ctx, browser.Matching(verifyPattern))
	return err == nil && n > 0
}

// SiteErrorDetected reports the site's generic error page.
func SiteErrorDetected(ctx context.Context, page browser.Page) bool {
	n, err := page.Count(ctx, browser.Text(SiteErrorText))
	return err == nil && n > 0
}

// DialogOpen reports whether any dialog is present.
func DialogOpen(ctx context.Context, page browser.Page) bool {
	n, err := page.Count(ctx, Dialog)
	return err == nil && n > 0
}

// ModalError reports an open dialog whose text contains one of ModalErrorTexts.
func ModalError(ctx context.Context, page browser.Page) bool {
	if !DialogOpen(ctx, page) {
		return false
	}
	for _, text := range ModalErrorTexts {
		if n, err := page.Count(ctx, browser.Text(text).In(Dialog)); err == nil && n > 0 {
			return true
		}
	}
	return false
}

// CloseModal dismisses the first dialog, preferring its Cancel button over a
// close-styled control. It reports whether a close control was clicked.
func CloseModal(ctx context.Context, page browser.Page) (bool, error) {
	if !DialogOpen(ctx, page) {
		return false, nil
	}
	candidates := []browser.Selector{browser.Role("button", cancelLabel).In(Dialog)}
	for _, css := range CloseSelectors {
		candidates = append(candidates, browser.CSS(css).In(Dialog))
	}
	for _, sel := range candidates {
		n, err := page.Count(ctx, sel)
		if err != nil || n == 0 {
			continue
		}
		if err := page.Element(sel, 0).Click(ctx, closeClickTimeout); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
