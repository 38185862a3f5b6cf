// Package snapshot captures the actionable controls visible on a page at one
// moment. A snapshot is valid for a single iteration only; the page changes
// after every click, so callers collect a fresh one each time.
package snapshot

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/pagestate"
)

// MarkerAttr tags a control with a stable identity across re-queries.
const MarkerAttr = "data-clicker-id"

// Control is one matching element and its identity.
type Control struct {
	Index   int
	ID      string
	Element browser.Element
}

// Set is the ordered list of matching controls.
type Set struct {
	Label    string
	URL      string
	Controls []Control
}

func (s Set) Len() int { return len(s.Controls) }

// First returns the first control whose ID is not excluded.
func (s Set) First(excluded func(id string) bool) (Control, bool) {
	for _, c := range s.Controls {
		if excluded != nil && excluded(c.ID) {
			continue
		}
		return c, true
	}
	return Control{}, false
}

// Collect re-queries the page and tags every untagged control.
func Collect(ctx context.Context, page browser.Page, label string) (Set, error) {
	sel := pagestate.Controls(label)
	n, err := page.Count(ctx, sel)
	if err != nil {
		return Set{}, fmt.Errorf("count controls: %w", err)
	}
	set := Set{Label: label, URL: page.URL(), Controls: make([]Control, 0, n)}
	for i := 0; i < n; i++ {
		el := page.Element(sel, i)
		id, err := identify(ctx, el)
		if err != nil {
			return Set{}, fmt.Errorf("tag control %d: %w", i, err)
		}
		set.Controls = append(set.Controls, Control{Index: i, ID: id, Element: el})
	}
	return set, nil
}

func identify(ctx context.Context, el browser.Element) (string, error) {
	existing, err := el.Attr(ctx, MarkerAttr)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	id := uuid.NewString()
	if err := el.SetAttr(ctx, MarkerAttr, id); err != nil {
		return "", err
	}
	return id, nil
}
