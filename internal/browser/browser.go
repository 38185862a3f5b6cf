package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrTimeout marks an action or navigation that did not finish within its bound.
	ErrTimeout = errors.New("timeout")
	// ErrPageClosed marks an operation on a page that is gone.
	ErrPageClosed = errors.New("page closed")
)

// Selector addresses elements on a page. Exactly one of Role, Pattern, Text or
// CSS is used, in that order of precedence. Scope restricts the query to the
// first element matching the scope selector.
type Selector struct {
	Role    string
	Name    string // exact accessible name, only with Role
	CSS     string
	Text    string // case-insensitive substring
	Pattern *regexp.Regexp
	Scope   *Selector
}

// Role selects elements by ARIA role and, when name is non-empty, exact accessible name.
func Role(role, name string) Selector { return Selector{Role: role, Name: name} }

// CSS selects elements by a structural selector.
func CSS(css string) Selector { return Selector{CSS: css} }

// Text selects elements whose text contains s, ignoring case.
func Text(s string) Selector { return Selector{Text: s} }

// Matching selects elements whose text matches re.
func Matching(re *regexp.Regexp) Selector { return Selector{Pattern: re} }

// In returns a copy of s scoped to the first element matching scope.
func (s Selector) In(scope Selector) Selector {
	s.Scope = &scope
	return s
}

func (s Selector) String() string {
	var b strings.Builder
	if s.Scope != nil {
		b.WriteString(s.Scope.String())
		b.WriteString(" >> ")
	}
	switch {
	case s.Role != "" && s.Name != "":
		fmt.Fprintf(&b, "role=%s[name=%q]", s.Role, s.Name)
	case s.Role != "":
		fmt.Fprintf(&b, "role=%s", s.Role)
	case s.Pattern != nil:
		fmt.Fprintf(&b, "text=/%s/", s.Pattern.String())
	case s.Text != "":
		fmt.Fprintf(&b, "text=%q", s.Text)
	default:
		b.WriteString(s.CSS)
	}
	return b.String()
}

// Page is one open document view. Queries are re-evaluated on every call, so
// results never outlive a page mutation.
type Page interface {
	URL() string
	IsClosed() bool
	Goto(ctx context.Context, url string, timeout time.Duration) error
	WaitForLoad(ctx context.Context, timeout time.Duration) error
	Count(ctx context.Context, sel Selector) (int, error)
	// Element returns a lazy handle to the index-th match of sel.
	Element(sel Selector, index int) Element
	Wheel(ctx context.Context, dx, dy float64) error
	Screenshot(ctx context.Context, path string) error
	// Wait blocks the caller for d, scoped to the page.
	Wait(ctx context.Context, d time.Duration) error
	Now() time.Time
}

// Element is a lazy handle resolved at the moment each action runs.
type Element interface {
	Attr(ctx context.Context, name string) (string, error)
	SetAttr(ctx context.Context, name, value string) error
	ScrollIntoView(ctx context.Context, timeout time.Duration) error
	Click(ctx context.Context, timeout time.Duration) error
	WaitVisible(ctx context.Context, timeout time.Duration) error
}

// Session owns a browser context for the lifetime of a run.
type Session interface {
	Pages() []Page
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// IsTimeout reports whether err is an action or navigation timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// OpenPages returns the pages of s that are still open.
func OpenPages(s Session) []Page {
	var out []Page
	for _, p := range s.Pages() {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// PickPage chooses the working tab: the first whose URL contains urlContains
// (ignoring case), else the first non-blank one, else the first one.
func PickPage(pages []Page, urlContains string) Page {
	if len(pages) == 0 {
		return nil
	}
	if needle := strings.ToLower(strings.TrimSpace(urlContains)); needle != "" {
		for _, p := range pages {
			if strings.Contains(strings.ToLower(p.URL()), needle) {
				return p
			}
		}
	}
	for _, p := range pages {
		if u := p.URL(); u != "" && u != "about:blank" {
			return p
		}
	}
	return pages[0]
}
