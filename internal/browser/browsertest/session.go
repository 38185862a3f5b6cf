package browsertest

import (
	"context"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

// Session is a fake browser.Session over fake pages.
type Session struct {
	Open   []*Page
	Closed bool
	// NewURL is the URL given to pages created by NewPage.
	NewURL string
}

func (s *Session) Pages() []browser.Page {
	out := make([]browser.Page, 0, len(s.Open))
	for _, p := range s.Open {
		out = append(out, p)
	}
	return out
}

func (s *Session) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := s.NewURL
	if url == "" {
		url = "about:blank"
	}
	p := NewPage(url)
	s.Open = append(s.Open, p)
	return p, nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}

var _ browser.Session = (*Session)(nil)
