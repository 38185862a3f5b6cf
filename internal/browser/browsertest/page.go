// Package browsertest provides an in-memory browser.Page for tests. Time is
// virtual: Wait advances the clock instantly, so polling loops finish
// without sleeping.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/polzovatel/connect-clicker/internal/browser"
)

// Node is one element on the fake page.
type Node struct {
	Role    string
	Name    string
	Text    string
	CSS     []string // selectors this node satisfies verbatim
	Attrs   map[string]string
	Parent  *Node
	Hidden  bool
	OnClick func(p *Page) error
}

// Page is a scripted browser.Page. Its exported hooks may be set before use;
// everything else goes through methods.
type Page struct {
	mu     sync.Mutex
	url    string
	closed bool
	nodes  []*Node
	now    time.Time

	// GotoFunc replaces the default navigation, which just sets the URL.
	GotoFunc func(p *Page, url string) error
	// WaitFunc, when set, runs after every Wait once the clock has moved.
	WaitFunc func(p *Page, d time.Duration)

	Gotos       []string
	Screenshots []string
	Wheels      int
	Waits       []time.Duration
	Clicks      []*Node
}

func NewPage(url string) *Page {
	return &Page{url: url, now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

// Add appends nodes to the page and returns the first one.
func (p *Page) Add(nodes ...*Node) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = append(p.nodes, nodes...)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Remove drops n and all of its descendants.
func (p *Page) Remove(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.nodes[:0]
	for _, c := range p.nodes {
		if c == n || descends(c, n) {
			continue
		}
		kept = append(kept, c)
	}
	p.nodes = kept
}

// SetURL changes the current URL without recording a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Button builds a button node.
func Button(name string) *Node {
	return &Node{Role: "button", Name: name, Text: name}
}

// Dialog builds a dialog node holding text and the given children.
func (p *Page) Dialog(text string, children ...*Node) *Node {
	d := &Node{Role: "dialog", Text: text}
	body := &Node{Text: text, Parent: d}
	p.Add(d, body)
	for _, c := range children {
		c.Parent = d
		p.Add(c)
	}
	return d
}

// Matches reports how many nodes currently match sel.
func (p *Page) Matches(sel browser.Selector) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.match(sel))
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Gotos = append(p.Gotos, url)
	hook := p.GotoFunc
	p.mu.Unlock()
	if hook != nil {
		return hook(p, url)
	}
	p.SetURL(url)
	return nil
}

func (p *Page) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

func (p *Page) Count(ctx context.Context, sel browser.Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.IsClosed() {
		return 0, browser.ErrPageClosed
	}
	return p.Matches(sel), nil
}

func (p *Page) Element(sel browser.Selector, index int) browser.Element {
	return &element{page: p, sel: sel, index: index}
}

func (p *Page) Wheel(ctx context.Context, dx, dy float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Wheels++
	return ctx.Err()
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screenshots = append(p.Screenshots, path)
	return ctx.Err()
}

func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.advance(d)
	p.mu.Lock()
	hook := p.WaitFunc
	p.mu.Unlock()
	if hook != nil {
		hook(p, d)
	}
	return nil
}

func (p *Page) advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Waits = append(p.Waits, d)
	p.now = p.now.Add(d)
}

// TotalWait sums every duration passed to Wait.
func (p *Page) TotalWait() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sum time.Duration
	for _, d := range p.Waits {
		sum += d
	}
	return sum
}

func (p *Page) resolve(sel browser.Selector, index int) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	found := p.match(sel)
	if index < 0 || index >= len(found) {
		return nil
	}
	return found[index]
}

func (p *Page) match(sel browser.Selector) []*Node {
	candidates := p.nodes
	if sel.Scope != nil {
		scoped := p.match(*sel.Scope)
		if len(scoped) == 0 {
			return nil
		}
		root := scoped[0]
		candidates = nil
		for _, n := range p.nodes {
			if descends(n, root) {
				candidates = append(candidates, n)
			}
		}
	}
	var out []*Node
	for _, n := range candidates {
		if n.Hidden {
			continue
		}
		if matches(n, sel) {
			out = append(out, n)
		}
	}
	return out
}

func matches(n *Node, sel browser.Selector) bool {
	switch {
	case sel.Role != "":
		return n.Role == sel.Role && (sel.Name == "" || n.Name == sel.Name)
	case sel.Pattern != nil:
		return n.Text != "" && sel.Pattern.MatchString(n.Text)
	case sel.Text != "":
		return strings.Contains(strings.ToLower(n.Text), strings.ToLower(sel.Text))
	default:
		for _, c := range n.CSS {
			if c == sel.CSS {
				return true
			}
		}
		return false
	}
}

func descends(n, root *Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// ErrIntercepted mimics a click blocked by an overlay.
var ErrIntercepted = fmt.Errorf("%w: element intercepts pointer events", browser.ErrTimeout)

type element struct {
	page  *Page
	sel   browser.Selector
	index int
}

func (e *element) node() (*Node, error) {
	if e.page.IsClosed() {
		return nil, browser.ErrPageClosed
	}
	n := e.page.resolve(e.sel, e.index)
	if n == nil {
		return nil, fmt.Errorf("%s[%d]: %w", e.sel, e.index, browser.ErrTimeout)
	}
	return n, nil
}

func (e *element) Attr(ctx context.Context, name string) (string, error) {
	n, err := e.node()
	if err != nil {
		return "", err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return n.Attrs[name], nil
}

func (e *element) SetAttr(ctx context.Context, name, value string) error {
	n, err := e.node()
	if err != nil {
		return err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[name] = value
	return nil
}

func (e *element) ScrollIntoView(ctx context.Context, timeout time.Duration) error {
	_, err := e.node()
	if err != nil {
		e.page.advance(timeout)
	}
	return err
}

func (e *element) Click(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := e.node()
	if err != nil {
		e.page.advance(timeout)
		return err
	}
	e.page.mu.Lock()
	e.page.Clicks = append(e.page.Clicks, n)
	e.page.mu.Unlock()
	if n.OnClick == nil {
		return nil
	}
	err = n.OnClick(e.page)
	if errors.Is(err, browser.ErrTimeout) {
		e.page.advance(timeout)
	}
	return err
}

func (e *element) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if _, err := e.node(); err != nil {
		e.page.advance(timeout)
		return err
	}
	return nil
}

var _ browser.Page = (*Page)(nil)
