// Package paginate tracks the page cursor carried in listing URLs and moves
// between listing pages.
package paginate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Param is the query parameter holding the cursor.
const Param = "page"

// Cursor reads the page cursor from rawURL. ok is false when the parameter is
// absent or not an integer.
func Cursor(rawURL string) (n int, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil && q == nil {
		return 0, false
	}
	vals, found := q[Param]
	if !found || len(vals) == 0 {
		return 0, false
	}
	n, err = strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CursorOrFirst reads the cursor, treating a missing or malformed one as page 1.
func CursorOrFirst(rawURL string) int {
	if n, ok := Cursor(rawURL); ok {
		return n
	}
	return 1
}

// WithCursor returns rawURL with exactly one page parameter set to n. Scheme,
// host, path, fragment and the order and encoding of other parameters are kept.
func WithCursor(rawURL string, n int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	value := Param + "=" + strconv.Itoa(n)

	var (
		parts    []string
		replaced bool
	)
	if u.RawQuery != "" {
		for _, part := range strings.Split(u.RawQuery, "&") {
			if isCursorPair(part) {
				if !replaced {
					parts = append(parts, value)
					replaced = true
				}
				continue
			}
			parts = append(parts, part)
		}
	}
	if !replaced {
		parts = append(parts, value)
	}
	u.RawQuery = strings.Join(parts, "&")
	u.ForceQuery = false
	return u.String(), nil
}

// NextURL returns the URL for the page after the current one (page 1 when unknown).
func NextURL(rawURL string) (string, int, error) {
	next := CursorOrFirst(rawURL) + 1
	u, err := WithCursor(rawURL, next)
	return u, next, err
}

func isCursorPair(part string) bool {
	key := part
	if i := strings.IndexByte(part, '='); i >= 0 {
		key = part[:i]
	}
	k, err := url.QueryUnescape(key)
	if err != nil {
		return false
	}
	return k == Param
}
