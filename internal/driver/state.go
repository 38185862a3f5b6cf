// Package driver runs the click loops: the human-gated interactive driver and
// the autonomous driver attached to a running browser.
package driver

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RunState accumulates the counters of one run. Counters only grow.
type RunState struct {
	Clicks  int
	Skipped int
	Pages   int

	// LastConfirmed is the cursor of the last fully processed page.
	LastConfirmed int
	HasConfirmed  bool

	// Landed is the cursor observed after the last navigation attempt.
	Landed    int
	HasLanded bool

	StopReason string
	// Aborted marks a stop caused by a fault rather than completion or a limit.
	Aborted bool
}

// Confirm records cursor as completed.
func (s *RunState) Confirm(cursor int) {
	s.LastConfirmed, s.HasConfirmed = cursor, true
}

func (s *RunState) stop(reason string) {
	s.StopReason = reason
}

func (s *RunState) abort(reason string) {
	s.StopReason = reason
	s.Aborted = true
}

// Summary is the closing line printed and logged at the end of a run.
func (s RunState) Summary() string {
	return fmt.Sprintf("Done. Total clicks: %d, pages processed: %d, skipped: %d.", s.Clicks, s.Pages, s.Skipped)
}

// MarshalZerologObject lets the state be logged as a single object.
func (s RunState) MarshalZerologObject(e *zerolog.Event) {
	e.Int("clicks", s.Clicks).
		Int("skipped", s.Skipped).
		Int("pages", s.Pages).
		Str("stop_reason", s.StopReason).
		Bool("aborted", s.Aborted)
	if s.HasConfirmed {
		e.Int("last_confirmed", s.LastConfirmed)
	}
	if s.HasLanded {
		e.Int("landed", s.Landed)
	}
}
