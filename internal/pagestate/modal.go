package pagestate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/connect-clicker/internal/browser"
	"github.com/polzovatel/connect-clicker/internal/confirm"
)

// ModalStatus is the terminal state of one invite-modal lifecycle.
type ModalStatus string

const (
	// Clear: no dialog was open.
	Clear ModalStatus = "clear"
	// NoModal: the submit control never appeared.
	NoModal ModalStatus = "no_modal"
	// Blocked: the dialog showed an error and was closed.
	Blocked ModalStatus = "blocked"
	// SendTimeout: clicking submit timed out without a visible error.
	SendTimeout ModalStatus = "send_timeout"
	// SendError: clicking submit failed without a visible error.
	SendError ModalStatus = "send_error"
	// Sent: the dialog closed after submit.
	Sent ModalStatus = "sent"
	// StalledModal: the dialog stayed open after submit.
	StalledModal ModalStatus = "stalled_modal"
	// ClosedWithoutSend: a foreign dialog was closed.
	ClosedWithoutSend ModalStatus = "closed_without_send"
	// StillOpen: a foreign dialog could not be closed.
	StillOpen ModalStatus = "still_open"
)

// Failed reports whether the status counts toward the skip tally.
func (s ModalStatus) Failed() bool {
	switch s {
	case Blocked, SendTimeout, SendError, StalledModal:
		return true
	}
	return false
}

const (
	DefaultSubmitLabel   = "Send Request"
	DefaultModalTimeout  = 8 * time.Second
	submitClickTimeout   = 10 * time.Second
	modalPollingInterval = 300 * time.Millisecond
	dismissTimeout       = 2 * time.Second
)

// ModalWorkflow drives the secondary invite dialog that may follow a click.
type ModalWorkflow struct {
	SubmitLabel string
	Timeout     time.Duration
	Logger      zerolog.Logger
}

func (w ModalWorkflow) submit() browser.Selector {
	label := w.SubmitLabel
	if label == "" {
		label = DefaultSubmitLabel
	}
	return Controls(label)
}

// Submit runs one modal lifecycle right after a primary click.
func (w ModalWorkflow) Submit(ctx context.Context, page browser.Page) ModalStatus {
	button := page.Element(w.submit(), 0)
	if w.Timeout <= 0 {
		// a zero bound means "look once"; the engine would read it as "wait forever"
		if n, err := page.Count(ctx, w.submit()); err != nil || n == 0 {
			return NoModal
		}
	} else if err := button.WaitVisible(ctx, w.Timeout); err != nil {
		return NoModal
	}

	if ModalError(ctx, page) {
		return w.block(ctx, page)
	}

	if err := button.Click(ctx, submitClickTimeout); err != nil {
		if ModalError(ctx, page) {
			return w.block(ctx, page)
		}
		w.Logger.Warn().Err(err).Msg("submit click failed")
		if browser.IsTimeout(err) {
			return SendTimeout
		}
		return SendError
	}

	var status ModalStatus
	_, err := confirm.Until(ctx, page, modalPollingInterval, w.Timeout, func(ctx context.Context) bool {
		if ModalError(ctx, page) {
			status = w.block(ctx, page)
			return true
		}
		if !DialogOpen(ctx, page) {
			status = Sent
			return true
		}
		return false
	})
	if status != "" {
		return status
	}
	if err != nil {
		w.Logger.Debug().Err(err).Msg("modal polling interrupted")
	}

	if ModalError(ctx, page) {
		return w.block(ctx, page)
	}
	if _, err := CloseModal(ctx, page); err != nil {
		w.Logger.Warn().Err(err).Msg("close stalled modal")
	}
	return StalledModal
}

// Resolve handles a dialog left open from an earlier step. With no dialog
// open it returns Clear and touches nothing. Any outcome that leaves a dialog
// on screen is reported as StillOpen.
func (w ModalWorkflow) Resolve(ctx context.Context, page browser.Page) ModalStatus {
	if !DialogOpen(ctx, page) {
		return Clear
	}
	status := w.Submit(ctx, page)
	if status == NoModal {
		closed, err := CloseModal(ctx, page)
		if err != nil {
			w.Logger.Warn().Err(err).Msg("close lingering modal")
		}
		if !closed {
			return StillOpen
		}
		status = ClosedWithoutSend
	}
	if !w.dismissed(ctx, page) {
		w.Logger.Warn().Str("status", string(status)).Msg("dialog still open after resolution")
		return StillOpen
	}
	return status
}

// dismissed waits up to dismissTimeout for every dialog to disappear.
func (w ModalWorkflow) dismissed(ctx context.Context, page browser.Page) bool {
	gone, err := confirm.Until(ctx, page, modalPollingInterval, dismissTimeout, func(ctx context.Context) bool {
		return !DialogOpen(ctx, page)
	})
	return err == nil && gone
}

func (w ModalWorkflow) block(ctx context.Context, page browser.Page) ModalStatus {
	if _, err := CloseModal(ctx, page); err != nil {
		w.Logger.Warn().Err(err).Msg("close blocked modal")
	}
	return Blocked
}
