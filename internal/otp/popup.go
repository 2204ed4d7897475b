package otp

import (
	"sync"
	"time"
)

// Popup is the marketing dialog that opens once, a fixed delay after a page
// load, whatever the visitor does in between.
type Popup struct {
	delay time.Duration
	now   func() time.Time

	mu     sync.Mutex
	loaded time.Time
	pageID string
	shown  bool
}

// NewPopup returns a popup that is not armed yet.
func NewPopup(delay time.Duration, now func() time.Time) *Popup {
	if now == nil {
		now = time.Now
	}
	return &Popup{delay: delay, now: now}
}

// PopupState tells the browser whether to open the dialog now, or how long
// until it should ask again.
type PopupState struct {
	Show        bool  `json:"show"`
	RemainingMS int64 `json:"remaining_ms"`
}

// Poll arms the timer on the first poll for pageID and fires at most once per
// page load.
func (p *Popup) Poll(pageID string) PopupState {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if pageID != p.pageID || p.loaded.IsZero() {
		p.pageID = pageID
		p.loaded = now
		p.shown = false
	}
	if p.shown {
		return PopupState{}
	}
	left := p.delay - now.Sub(p.loaded)
	if left > 0 {
		return PopupState{RemainingMS: left.Milliseconds()}
	}
	p.shown = true
	return PopupState{Show: true}
}
