package gateway

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyResolved is returned when a second callback arrives for the same payment.
var ErrAlreadyResolved = errors.New("gateway: callback already received")

// Pending is a payment awaiting its widget callback. It resolves at most once.
type Pending struct {
	Handoff Handoff

	once sync.Once
	ch   chan Callback
}

// NewPending returns an unresolved payment for handoff.
func NewPending(h Handoff) *Pending {
	return &Pending{Handoff: h, ch: make(chan Callback, 1)}
}

// Resolve delivers the callback. Only the first call succeeds.
func (p *Pending) Resolve(cb Callback) error {
	err := ErrAlreadyResolved
	p.once.Do(func() {
		p.ch <- cb
		err = nil
	})
	return err
}

// Wait blocks until the callback arrives or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Callback, error) {
	select {
	case cb := <-p.ch:
		return cb, nil
	case <-ctx.Done():
		return Callback{}, ctx.Err()
	}
}
